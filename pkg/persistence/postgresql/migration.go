package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE node_definitions (
				identifier VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				category VARCHAR(50) NOT NULL,
				integration_type VARCHAR(255) NOT NULL,
				version VARCHAR(50) NOT NULL,
				input_schema JSONB,
				output_schema JSONB,
				config_schema JSONB,
				ui_config JSONB,
				tags TEXT[] NOT NULL DEFAULT '{}',
				deprecated BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);

			CREATE INDEX idx_node_definitions_integration ON node_definitions(integration_type);
			CREATE INDEX idx_node_definitions_category ON node_definitions(category);

			CREATE TABLE connections (
				id VARCHAR(255) PRIMARY KEY,
				node_type VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				owner_id VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL,
				config JSONB,
				metadata JSONB,
				last_error TEXT NOT NULL DEFAULT '',
				secrets BYTEA,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);

			CREATE INDEX idx_connections_owner ON connections(owner_id);

			CREATE TABLE oauth_tokens (
				connection_id VARCHAR(255) PRIMARY KEY REFERENCES connections(id) ON DELETE CASCADE,
				access_token TEXT NOT NULL,
				refresh_token TEXT NOT NULL DEFAULT '',
				token_type VARCHAR(50) NOT NULL DEFAULT '',
				expires_at TIMESTAMP WITH TIME ZONE,
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);

			CREATE TABLE scenarios (
				id VARCHAR(255) PRIMARY KEY,
				owner_id VARCHAR(255) NOT NULL DEFAULT '',
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL,
				integration_id VARCHAR(255) NOT NULL,
				trigger_type VARCHAR(255) NOT NULL,
				run_timeout_ms BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);

			CREATE INDEX idx_scenarios_trigger ON scenarios(integration_id, trigger_type, status);
			CREATE INDEX idx_scenarios_owner ON scenarios(owner_id);

			CREATE TABLE scenario_nodes (
				id VARCHAR(255) NOT NULL,
				scenario_id VARCHAR(255) NOT NULL REFERENCES scenarios(id) ON DELETE CASCADE,
				position INTEGER NOT NULL,
				node_type VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				connection_id VARCHAR(255) NOT NULL DEFAULT '',
				config JSONB,
				input_mapping JSONB,
				trigger_types TEXT[] NOT NULL DEFAULT '{}',
				optional BOOLEAN NOT NULL DEFAULT FALSE,
				position_x INTEGER NOT NULL DEFAULT 0,
				position_y INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (id, scenario_id)
			);

			CREATE TABLE scenario_edges (
				id VARCHAR(255) NOT NULL,
				scenario_id VARCHAR(255) NOT NULL REFERENCES scenarios(id) ON DELETE CASCADE,
				position INTEGER NOT NULL,
				source_node_id VARCHAR(255) NOT NULL,
				target_node_id VARCHAR(255) NOT NULL,
				PRIMARY KEY (id, scenario_id)
			);

			CREATE TABLE automation_logs (
				seq BIGSERIAL,
				id VARCHAR(255) PRIMARY KEY,
				run_id VARCHAR(255) NOT NULL,
				scenario_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL DEFAULT '',
				node_type VARCHAR(255) NOT NULL DEFAULT '',
				action VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL,
				attempt INTEGER NOT NULL DEFAULT 0,
				input_data JSONB,
				output_data JSONB,
				error TEXT NOT NULL DEFAULT '',
				warnings TEXT[] NOT NULL DEFAULT '{}',
				request JSONB,
				response JSONB,
				start_time TIMESTAMP WITH TIME ZONE NOT NULL,
				end_time TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_automation_logs_run ON automation_logs(run_id, seq);
			CREATE INDEX idx_automation_logs_scenario ON automation_logs(scenario_id, seq DESC);
			CREATE INDEX idx_automation_logs_status ON automation_logs(status);

			-- Log entries are written once and never changed.
			CREATE RULE automation_logs_no_update AS ON UPDATE TO automation_logs DO INSTEAD NOTHING;
		`,
	}
}
