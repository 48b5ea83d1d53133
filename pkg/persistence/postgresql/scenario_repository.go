package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/lib/pq"
)

const scenarioColumns = `id, owner_id, name, description, status, integration_id, trigger_type, run_timeout_ms, created_at, updated_at`

// ScenarioRepository handles scenario, scenario node and edge database operations.
type ScenarioRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewScenarioRepository creates a new scenario repository.
func NewScenarioRepository(db *sql.DB, logger *slog.Logger) *ScenarioRepository {
	return &ScenarioRepository{db: db, logger: logger}
}

func (r *ScenarioRepository) GetScenario(ctx context.Context, id string) (*models.Scenario, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+scenarioColumns+` FROM scenarios WHERE id = $1`, id)

	scenario, err := scanScenario(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewRecordError("GetScenario", "scenario", id, persistence.ErrScenarioNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query scenario: %w", err)
	}

	err = r.loadGraph(ctx, scenario)
	if err != nil {
		return nil, err
	}

	return scenario, nil
}

func (r *ScenarioRepository) InsertScenario(ctx context.Context, scenario *models.Scenario) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO scenarios (` + scenarioColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`

		_, err := tx.ExecContext(ctx, query,
			scenario.ID,
			scenario.OwnerID,
			scenario.Name,
			scenario.Description,
			string(scenario.Status),
			scenario.IntegrationID,
			scenario.TriggerType,
			scenario.RunTimeout.Milliseconds(),
			scenario.CreatedAt,
			scenario.UpdatedAt,
		)
		if isUniqueViolation(err) {
			return persistence.NewRecordError("InsertScenario", "scenario", scenario.ID, persistence.ErrAlreadyExists)
		}

		if err != nil {
			return fmt.Errorf("failed to insert scenario: %w", err)
		}

		return r.saveGraph(ctx, tx, scenario)
	})
}

func (r *ScenarioRepository) UpdateScenario(ctx context.Context, scenario *models.Scenario) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE scenarios SET
				owner_id = $2, name = $3, description = $4, status = $5,
				integration_id = $6, trigger_type = $7, run_timeout_ms = $8, updated_at = NOW()
			WHERE id = $1
		`

		result, err := tx.ExecContext(ctx, query,
			scenario.ID,
			scenario.OwnerID,
			scenario.Name,
			scenario.Description,
			string(scenario.Status),
			scenario.IntegrationID,
			scenario.TriggerType,
			scenario.RunTimeout.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to update scenario: %w", err)
		}

		err = ensureAffected(result, persistence.NewRecordError("UpdateScenario", "scenario", scenario.ID, persistence.ErrScenarioNotFound))
		if err != nil {
			return err
		}

		for _, table := range []string{"scenario_edges", "scenario_nodes"} {
			_, err = tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE scenario_id = $1", scenario.ID)
			if err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		return r.saveGraph(ctx, tx, scenario)
	})
}

func (r *ScenarioRepository) PatchScenarioStatus(ctx context.Context, id string, status models.ScenarioStatus) error {
	result, err := r.db.ExecContext(ctx, `UPDATE scenarios SET status = $1, updated_at = NOW() WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to patch scenario status: %w", err)
	}

	return ensureAffected(result, persistence.NewRecordError("PatchScenarioStatus", "scenario", id, persistence.ErrScenarioNotFound))
}

// DeleteScenario relies on ON DELETE CASCADE for nodes and edges.
func (r *ScenarioRepository) DeleteScenario(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM scenarios WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete scenario: %w", err)
	}

	return ensureAffected(result, persistence.NewRecordError("DeleteScenario", "scenario", id, persistence.ErrScenarioNotFound))
}

func (r *ScenarioRepository) ListScenariosByOwner(ctx context.Context, ownerID string) ([]*models.Scenario, error) {
	query := `SELECT ` + scenarioColumns + ` FROM scenarios WHERE ($1 = '' OR owner_id = $1) ORDER BY id`

	return r.list(ctx, query, ownerID)
}

func (r *ScenarioRepository) ListScenariosByTrigger(
	ctx context.Context,
	integrationID, triggerType string,
	status models.ScenarioStatus,
) ([]*models.Scenario, error) {
	query := `
		SELECT ` + scenarioColumns + ` FROM scenarios
		WHERE integration_id = $1 AND trigger_type = $2 AND ($3 = '' OR status = $3)
		ORDER BY id
	`

	return r.list(ctx, query, integrationID, triggerType, string(status))
}

func (r *ScenarioRepository) list(ctx context.Context, query string, args ...any) ([]*models.Scenario, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenarios: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	scenarios := make([]*models.Scenario, 0)

	for rows.Next() {
		scenario, err := scanScenario(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scenario: %w", err)
		}

		scenarios = append(scenarios, scenario)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scenarios: %w", err)
	}

	for _, scenario := range scenarios {
		err = r.loadGraph(ctx, scenario)
		if err != nil {
			return nil, err
		}
	}

	return scenarios, nil
}

func (r *ScenarioRepository) saveGraph(ctx context.Context, tx *sql.Tx, scenario *models.Scenario) error {
	nodeQuery := `
		INSERT INTO scenario_nodes (id, scenario_id, position, node_type, name, connection_id, config,
			input_mapping, trigger_types, optional, position_x, position_y)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	for i, node := range scenario.Nodes {
		config, err := marshalJSON(node.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal node %s config: %w", node.ID, err)
		}

		mapping, err := marshalJSON(node.InputMapping)
		if err != nil {
			return fmt.Errorf("failed to marshal node %s input mapping: %w", node.ID, err)
		}

		_, err = tx.ExecContext(ctx, nodeQuery,
			node.ID,
			scenario.ID,
			i,
			node.NodeType,
			node.Name,
			node.ConnectionID,
			config,
			mapping,
			pq.Array(tagsOrEmpty(node.TriggerTypes)),
			node.Optional,
			node.PositionX,
			node.PositionY,
		)
		if err != nil {
			return fmt.Errorf("failed to insert scenario node %s: %w", node.ID, err)
		}
	}

	edgeQuery := `
		INSERT INTO scenario_edges (id, scenario_id, position, source_node_id, target_node_id)
		VALUES ($1, $2, $3, $4, $5)
	`

	for i, edge := range scenario.Edges {
		_, err := tx.ExecContext(ctx, edgeQuery, edge.ID, scenario.ID, i, edge.Source, edge.Target)
		if err != nil {
			return fmt.Errorf("failed to insert scenario edge %s: %w", edge.ID, err)
		}
	}

	return nil
}

func (r *ScenarioRepository) loadGraph(ctx context.Context, scenario *models.Scenario) error {
	nodeQuery := `
		SELECT id, node_type, name, connection_id, config, input_mapping, trigger_types, optional, position_x, position_y
		FROM scenario_nodes WHERE scenario_id = $1 ORDER BY position
	`

	rows, err := r.db.QueryContext(ctx, nodeQuery, scenario.ID)
	if err != nil {
		return fmt.Errorf("failed to query scenario nodes: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	scenario.Nodes = make([]*models.ScenarioNode, 0)

	for rows.Next() {
		var (
			node            models.ScenarioNode
			config, mapping []byte
			triggerTypes    pq.StringArray
		)

		err := rows.Scan(&node.ID, &node.NodeType, &node.Name, &node.ConnectionID, &config, &mapping,
			&triggerTypes, &node.Optional, &node.PositionX, &node.PositionY)
		if err != nil {
			return fmt.Errorf("failed to scan scenario node: %w", err)
		}

		node.Config, err = unmarshalMap(config)
		if err != nil {
			return fmt.Errorf("failed to unmarshal node config: %w", err)
		}

		if len(mapping) > 0 && string(mapping) != "null" {
			err = json.Unmarshal(mapping, &node.InputMapping)
			if err != nil {
				return fmt.Errorf("failed to unmarshal node input mapping: %w", err)
			}
		}

		if len(triggerTypes) > 0 {
			node.TriggerTypes = triggerTypes
		}

		scenario.Nodes = append(scenario.Nodes, &node)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating scenario nodes: %w", err)
	}

	edgeRows, err := r.db.QueryContext(ctx,
		`SELECT id, source_node_id, target_node_id FROM scenario_edges WHERE scenario_id = $1 ORDER BY position`, scenario.ID)
	if err != nil {
		return fmt.Errorf("failed to query scenario edges: %w", err)
	}

	defer func() {
		if closeErr := edgeRows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	scenario.Edges = make([]*models.ScenarioEdge, 0)

	for edgeRows.Next() {
		var edge models.ScenarioEdge

		err := edgeRows.Scan(&edge.ID, &edge.Source, &edge.Target)
		if err != nil {
			return fmt.Errorf("failed to scan scenario edge: %w", err)
		}

		scenario.Edges = append(scenario.Edges, &edge)
	}

	if err := edgeRows.Err(); err != nil {
		return fmt.Errorf("error iterating scenario edges: %w", err)
	}

	return nil
}

func (r *ScenarioRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = fn(tx)
	if err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			r.logger.ErrorContext(ctx, "failed to rollback transaction", "error", rollbackErr)
		}

		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func scanScenario(row rowScanner) (*models.Scenario, error) {
	var (
		scenario  models.Scenario
		status    string
		timeoutMs int64
	)

	err := row.Scan(
		&scenario.ID,
		&scenario.OwnerID,
		&scenario.Name,
		&scenario.Description,
		&status,
		&scenario.IntegrationID,
		&scenario.TriggerType,
		&timeoutMs,
		&scenario.CreatedAt,
		&scenario.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	scenario.Status = models.ScenarioStatus(status)
	scenario.RunTimeout = time.Duration(timeoutMs) * time.Millisecond

	return &scenario, nil
}
