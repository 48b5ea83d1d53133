package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/lib/pq"
)

const definitionColumns = `identifier, name, description, category, integration_type, version,
	input_schema, output_schema, config_schema, ui_config, tags, deprecated, created_at, updated_at`

// NodeDefinitionRepository handles node catalog database operations.
type NodeDefinitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewNodeDefinitionRepository creates a new node definition repository.
func NewNodeDefinitionRepository(db *sql.DB, logger *slog.Logger) *NodeDefinitionRepository {
	return &NodeDefinitionRepository{db: db, logger: logger}
}

func (r *NodeDefinitionRepository) GetDefinition(ctx context.Context, identifier string) (*models.IntegrationNodeDefinition, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM node_definitions WHERE identifier = $1`, identifier)

	def, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewRecordError("GetDefinition", "node definition", identifier, persistence.ErrNodeDefinitionNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query node definition: %w", err)
	}

	return def, nil
}

func (r *NodeDefinitionRepository) InsertDefinition(ctx context.Context, def *models.IntegrationNodeDefinition) error {
	uiConfig, err := marshalJSON(def.UIConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal ui config: %w", err)
	}

	query := `
		INSERT INTO node_definitions (` + definitionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = r.db.ExecContext(ctx, query,
		def.Identifier,
		def.Name,
		def.Description,
		string(def.Category),
		def.IntegrationType,
		def.Version,
		rawOrNull(def.InputSchema),
		rawOrNull(def.OutputSchema),
		rawOrNull(def.ConfigSchema),
		uiConfig,
		pq.Array(tagsOrEmpty(def.Tags)),
		def.Deprecated,
		def.CreatedAt,
		def.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return persistence.NewRecordError("InsertDefinition", "node definition", def.Identifier, persistence.ErrAlreadyExists)
	}

	if err != nil {
		return fmt.Errorf("failed to insert node definition: %w", err)
	}

	return nil
}

func (r *NodeDefinitionRepository) PatchDefinition(ctx context.Context, identifier string, patch persistence.NodeDefinitionPatch) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Name != nil {
		add("name", *patch.Name)
	}

	if patch.Description != nil {
		add("description", *patch.Description)
	}

	if patch.Category != nil {
		add("category", string(*patch.Category))
	}

	if patch.IntegrationType != nil {
		add("integration_type", *patch.IntegrationType)
	}

	if patch.Version != nil {
		add("version", *patch.Version)
	}

	if patch.InputSchema != nil {
		add("input_schema", []byte(patch.InputSchema))
	}

	if patch.OutputSchema != nil {
		add("output_schema", []byte(patch.OutputSchema))
	}

	if patch.ConfigSchema != nil {
		add("config_schema", []byte(patch.ConfigSchema))
	}

	if patch.UIConfig != nil {
		uiConfig, err := marshalJSON(patch.UIConfig)
		if err != nil {
			return fmt.Errorf("failed to marshal ui config: %w", err)
		}

		add("ui_config", uiConfig)
	}

	if patch.Tags != nil {
		add("tags", pq.Array(patch.Tags))
	}

	if patch.Deprecated != nil {
		add("deprecated", *patch.Deprecated)
	}

	args = append(args, identifier)
	query := fmt.Sprintf("UPDATE node_definitions SET %s WHERE identifier = $%d", strings.Join(sets, ", "), len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to patch node definition: %w", err)
	}

	return ensureAffected(result,
		persistence.NewRecordError("PatchDefinition", "node definition", identifier, persistence.ErrNodeDefinitionNotFound))
}

func (r *NodeDefinitionRepository) ListDefinitions(
	ctx context.Context,
	filter persistence.NodeDefinitionFilter,
) ([]*models.IntegrationNodeDefinition, error) {
	query := `
		SELECT ` + definitionColumns + ` FROM node_definitions
		WHERE ($1 = '' OR category = $1)
		  AND ($2 = '' OR integration_type = $2)
		  AND ($3 OR deprecated = FALSE)
		ORDER BY identifier
	`

	rows, err := r.db.QueryContext(ctx, query, string(filter.Category), filter.IntegrationType, filter.IncludeDeprecated)
	if err != nil {
		return nil, fmt.Errorf("failed to query node definitions: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	definitions := make([]*models.IntegrationNodeDefinition, 0)

	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node definition: %w", err)
		}

		definitions = append(definitions, def)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating node definitions: %w", err)
	}

	return definitions, nil
}

func scanDefinition(row rowScanner) (*models.IntegrationNodeDefinition, error) {
	var (
		def                                     models.IntegrationNodeDefinition
		category                                string
		inputSchema, outputSchema, configSchema []byte
		uiConfig                                []byte
		tags                                    pq.StringArray
	)

	err := row.Scan(
		&def.Identifier,
		&def.Name,
		&def.Description,
		&category,
		&def.IntegrationType,
		&def.Version,
		&inputSchema,
		&outputSchema,
		&configSchema,
		&uiConfig,
		&tags,
		&def.Deprecated,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	def.Category = models.CategoryType(category)
	def.InputSchema = inputSchema
	def.OutputSchema = outputSchema
	def.ConfigSchema = configSchema
	def.Tags = tags

	def.UIConfig, err = unmarshalMap(uiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal ui config: %w", err)
	}

	return &def, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}

	return tags
}
