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
)

const connectionColumns = `id, node_type, name, owner_id, status, config, metadata, last_error, secrets, created_at, updated_at`

// ConnectionRepository handles connection-related database operations.
type ConnectionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewConnectionRepository creates a new connection repository.
func NewConnectionRepository(db *sql.DB, logger *slog.Logger) *ConnectionRepository {
	return &ConnectionRepository{db: db, logger: logger}
}

func (r *ConnectionRepository) GetConnection(ctx context.Context, id string) (*models.ConnectionDefinition, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM connections WHERE id = $1`, id)

	conn, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewRecordError("GetConnection", "connection", id, persistence.ErrConnectionNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query connection: %w", err)
	}

	return conn, nil
}

func (r *ConnectionRepository) InsertConnection(ctx context.Context, conn *models.ConnectionDefinition) error {
	config, err := marshalJSON(conn.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal connection config: %w", err)
	}

	metadata, err := marshalJSON(conn.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal connection metadata: %w", err)
	}

	query := `
		INSERT INTO connections (` + connectionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		conn.ID,
		conn.NodeType,
		conn.Name,
		conn.OwnerID,
		string(conn.Status),
		config,
		metadata,
		conn.LastError,
		conn.Secrets,
		conn.CreatedAt,
		conn.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return persistence.NewRecordError("InsertConnection", "connection", conn.ID, persistence.ErrAlreadyExists)
	}

	if err != nil {
		return fmt.Errorf("failed to insert connection: %w", err)
	}

	return nil
}

func (r *ConnectionRepository) PatchConnection(ctx context.Context, id string, patch persistence.ConnectionPatch) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Name != nil {
		add("name", *patch.Name)
	}

	if patch.Status != nil {
		add("status", string(*patch.Status))
	}

	if patch.Config != nil {
		config, err := marshalJSON(patch.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal connection config: %w", err)
		}

		add("config", config)
	}

	if patch.Metadata != nil {
		metadata, err := marshalJSON(patch.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal connection metadata: %w", err)
		}

		add("metadata", metadata)
	}

	if patch.Secrets != nil {
		add("secrets", patch.Secrets)
	}

	if patch.LastError != nil {
		add("last_error", *patch.LastError)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE connections SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to patch connection: %w", err)
	}

	return ensureAffected(result, persistence.NewRecordError("PatchConnection", "connection", id, persistence.ErrConnectionNotFound))
}

func (r *ConnectionRepository) DeleteConnection(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM connections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}

	return ensureAffected(result, persistence.NewRecordError("DeleteConnection", "connection", id, persistence.ErrConnectionNotFound))
}

func (r *ConnectionRepository) ListConnectionsByOwner(ctx context.Context, ownerID string) ([]*models.ConnectionDefinition, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE ($1 = '' OR owner_id = $1) ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	connections := make([]*models.ConnectionDefinition, 0)

	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}

		connections = append(connections, conn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}

	return connections, nil
}

func scanConnection(row rowScanner) (*models.ConnectionDefinition, error) {
	var (
		conn             models.ConnectionDefinition
		status           string
		config, metadata []byte
	)

	err := row.Scan(
		&conn.ID,
		&conn.NodeType,
		&conn.Name,
		&conn.OwnerID,
		&status,
		&config,
		&metadata,
		&conn.LastError,
		&conn.Secrets,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	conn.Status = models.ConnectionStatus(status)

	conn.Config, err = unmarshalMap(config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal connection config: %w", err)
	}

	conn.Metadata, err = unmarshalMap(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal connection metadata: %w", err)
	}

	return &conn, nil
}
