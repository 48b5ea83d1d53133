package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
)

// TokenRepository stores OAuth2 token sets keyed by connection.
type TokenRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTokenRepository creates a new token repository.
func NewTokenRepository(db *sql.DB, logger *slog.Logger) *TokenRepository {
	return &TokenRepository{db: db, logger: logger}
}

func (r *TokenRepository) GetToken(ctx context.Context, connectionID string) (*models.OAuth2Token, error) {
	query := `
		SELECT connection_id, access_token, refresh_token, token_type, expires_at, updated_at
		FROM oauth_tokens WHERE connection_id = $1
	`

	var (
		token     models.OAuth2Token
		expiresAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, connectionID).Scan(
		&token.ConnectionID,
		&token.AccessToken,
		&token.RefreshToken,
		&token.TokenType,
		&expiresAt,
		&token.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewRecordError("GetToken", "oauth2 token", connectionID, persistence.ErrTokenNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query oauth2 token: %w", err)
	}

	if expiresAt.Valid {
		token.ExpiresAt = expiresAt.Time
	}

	return &token, nil
}

func (r *TokenRepository) SaveToken(ctx context.Context, token *models.OAuth2Token) error {
	query := `
		INSERT INTO oauth_tokens (connection_id, access_token, refresh_token, token_type, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (connection_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_type = EXCLUDED.token_type,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`

	var expiresAt sql.NullTime
	if !token.ExpiresAt.IsZero() {
		expiresAt = sql.NullTime{Time: token.ExpiresAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		token.ConnectionID,
		token.AccessToken,
		token.RefreshToken,
		token.TokenType,
		expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save oauth2 token: %w", err)
	}

	return nil
}

func (r *TokenRepository) DeleteToken(ctx context.Context, connectionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE connection_id = $1`, connectionID)
	if err != nil {
		return fmt.Errorf("failed to delete oauth2 token: %w", err)
	}

	return nil
}
