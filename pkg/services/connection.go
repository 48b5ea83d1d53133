package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/conduit/pkg/apiclient"
	"github.com/dukex/conduit/pkg/auth"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrConnectionNotFound is returned when a connection is not found.
	ErrConnectionNotFound = persistence.ErrConnectionNotFound
)

// CreateConnectionRequest represents the request to create a new connection.
type CreateConnectionRequest struct {
	NodeType string            `validate:"required"`
	Name     string            `validate:"required,min=3"`
	OwnerID  string            `validate:"required"`
	Config   map[string]any
	Metadata map[string]any
	Secrets  map[string]string
}

// UpdateConnectionRequest changes the set fields. Changing config or secrets
// puts the connection back into the connected state.
type UpdateConnectionRequest struct {
	Name     *string `validate:"omitempty,min=3"`
	Config   map[string]any
	Metadata map[string]any
	Secrets  map[string]string
}

// Caller sends a request through a connection.
type Caller interface {
	Call(ctx context.Context, conn *models.ConnectionDefinition, req *auth.Request, opts ...apiclient.CallOption) (*apiclient.Response, error)
}

// Connections manages configured integration accounts. It is the only place
// secrets are decrypted.
type Connections struct {
	persistence persistence.Persistence
	sealer      *Sealer
	validate    *validator.Validate
	clock       clockwork.Clock
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewConnections creates a new connection service. httpClient is used for
// OAuth2 refreshes and may be nil.
func NewConnections(logger *slog.Logger, persistence persistence.Persistence, sealer *Sealer, httpClient *http.Client) *Connections {
	return &Connections{
		persistence: persistence,
		sealer:      sealer,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		clock:       clockwork.NewRealClock(),
		httpClient:  httpClient,
		logger:      logger.With("module", "connections"),
	}
}

// WithClock replaces the clock, for tests.
func (c *Connections) WithClock(clock clockwork.Clock) *Connections {
	c.clock = clock

	return c
}

// Create validates and stores a new connection with sealed secrets.
func (c *Connections) Create(ctx context.Context, req CreateConnectionRequest) (*models.ConnectionDefinition, error) {
	err := c.validate.Struct(req)
	if err != nil {
		return nil, NewValidationError("create connection", "invalid_connection", err.Error(), ErrInvalidRequest)
	}

	defs, err := c.persistence.NodeDefinitionRepository().ListDefinitions(ctx, persistence.NodeDefinitionFilter{IntegrationType: req.NodeType})
	if err != nil {
		return nil, fmt.Errorf("failed to check integration: %w", err)
	}

	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIntegration, req.NodeType)
	}

	sealed, err := c.sealer.Seal(req.Secrets)
	if err != nil {
		return nil, fmt.Errorf("failed to seal secrets: %w", err)
	}

	now := c.clock.Now().UTC()
	conn := &models.ConnectionDefinition{
		ID:        uuid.New().String(),
		NodeType:  req.NodeType,
		Name:      req.Name,
		OwnerID:   req.OwnerID,
		Status:    models.ConnectionStatusConnected,
		Config:    req.Config,
		Metadata:  req.Metadata,
		Secrets:   sealed,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if conn.Config == nil {
		conn.Config = map[string]any{}
	}

	err = c.persistence.ConnectionRepository().InsertConnection(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}

	c.logger.InfoContext(ctx, "Connection created", "connection_id", conn.ID, "node_type", conn.NodeType)

	return conn.Public(), nil
}

// Get returns the public view of a connection.
func (c *Connections) Get(ctx context.Context, id string) (*models.ConnectionDefinition, error) {
	conn, err := c.persistence.ConnectionRepository().GetConnection(ctx, id)
	if err != nil {
		return nil, err
	}

	return conn.Public(), nil
}

func (c *Connections) List(ctx context.Context, ownerID string) ([]*models.ConnectionDefinition, error) {
	if ownerID == "" {
		return nil, ErrEmptyOwnerID
	}

	conns, err := c.persistence.ConnectionRepository().ListConnectionsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	for i, conn := range conns {
		conns[i] = conn.Public()
	}

	return conns, nil
}

func (c *Connections) Update(ctx context.Context, id string, req UpdateConnectionRequest) (*models.ConnectionDefinition, error) {
	err := c.validate.Struct(req)
	if err != nil {
		return nil, NewValidationError("update connection", "invalid_connection", err.Error(), ErrInvalidRequest)
	}

	patch := persistence.ConnectionPatch{
		Name:     req.Name,
		Config:   req.Config,
		Metadata: req.Metadata,
	}

	if req.Secrets != nil {
		patch.Secrets, err = c.sealer.Seal(req.Secrets)
		if err != nil {
			return nil, fmt.Errorf("failed to seal secrets: %w", err)
		}

		if patch.Secrets == nil {
			patch.Secrets = []byte{}
		}
	}

	if req.Config != nil || req.Secrets != nil {
		status := models.ConnectionStatusConnected
		cleared := ""
		patch.Status = &status
		patch.LastError = &cleared
	}

	err = c.persistence.ConnectionRepository().PatchConnection(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	return c.Get(ctx, id)
}

// Delete removes the connection and its stored OAuth2 token.
func (c *Connections) Delete(ctx context.Context, id string) error {
	err := c.persistence.ConnectionRepository().DeleteConnection(ctx, id)
	if err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "Connection deleted", "connection_id", id)

	return nil
}

// Disconnect marks a connection as disconnected and forgets its token.
func (c *Connections) Disconnect(ctx context.Context, id string) error {
	status := models.ConnectionStatusDisconnected

	err := c.persistence.ConnectionRepository().PatchConnection(ctx, id, persistence.ConnectionPatch{Status: &status})
	if err != nil {
		return err
	}

	err = c.persistence.TokenRepository().DeleteToken(ctx, id)
	if err != nil && !errors.Is(err, persistence.ErrTokenNotFound) {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	return nil
}

// Secrets decrypts the secrets of a connection. Internal use only.
func (c *Connections) Secrets(ctx context.Context, id string) (map[string]string, error) {
	conn, err := c.persistence.ConnectionRepository().GetConnection(ctx, id)
	if err != nil {
		return nil, err
	}

	return c.sealer.Open(conn.Secrets)
}

// MarkError flips the connection to the error state so runs fail fast.
func (c *Connections) MarkError(ctx context.Context, id string, reason string) error {
	status := models.ConnectionStatusError

	err := c.persistence.ConnectionRepository().PatchConnection(ctx, id, persistence.ConnectionPatch{
		Status:    &status,
		LastError: &reason,
	})
	if err != nil {
		return err
	}

	c.logger.WarnContext(ctx, "Connection marked as error", "connection_id", id, "reason", reason)

	return nil
}

func (c *Connections) MarkConnected(ctx context.Context, id string) error {
	status := models.ConnectionStatusConnected
	cleared := ""

	return c.persistence.ConnectionRepository().PatchConnection(ctx, id, persistence.ConnectionPatch{
		Status:    &status,
		LastError: &cleared,
	})
}

// Handler builds the auth handler for a connection from its stored secrets.
func (c *Connections) Handler(ctx context.Context, conn *models.ConnectionDefinition) (auth.Handler, error) {
	secrets, err := c.Secrets(ctx, conn.ID)
	if err != nil {
		return nil, err
	}

	// The stored record is authoritative for config.
	stored, err := c.persistence.ConnectionRepository().GetConnection(ctx, conn.ID)
	if err != nil {
		return nil, err
	}

	return auth.FromConnection(stored, secrets, auth.Dependencies{
		Tokens:     c.persistence.TokenRepository(),
		Clock:      c.clock,
		HTTPClient: c.httpClient,
	})
}

// SaveOAuth2Token stores the token set obtained by an authorization flow.
func (c *Connections) SaveOAuth2Token(ctx context.Context, id string, token *models.OAuth2Token) error {
	_, err := c.persistence.ConnectionRepository().GetConnection(ctx, id)
	if err != nil {
		return err
	}

	token.ConnectionID = id
	token.UpdatedAt = c.clock.Now().UTC()

	err = c.persistence.TokenRepository().SaveToken(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	return c.MarkConnected(ctx, id)
}

// Test sends a GET to config.test_url (or base_url) through the client and
// records the outcome on the connection.
func (c *Connections) Test(ctx context.Context, id string, client Caller) (*models.ConnectionDefinition, error) {
	conn, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	target := conn.ConfigString("test_url")
	if target == "" {
		target = conn.ConfigString("base_url")
	}

	if target == "" {
		return nil, ErrConnectionNotTestable
	}

	req, err := auth.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return nil, NewValidationError("test connection", "invalid_url", err.Error(), ErrInvalidRequest)
	}

	// A connection in error state is retested, not short-circuited.
	conn.Status = models.ConnectionStatusConnected

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err = client.Call(ctx, conn, req)

	switch {
	case err == nil:
		err = c.MarkConnected(ctx, id)
	default:
		err = c.MarkError(ctx, id, err.Error())
	}

	if err != nil {
		return nil, err
	}

	return c.Get(ctx, id)
}
