package memory

import (
	"context"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
)

type tokenRepository struct {
	p *Persistence
}

func (r *tokenRepository) GetToken(_ context.Context, connectionID string) (*models.OAuth2Token, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	token, ok := r.p.tokens[connectionID]
	if !ok {
		return nil, persistence.NewRecordError("GetToken", "oauth2 token", connectionID, persistence.ErrTokenNotFound)
	}

	cp := *token

	return &cp, nil
}

func (r *tokenRepository) SaveToken(_ context.Context, token *models.OAuth2Token) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	cp := *token
	r.p.tokens[token.ConnectionID] = &cp

	return nil
}

func (r *tokenRepository) DeleteToken(_ context.Context, connectionID string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	delete(r.p.tokens, connectionID)

	return nil
}
