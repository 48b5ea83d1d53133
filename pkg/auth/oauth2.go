package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"
)

// DefaultExpirySkew refreshes tokens slightly before they expire.
const DefaultExpirySkew = 30 * time.Second

// TokenStorage persists OAuth2 token sets per connection.
type TokenStorage interface {
	GetToken(ctx context.Context, connectionID string) (*models.OAuth2Token, error)
	SaveToken(ctx context.Context, token *models.OAuth2Token) error
}

// Refresher exchanges a refresh token for a new token set.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// ConfigRefresher refreshes tokens against the token endpoint of an oauth2.Config.
type ConfigRefresher struct {
	Config     *oauth2.Config
	HTTPClient *http.Client
}

func (r *ConfigRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if r.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.HTTPClient)
	}

	// An empty access token forces the token source to hit the endpoint.
	source := r.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	return source.Token()
}

// OAuth2Handler injects a bearer access token, refreshing it once when the
// stored token is expired.
type OAuth2Handler struct {
	ConnectionID string
	Storage      TokenStorage
	Refresher    Refresher
	Skew         time.Duration
	Clock        clockwork.Clock

	mu sync.Mutex
}

func (h *OAuth2Handler) Scheme() string { return "oauth2" }

func (h *OAuth2Handler) Apply(ctx context.Context, req *Request) (*Request, error) {
	token, err := h.validToken(ctx)
	if err != nil {
		return nil, err
	}

	out := req.Clone()

	tokenType := token.TokenType
	if tokenType == "" || tokenType == "bearer" {
		tokenType = "Bearer"
	}

	out.Header.Set("Authorization", tokenType+" "+token.AccessToken)

	return out, nil
}

func (h *OAuth2Handler) validToken(ctx context.Context) (*models.OAuth2Token, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	token, err := h.Storage.GetToken(ctx, h.ConnectionID)
	if err != nil {
		return nil, &AuthenticationError{Scheme: h.Scheme(), Reason: "no stored token", Err: err}
	}

	if !token.ExpiredAt(h.clock().Now(), h.skew()) && token.AccessToken != "" {
		return token, nil
	}

	if token.RefreshToken == "" {
		return nil, &AuthenticationError{Scheme: h.Scheme(), Reason: "token expired and no refresh token is stored", Err: ErrMissingCredential}
	}

	if h.Refresher == nil {
		return nil, &AuthenticationError{Scheme: h.Scheme(), Reason: "token expired and no token endpoint is configured", Err: ErrMissingCredential}
	}

	refreshed, err := h.Refresher.Refresh(ctx, token.RefreshToken)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode != "" {
			return nil, &AuthenticationError{Scheme: h.Scheme(), Reason: "refresh rejected: " + retrieveErr.ErrorCode, Err: err}
		}

		return nil, &AuthenticationError{Scheme: h.Scheme(), Reason: "refresh failed", Err: err}
	}

	updated := &models.OAuth2Token{
		ConnectionID: h.ConnectionID,
		AccessToken:  refreshed.AccessToken,
		RefreshToken: refreshed.RefreshToken,
		TokenType:    refreshed.TokenType,
		ExpiresAt:    refreshed.Expiry,
		UpdatedAt:    h.clock().Now(),
	}

	// Providers may omit the refresh token when it did not rotate.
	if updated.RefreshToken == "" {
		updated.RefreshToken = token.RefreshToken
	}

	err = h.Storage.SaveToken(ctx, updated)
	if err != nil {
		return nil, &AuthenticationError{Scheme: h.Scheme(), Reason: "failed to persist refreshed token", Err: err}
	}

	return updated, nil
}

func (h *OAuth2Handler) skew() time.Duration {
	if h.Skew == 0 {
		return DefaultExpirySkew
	}

	return h.Skew
}

func (h *OAuth2Handler) clock() clockwork.Clock {
	if h.Clock == nil {
		return clockwork.NewRealClock()
	}

	return h.Clock
}
