package auth

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/dukex/conduit/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRequest(t *testing.T) *Request {
	t.Helper()

	req, err := NewRequest("POST", "https://api.example.com/v1/items?page=2", []byte(`{"a":1}`))
	require.NoError(t, err)

	req.Header.Set("Content-Type", "application/json")

	return req
}

func TestNewRequest_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := NewRequest("GET", "/relative/path", nil)
	require.Error(t, err)

	req, err := NewRequest("", "https://example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, "GET", req.Method)
}

func TestHandlers_DoNotMutateInput(t *testing.T) {
	t.Parallel()

	handlers := []Handler{
		NoAuthHandler{},
		&BasicAuthHandler{Username: "admin", Password: "app-password"},
		&APIKeyHandler{Key: "k", Location: APIKeyInQuery},
		&APIKeyHandler{Key: "k", Name: "Authorization", Prefix: "Bot "},
		&BearerTokenHandler{Token: "t"},
		&CustomAuthHandler{Method: &HMACSigner{Secret: []byte("s")}},
	}

	for _, handler := range handlers {
		t.Run(handler.Scheme(), func(t *testing.T) {
			t.Parallel()

			req := newTestRequest(t)
			before := req.Clone()

			out, err := handler.Apply(context.Background(), req)
			require.NoError(t, err)
			require.NotSame(t, req, out)

			assert.Equal(t, before.Header, req.Header)
			assert.Equal(t, before.URL.String(), req.URL.String())
			assert.Equal(t, before.Body, req.Body)
		})
	}
}

func TestBasicAuthHandler(t *testing.T) {
	t.Parallel()

	out, err := (&BasicAuthHandler{Username: "admin", Password: "secret"}).Apply(context.Background(), newTestRequest(t))
	require.NoError(t, err)

	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:secret"))
	assert.Equal(t, expected, out.Header.Get("Authorization"))
	assert.Equal(t, "application/json", out.Header.Get("Content-Type"))

	_, err = (&BasicAuthHandler{}).Apply(context.Background(), newTestRequest(t))
	assert.True(t, IsAuthenticationError(err))
}

func TestAPIKeyHandler(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	out, err := (&APIKeyHandler{Key: "abc"}).Apply(ctx, newTestRequest(t))
	require.NoError(t, err)
	assert.Equal(t, "abc", out.Header.Get("X-API-Key"))

	out, err = (&APIKeyHandler{Key: "abc", Name: "token", Location: APIKeyInQuery}).Apply(ctx, newTestRequest(t))
	require.NoError(t, err)
	assert.Equal(t, "abc", out.URL.Query().Get("token"))
	assert.Equal(t, "2", out.URL.Query().Get("page"))

	_, err = (&APIKeyHandler{}).Apply(ctx, newTestRequest(t))
	assert.True(t, IsAuthenticationError(err))
}

func TestBearerTokenHandler(t *testing.T) {
	t.Parallel()

	out, err := (&BearerTokenHandler{Token: "xyz"}).Apply(context.Background(), newTestRequest(t))
	require.NoError(t, err)
	assert.Equal(t, "Bearer xyz", out.Header.Get("Authorization"))
}

func TestFromConnection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		auth     map[string]any
		secrets  map[string]string
		scheme   string
		wantErr  bool
		withDeps bool
	}{
		{name: "default none", scheme: "none"},
		{name: "basic", auth: map[string]any{"type": "basic", "username": "admin"}, secrets: map[string]string{"password": "p"}, scheme: "basic"},
		{name: "api key", auth: map[string]any{"type": "api_key", "location": "query"}, secrets: map[string]string{"api_key": "k"}, scheme: "api_key"},
		{name: "bearer", auth: map[string]any{"type": "bearer"}, secrets: map[string]string{"token": "t"}, scheme: "bearer"},
		{name: "oauth2", auth: map[string]any{"type": "oauth2", "token_url": "https://example.com/token"}, scheme: "oauth2", withDeps: true},
		{name: "oauth2 without storage", auth: map[string]any{"type": "oauth2"}, wantErr: true},
		{name: "hmac", auth: map[string]any{"type": "hmac"}, secrets: map[string]string{"signing_secret": "s"}, scheme: "custom:hmac"},
		{name: "sigv4", auth: map[string]any{"type": "aws_sigv4", "region": "us-east-1", "service": "s3"}, scheme: "custom:aws_sigv4"},
		{name: "jwt", auth: map[string]any{"type": "jwt", "ttl_seconds": float64(60)}, scheme: "custom:jwt"},
		{name: "unknown", auth: map[string]any{"type": "kerberos"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			conn := &models.ConnectionDefinition{ID: "c1", Config: map[string]any{}}
			if tt.auth != nil {
				conn.Config["auth"] = tt.auth
			}

			deps := Dependencies{}
			if tt.withDeps {
				deps.Tokens = newMemoryTokens()
			}

			handler, err := FromConnection(conn, tt.secrets, deps)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.scheme, handler.Scheme())
		})
	}
}
