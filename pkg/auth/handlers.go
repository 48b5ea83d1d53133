package auth

import (
	"context"
	"encoding/base64"
)

// Handler injects credentials into a request. Implementations return a new
// request and leave the input untouched.
type Handler interface {
	Scheme() string
	Apply(ctx context.Context, req *Request) (*Request, error)
}

// NoAuthHandler passes requests through unchanged.
type NoAuthHandler struct{}

func (NoAuthHandler) Scheme() string { return "none" }

func (NoAuthHandler) Apply(_ context.Context, req *Request) (*Request, error) {
	return req.Clone(), nil
}

// BasicAuthHandler sends an RFC 7617 Authorization header.
type BasicAuthHandler struct {
	Username string
	Password string
}

func (h *BasicAuthHandler) Scheme() string { return "basic" }

func (h *BasicAuthHandler) Apply(_ context.Context, req *Request) (*Request, error) {
	if h.Username == "" {
		return nil, &AuthenticationError{Scheme: h.Scheme(), Reason: "username is empty", Err: ErrMissingCredential}
	}

	out := req.Clone()
	credentials := base64.StdEncoding.EncodeToString([]byte(h.Username + ":" + h.Password))
	out.Header.Set("Authorization", "Basic "+credentials)

	return out, nil
}

// APIKeyLocation selects where an API key is placed.
type APIKeyLocation string

const (
	APIKeyInHeader APIKeyLocation = "header"
	APIKeyInQuery  APIKeyLocation = "query"
)

// APIKeyHandler places a static key in a header or query parameter.
type APIKeyHandler struct {
	Key      string
	Name     string // Header or query parameter name
	Location APIKeyLocation
	Prefix   string // Optional value prefix, e.g. "Bot "
}

func (h *APIKeyHandler) Scheme() string { return "api_key" }

func (h *APIKeyHandler) Apply(_ context.Context, req *Request) (*Request, error) {
	if h.Key == "" {
		return nil, &AuthenticationError{Scheme: h.Scheme(), Reason: "api key is empty", Err: ErrMissingCredential}
	}

	out := req.Clone()

	name := h.Name
	if h.Location == APIKeyInQuery {
		if name == "" {
			name = "api_key"
		}

		out.SetQuery(name, h.Prefix+h.Key)

		return out, nil
	}

	if name == "" {
		name = "X-API-Key"
	}

	out.Header.Set(name, h.Prefix+h.Key)

	return out, nil
}

// BearerTokenHandler sends a static bearer token.
type BearerTokenHandler struct {
	Token string
}

func (h *BearerTokenHandler) Scheme() string { return "bearer" }

func (h *BearerTokenHandler) Apply(_ context.Context, req *Request) (*Request, error) {
	if h.Token == "" {
		return nil, &AuthenticationError{Scheme: h.Scheme(), Reason: "token is empty", Err: ErrMissingCredential}
	}

	out := req.Clone()
	out.Header.Set("Authorization", "Bearer "+h.Token)

	return out, nil
}
