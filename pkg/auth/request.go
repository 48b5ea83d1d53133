// Package auth applies connection credentials to outbound API requests.
package auth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
)

// Request describes an outbound HTTP call before credentials are applied.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
}

// NewRequest builds a request descriptor from a raw URL.
func NewRequest(method, rawURL string, body []byte) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid request url %q: %w", rawURL, err)
	}

	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid request url %q: scheme and host are required", rawURL)
	}

	if method == "" {
		method = http.MethodGet
	}

	return &Request{
		Method: method,
		URL:    u,
		Header: make(http.Header),
		Body:   body,
	}, nil
}

// Clone returns a deep copy so handlers never mutate the caller's request.
func (r *Request) Clone() *Request {
	c := &Request{
		Method: r.Method,
		Header: r.Header.Clone(),
		Body:   slices.Clone(r.Body),
	}

	if c.Header == nil {
		c.Header = make(http.Header)
	}

	if r.URL != nil {
		u := *r.URL
		if r.URL.User != nil {
			user := *r.URL.User
			u.User = &user
		}

		c.URL = &u
	}

	return c
}

// SetQuery sets a query parameter on the request URL.
func (r *Request) SetQuery(key, value string) {
	q := r.URL.Query()
	q.Set(key, value)
	r.URL.RawQuery = q.Encode()
}

// HTTPRequest materializes the descriptor as a *http.Request.
func (r *Request) HTTPRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build http request: %w", err)
	}

	req.Header = r.Header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}

	return req, nil
}
