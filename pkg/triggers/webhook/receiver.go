// Package webhook receives triggers pushed over HTTP, optionally signed with
// an HMAC-SHA256 shared secret.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/triggers"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// SignatureHeader carries "sha256=<hex hmac of the raw body>".
const SignatureHeader = "X-Signature"

const signaturePrefix = "sha256="

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)

// Enqueuer hands a trigger to a background consumer instead of running it
// inline.
type Enqueuer interface {
	Enqueue(ctx context.Context, trigger models.Trigger) error
}

// Receipt describes what happened to an accepted webhook.
type Receipt struct {
	TriggerID string              `json:"trigger_id,omitempty"`
	Queued    bool                `json:"queued"`
	Runs      []*models.RunResult `json:"runs,omitempty"`
}

type Receiver struct {
	logger        *slog.Logger
	processor     triggers.Processor
	enqueuer      Enqueuer
	clock         clockwork.Clock
	secrets       map[string]string
	defaultSecret string
}

type Option func(*Receiver)

// WithSecret requires signatures for one integration.
func WithSecret(integrationID, secret string) Option {
	return func(r *Receiver) { r.secrets[integrationID] = secret }
}

// WithDefaultSecret requires signatures for integrations without their own secret.
func WithDefaultSecret(secret string) Option {
	return func(r *Receiver) { r.defaultSecret = secret }
}

// WithEnqueuer makes Receive queue triggers instead of running them.
func WithEnqueuer(enqueuer Enqueuer) Option {
	return func(r *Receiver) { r.enqueuer = enqueuer }
}

func WithClock(clock clockwork.Clock) Option {
	return func(r *Receiver) { r.clock = clock }
}

func NewReceiver(logger *slog.Logger, processor triggers.Processor, opts ...Option) *Receiver {
	r := &Receiver{
		logger:    logger.With("module", "webhook_receiver"),
		processor: processor,
		clock:     clockwork.NewRealClock(),
		secrets:   make(map[string]string),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Sign returns the header value for body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature when a secret applies to the integration.
func (r *Receiver) Verify(integrationID string, body []byte, signature string) error {
	secret, ok := r.secrets[integrationID]
	if !ok {
		secret = r.defaultSecret
	}

	if secret == "" {
		return nil
	}

	if signature == "" {
		return ErrMissingSignature
	}

	if !strings.HasPrefix(signature, signaturePrefix) {
		return ErrInvalidSignature
	}

	got, err := hex.DecodeString(strings.TrimPrefix(signature, signaturePrefix))
	if err != nil {
		return ErrInvalidSignature
	}

	want, _ := hex.DecodeString(strings.TrimPrefix(Sign(secret, body), signaturePrefix))
	if !hmac.Equal(got, want) {
		return ErrInvalidSignature
	}

	return nil
}

// ParsePayload decodes the body into trigger data. Non-object JSON is
// wrapped under "payload"; an empty body yields empty data.
func ParsePayload(body []byte) (map[string]any, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return map[string]any{}, nil
	}

	var decoded any

	err := json.Unmarshal(body, &decoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	if obj, ok := decoded.(map[string]any); ok {
		return obj, nil
	}

	return map[string]any{"payload": decoded}, nil
}

// Receive verifies, decodes and dispatches one webhook call.
func (r *Receiver) Receive(ctx context.Context, integrationID, triggerType string, body []byte, signature string) (*Receipt, error) {
	err := r.Verify(integrationID, body, signature)
	if err != nil {
		r.logger.WarnContext(ctx, "Rejected webhook", "integration_id", integrationID, "error", err)

		return nil, err
	}

	data, err := ParsePayload(body)
	if err != nil {
		return nil, err
	}

	trigger := models.Trigger{
		ID:            uuid.New().String(),
		IntegrationID: integrationID,
		TriggerType:   triggerType,
		Data:          data,
		ReceivedAt:    r.clock.Now().UTC(),
	}

	if r.enqueuer != nil {
		err := r.enqueuer.Enqueue(ctx, trigger)
		if err != nil {
			return nil, fmt.Errorf("failed to enqueue trigger: %w", err)
		}

		r.logger.InfoContext(ctx, "Queued webhook trigger",
			"integration_id", integrationID, "trigger_type", triggerType, "trigger_id", trigger.ID)

		return &Receipt{TriggerID: trigger.ID, Queued: true}, nil
	}

	runs, err := triggers.Dispatch(ctx, r.logger, r.processor, integrationID, triggerType, data)
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{Runs: runs}
	if len(runs) > 0 {
		receipt.TriggerID = runs[0].TriggerID
	}

	return receipt, nil
}
