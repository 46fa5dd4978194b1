package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	svix "github.com/svix/svix-webhooks/go"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/repository"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/service/user"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/pkg/config"
)

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = errors.New("webhook: invalid signature")

const signaturePrefix = "sha256="

// UserEvents consumes verified identity-provider events.
type UserEvents interface {
	HandleClerkEvent(ctx context.Context, event user.ClerkEvent) error
}

// InstallationEvents consumes verified GitHub installation events.
type InstallationEvents interface {
	HandleEvent(ctx context.Context, action string, installationID int64) error
}

// GitHubDelivery carries the headers GitHub sends with every webhook.
type GitHubDelivery struct {
	Event     string
	ID        string
	Signature string
}

// Service verifies inbound webhooks and dispatches them.
type Service struct {
	users         UserEvents
	installations InstallationEvents
	logger        *slog.Logger
	cfg           config.APIConfig
}

// New constructs a webhook service.
func New(users UserEvents, installations InstallationEvents, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{users: users, installations: installations, logger: logger, cfg: cfg}
}

// HandleClerk verifies a svix-signed identity-provider webhook and applies it.
func (s Service) HandleClerk(ctx context.Context, payload []byte, headers http.Header) error {
	if strings.TrimSpace(s.cfg.ClerkWebhookSecret) == "" {
		s.logger.Error("clerk webhook secret not configured")
		return fmt.Errorf("%w: signing secret not configured", ErrInvalidSignature)
	}
	verifier, err := svix.NewWebhook(s.cfg.ClerkWebhookSecret)
	if err != nil {
		return fmt.Errorf("configure clerk verifier: %w", err)
	}
	if err := verifier.Verify(payload, headers); err != nil {
		s.logger.Warn("clerk webhook verification failed", "error", err)
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	var event user.ClerkEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("%w: malformed clerk payload", repository.ErrInvalidArgument)
	}
	s.logger.Info("processing clerk webhook", "event", event.Type, "svix_id", headers.Get("svix-id"))
	return s.users.HandleClerkEvent(ctx, event)
}

// HandleGitHub verifies a GitHub webhook and applies installation events.
// Other event types are acknowledged without action.
func (s Service) HandleGitHub(ctx context.Context, delivery GitHubDelivery, payload []byte) error {
	if delivery.Event == "" || delivery.ID == "" || delivery.Signature == "" {
		return fmt.Errorf("%w: missing github webhook headers", repository.ErrInvalidArgument)
	}
	if err := ValidateSignature(payload, []byte(s.cfg.GitHubWebhookSecret), delivery.Signature); err != nil {
		s.logger.Warn("github webhook verification failed", "delivery", delivery.ID, "error", err)
		return err
	}
	s.logger.Info("processing github webhook", "event", delivery.Event, "delivery", delivery.ID)
	if delivery.Event != "installation" {
		return nil
	}
	var body struct {
		Action       string `json:"action"`
		Installation struct {
			ID int64 `json:"id"`
		} `json:"installation"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return fmt.Errorf("%w: malformed github payload", repository.ErrInvalidArgument)
	}
	if body.Installation.ID == 0 {
		return fmt.Errorf("%w: installation id missing", repository.ErrInvalidArgument)
	}
	return s.installations.HandleEvent(ctx, body.Action, body.Installation.ID)
}

// ValidateSignature checks a GitHub X-Hub-Signature-256 header against payload.
func ValidateSignature(payload []byte, secret []byte, provided string) error {
	if len(secret) == 0 {
		return fmt.Errorf("%w: signing secret not configured", ErrInvalidSignature)
	}
	if !strings.HasPrefix(provided, signaturePrefix) {
		return fmt.Errorf("%w: unexpected signature format", ErrInvalidSignature)
	}
	hasher := hmac.New(sha256.New, secret)
	hasher.Write(payload)
	expected := hex.EncodeToString(hasher.Sum(nil))
	if !hmac.Equal([]byte(strings.TrimPrefix(provided, signaturePrefix)), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign computes the X-Hub-Signature-256 value for payload.
func Sign(payload []byte, secret []byte) string {
	hasher := hmac.New(sha256.New, secret)
	hasher.Write(payload)
	return signaturePrefix + hex.EncodeToString(hasher.Sum(nil))
}
