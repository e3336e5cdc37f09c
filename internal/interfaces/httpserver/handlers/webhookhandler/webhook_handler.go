package webhookhandler

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	svix "github.com/svix/svix-webhooks/go"

	"chat-server/internal/domain/user"
	"chat-server/internal/infrastructure/metrics"
	"chat-server/internal/interfaces/httpserver/responses"
	"chat-server/internal/utils/platformerrors"
)

// WebhookHandler receives identity provider lifecycle events. Payloads are
// authenticated by svix signature before any processing happens.
type WebhookHandler struct {
	verifier *svix.Webhook
	sync     *user.SyncService
	log      zerolog.Logger
}

// NewWebhookHandler creates a webhook handler with the given signing secret.
func NewWebhookHandler(signingSecret string, sync *user.SyncService, log zerolog.Logger) (*WebhookHandler, error) {
	verifier, err := svix.NewWebhook(signingSecret)
	if err != nil {
		return nil, err
	}
	return &WebhookHandler{
		verifier: verifier,
		sync:     sync,
		log:      log.With().Str("component", "webhook-handler").Logger(),
	}, nil
}

type emailAddress struct {
	EmailAddress string `json:"email_address"`
}

type identityPayload struct {
	ID             string         `json:"id"`
	EmailAddresses []emailAddress `json:"email_addresses"`
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	ImageURL       string         `json:"image_url"`
}

type identityEnvelope struct {
	Type string          `json:"type"`
	Data identityPayload `json:"data"`
}

// HandleIdentityEvent verifies and applies one identity lifecycle event.
// Missing or invalid signature headers are rejected with 400 so the provider
// retries; processing failures return 500 for the same reason.
func (h *WebhookHandler) HandleIdentityEvent(c *gin.Context) {
	if c.GetHeader("svix-id") == "" || c.GetHeader("svix-timestamp") == "" || c.GetHeader("svix-signature") == "" {
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "missing svix headers", "6b2f8e0d-3c9a-4d51-b7e4-1a5c9f2d8b36")
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "unreadable payload", "d4a7c2e9-8f1b-4a63-95d0-2e6b8c4f1a07")
		return
	}

	if err := h.verifier.Verify(payload, c.Request.Header); err != nil {
		h.log.Warn().Err(err).Msg("webhook signature verification failed")
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "invalid webhook signature", "f1e8b5c2-7d4a-4b96-8032-9c5e1f7a3d68")
		return
	}

	var envelope identityEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "malformed webhook payload", "a9c4e7f2-1b8d-4c35-96a0-5d2f8e1b4c79")
		return
	}

	event := user.LifecycleEvent{
		Type:    envelope.Type,
		ID:      envelope.Data.ID,
		Email:   primaryEmail(envelope.Data.EmailAddresses),
		Name:    strings.TrimSpace(envelope.Data.FirstName + " " + envelope.Data.LastName),
		Picture: envelope.Data.ImageURL,
	}

	if err := h.sync.Apply(c.Request.Context(), event); err != nil {
		h.log.Error().Err(err).Str("event", envelope.Type).Msg("webhook processing failed")
		metrics.WebhookEventsTotal.WithLabelValues(envelope.Type, "error").Inc()
		responses.HandleError(c, err, "failed to process webhook event")
		return
	}

	metrics.WebhookEventsTotal.WithLabelValues(envelope.Type, "ok").Inc()
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func primaryEmail(addresses []emailAddress) string {
	if len(addresses) == 0 {
		return ""
	}
	return addresses[0].EmailAddress
}
