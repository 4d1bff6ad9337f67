package handlers

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"praxis/internal/engine/reconciler"
	"praxis/internal/pkg/errors"
)

const maxWebhookBody = 64 << 10

// WebhookProcessor verifies and applies one gateway delivery.
type WebhookProcessor interface {
	Handle(ctx context.Context, payload []byte, signature string) (reconciler.Result, error)
}

type WebhookHandler struct {
	processor WebhookProcessor
}

func NewWebhookHandler(processor WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{processor: processor}
}

// Stripe answers the gateway. Anything but a 2xx makes the gateway retry,
// so only bad signatures and store failures are reported as errors.
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		errors.WriteError(w, http.StatusRequestEntityTooLarge, errors.ErrCodeInvalidInput, "Payload too large or unreadable", nil)
		return
	}

	res, err := h.processor.Handle(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if stderrors.Is(err, errors.ErrWebhookSignatureInvalid) {
			errors.WriteDomainError(w, err)
			return
		}
		log.Error().Err(err).Str("event_id", res.EventID).Msg("webhook processing failed")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Webhook processing failed", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"received": "true",
		"event_id": res.EventID,
		"outcome":  string(res.Outcome),
	})
}
