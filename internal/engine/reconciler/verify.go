package reconciler

import (
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	apperrors "praxis/internal/pkg/errors"
)

// Verifier authenticates webhook deliveries with the shared secret.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

func (v *Verifier) Configured() bool {
	return strings.TrimSpace(v.secret) != ""
}

// Verify checks the signature header and returns the decoded envelope.
// Every failure wraps ErrWebhookSignatureInvalid.
func (v *Verifier) Verify(payload []byte, signature string) (stripe.Event, error) {
	if !v.Configured() {
		return stripe.Event{}, fmt.Errorf("%w: no webhook secret configured", apperrors.ErrWebhookSignatureInvalid)
	}
	if strings.TrimSpace(signature) == "" {
		return stripe.Event{}, fmt.Errorf("%w: missing signature", apperrors.ErrWebhookSignatureInvalid)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", apperrors.ErrWebhookSignatureInvalid, err)
	}
	return event, nil
}
