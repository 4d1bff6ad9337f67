package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"praxis/internal/engine/reconciler"
	apperrors "praxis/internal/pkg/errors"
)

type stubProcessor struct {
	res       reconciler.Result
	err       error
	signature string
	payload   string
}

func (p *stubProcessor) Handle(ctx context.Context, payload []byte, signature string) (reconciler.Result, error) {
	p.payload = string(payload)
	p.signature = signature
	return p.res, p.err
}

func TestWebhookHandler(t *testing.T) {
	tests := []struct {
		name       string
		res        reconciler.Result
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "applied", res: reconciler.Result{Outcome: reconciler.OutcomeApplied, EventID: "evt_1"}, wantStatus: http.StatusOK},
		{name: "unmatched is acknowledged", res: reconciler.Result{Outcome: reconciler.OutcomeUnmatched, EventID: "evt_2"}, wantStatus: http.StatusOK},
		{name: "bad signature", err: fmt.Errorf("%w: mismatch", apperrors.ErrWebhookSignatureInvalid), wantStatus: http.StatusBadRequest, wantCode: apperrors.ErrCodeInvalidSignature},
		{name: "store failure", err: fmt.Errorf("database is locked"), wantStatus: http.StatusInternalServerError, wantCode: apperrors.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &stubProcessor{res: tt.res, err: tt.err}
			h := NewWebhookHandler(proc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(`{"id":"evt"}`))
			req.Header.Set("Stripe-Signature", "t=1,v1=abc")
			rr := httptest.NewRecorder()
			h.Stripe(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "t=1,v1=abc", proc.signature)
			assert.Equal(t, `{"id":"evt"}`, proc.payload)

			if tt.wantCode != "" {
				var body apperrors.ErrorResponse
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
				assert.Equal(t, tt.wantCode, body.Code)
				return
			}
			var body map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, string(tt.res.Outcome), body["outcome"])
		})
	}
}

func TestWebhookHandlerRejectsOversizedBody(t *testing.T) {
	h := NewWebhookHandler(&stubProcessor{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(strings.Repeat("x", maxWebhookBody+1)))
	rr := httptest.NewRecorder()
	h.Stripe(rr, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}
