package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/anon-questions/internal/services/reconciler"
)

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) OnPaymentConfirmed(ctx context.Context, payerID int64, amount int, payload string) (string, error) {
	args := m.Called(ctx, payerID, amount, payload)
	return args.String(0), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHandler_ServeHTTP(t *testing.T) {
	const secret = "test-secret"
	validBody := `{"payer_id":100,"amount":135,"payload":"33333333-3333-3333-3333-333333333333"}`

	tests := []struct {
		name           string
		body           string
		signature      string
		setupMocks     func(*MockReconciler)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:      "valid confirmation is reconciled",
			body:      validBody,
			signature: sign(secret, validBody),
			setupMocks: func(r *MockReconciler) {
				r.On("OnPaymentConfirmed", mock.Anything, int64(100), 135,
					"33333333-3333-3333-3333-333333333333").
					Return(reconciler.OutcomeGranted, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"outcome":"granted"`,
		},
		{
			name:           "invalid signature is rejected",
			body:           validBody,
			signature:      "deadbeef",
			setupMocks:     func(_ *MockReconciler) {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `invalid signature`,
		},
		{
			name:           "missing signature is rejected",
			body:           validBody,
			signature:      "",
			setupMocks:     func(_ *MockReconciler) {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `invalid signature`,
		},
		{
			name:           "payload must be a uuid",
			body:           `{"payer_id":100,"amount":135,"payload":"not-a-uuid"}`,
			signature:      sign(secret, `{"payer_id":100,"amount":135,"payload":"not-a-uuid"}`),
			setupMocks:     func(_ *MockReconciler) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `Payload`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := new(MockReconciler)
			tt.setupMocks(rec)

			handler := New(newNoopLogger(), rec, secret)

			req := httptest.NewRequest(http.MethodPost, "/events/payment", strings.NewReader(tt.body))
			if tt.signature != "" {
				req.Header.Set("X-Api-Signature", tt.signature)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			rec.AssertExpectations(t)
		})
	}
}
