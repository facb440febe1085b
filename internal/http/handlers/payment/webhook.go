// Package payment реализует HTTP-обработчик вебхука подтверждения платежа.
//
// Платформа подписывает тело запроса HMAC-SHA256 и передаёт подпись
// в заголовке X-Api-Signature. Подтверждение несёт только payload —
// вид действия хранится на сервере с момента выставления счёта.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/anon-questions/internal/http/response"
	"github.com/magabrotheeeer/anon-questions/internal/lib/sl"
)

// Reconciler описывает сведение подтверждения платежа.
type Reconciler interface {
	OnPaymentConfirmed(ctx context.Context, payerID int64, amount int, payload string) (string, error)
}

// Request — подтверждение платежа от платёжной платформы.
type Request struct {
	PayerID int64  `json:"payer_id" validate:"required"`
	Amount  int    `json:"amount" validate:"required"`
	Payload string `json:"payload" validate:"required,uuid"`
}

// Handler управляет HTTP-запросами вебхука платежей.
type Handler struct {
	log        *slog.Logger
	reconciler Reconciler
	secret     string
	validate   *validator.Validate
}

// New создает новый Handler с переданными зависимостями.
func New(log *slog.Logger, reconciler Reconciler, secret string) *Handler {
	return &Handler{
		log:        log,
		reconciler: reconciler,
		secret:     secret,
		validate:   validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if !h.verifySignature(body, r.Header.Get("X-Api-Signature")) {
		log.Error("invalid webhook signature")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid signature"))
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	outcome, err := h.reconciler.OnPaymentConfirmed(r.Context(), req.PayerID, req.Amount, req.Payload)
	if err != nil {
		log.Error("failed to reconcile payment", sl.Err(err))
		// Платформа повторит доставку по не-2xx ответу.
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not process payment"))
		return
	}

	log.Info("payment confirmation processed", slog.String("outcome", outcome))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"outcome": outcome,
	}))
}

func (h *Handler) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
