// Package callback реализует HTTP-обработчик нажатий инлайн-кнопок.
//
// Поддерживаются действия "ask" (старт диалога "задать вопрос"),
// "like:<id>" (лайк вопроса) и "buy:<вид>" (выставление счёта на покупку).
package callback

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/anon-questions/internal/http/response"
	"github.com/magabrotheeeer/anon-questions/internal/lib/sl"
	"github.com/magabrotheeeer/anon-questions/internal/models"
	"github.com/magabrotheeeer/anon-questions/internal/services/exchange"
)

// AskFlow описывает старт диалога "задать вопрос".
type AskFlow interface {
	Start(ctx context.Context, identityID int64) (string, error)
}

// Exchange описывает лайк вопроса.
type Exchange interface {
	Like(ctx context.Context, questionID int64) error
}

// Invoicer описывает выставление счёта на покупку.
type Invoicer interface {
	CreateInvoice(ctx context.Context, userID int64, kind string, pctx *models.PurchaseContext) (*models.Invoice, error)
}

// Request — нажатие инлайн-кнопки от шлюза бота.
type Request struct {
	IdentityID int64  `json:"identity_id" validate:"required"`
	Action     string `json:"action" validate:"required"`
}

// Handler управляет HTTP-запросами нажатий инлайн-кнопок.
type Handler struct {
	log      *slog.Logger
	flow     AskFlow
	exchange Exchange
	invoicer Invoicer
	validate *validator.Validate
}

// New создает новый Handler с переданными зависимостями.
func New(log *slog.Logger, flow AskFlow, exchangeSvc Exchange, invoicer Invoicer) *Handler {
	return &Handler{
		log:      log,
		flow:     flow,
		exchange: exchangeSvc,
		invoicer: invoicer,
		validate: validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.callback"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
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

	switch {
	case req.Action == "ask":
		h.handleAsk(w, r, log, req.IdentityID)
	case strings.HasPrefix(req.Action, "like:"):
		h.handleLike(w, r, log, strings.TrimPrefix(req.Action, "like:"))
	case strings.HasPrefix(req.Action, "buy:"):
		h.handleBuy(w, r, log, req.IdentityID, strings.TrimPrefix(req.Action, "buy:"))
	default:
		log.Error("unknown callback action", slog.String("action", req.Action))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("unknown action"))
	}
}

func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request, log *slog.Logger, identityID int64) {
	prompt, err := h.flow.Start(r.Context(), identityID)
	if err != nil {
		log.Error("failed to start ask flow", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not start ask flow"))
		return
	}
	render.JSON(w, r, response.OKWithData(map[string]any{
		"reply_text": prompt,
	}))
}

func (h *Handler) handleLike(w http.ResponseWriter, r *http.Request, log *slog.Logger, rawID string) {
	questionID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		log.Error("invalid question id in like action", slog.String("raw", rawID))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid question id"))
		return
	}

	if err := h.exchange.Like(r.Context(), questionID); err != nil {
		if errors.Is(err, exchange.ErrNoMatch) {
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("question not found"))
			return
		}
		log.Error("failed to like question", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not like question"))
		return
	}
	render.JSON(w, r, response.OK())
}

func (h *Handler) handleBuy(w http.ResponseWriter, r *http.Request, log *slog.Logger, identityID int64, kind string) {
	switch kind {
	case models.KindSubMonth, models.KindSubYear, models.KindSubLifetime, models.KindPriorityBump:
	default:
		log.Error("unknown purchase kind in buy action", slog.String("kind", kind))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("unknown purchase kind"))
		return
	}

	if _, err := h.invoicer.CreateInvoice(r.Context(), identityID, kind, nil); err != nil {
		log.Error("failed to create invoice", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not create invoice"))
		return
	}
	render.JSON(w, r, response.OK())
}
