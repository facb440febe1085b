// Package stats реализует HTTP-обработчик агрегатов личного кабинета.
// Идентификатор пользователя берётся из JWT, проверенного middleware.
package stats

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/anon-questions/internal/http/middlewarectx"
	"github.com/magabrotheeeer/anon-questions/internal/http/response"
	"github.com/magabrotheeeer/anon-questions/internal/lib/sl"
	"github.com/magabrotheeeer/anon-questions/internal/models"
)

// Exchange описывает чтение агрегатов кабинета.
type Exchange interface {
	Stats(ctx context.Context, id int64) (*models.Stats, error)
}

// Handler управляет HTTP-запросами агрегатов кабинета.
type Handler struct {
	log      *slog.Logger
	exchange Exchange
}

// New создает новый Handler с переданными зависимостями.
func New(log *slog.Logger, exchangeSvc Exchange) *Handler {
	return &Handler{log: log, exchange: exchangeSvc}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.stats"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	identityID, ok := r.Context().Value(middlewarectx.IdentityID).(int64)
	if !ok {
		log.Error("identity id missing in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	stats, err := h.exchange.Stats(r.Context(), identityID)
	if err != nil {
		log.Error("failed to load stats", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not load stats"))
		return
	}

	render.JSON(w, r, response.OKWithData(stats))
}
