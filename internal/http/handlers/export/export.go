// Package export реализует HTTP-обработчик заказа экспорта данных:
// кабинет запрашивает выгрузку, сервис выставляет счёт.
package export

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

// Invoicer описывает выставление счёта за экспорт.
type Invoicer interface {
	CreateInvoice(ctx context.Context, userID int64, kind string, pctx *models.PurchaseContext) (*models.Invoice, error)
}

// Handler управляет HTTP-запросами заказа экспорта.
type Handler struct {
	log      *slog.Logger
	invoicer Invoicer
}

// New создает новый Handler с переданными зависимостями.
func New(log *slog.Logger, invoicer Invoicer) *Handler {
	return &Handler{log: log, invoicer: invoicer}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.export"
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

	invoice, err := h.invoicer.CreateInvoice(r.Context(), identityID, models.KindDataExport, nil)
	if err != nil {
		log.Error("failed to create export invoice", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not create invoice"))
		return
	}

	log.Info("export invoice created", slog.Int64("identity_id", identityID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"payload": invoice.Payload,
		"amount":  invoice.Amount,
	}))
}
