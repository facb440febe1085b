// Package questions реализует HTTP-обработчик списка полученных вопросов
// для личного кабинета. Отправитель вопроса наружу не раскрывается никогда.
package questions

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/anon-questions/internal/http/middlewarectx"
	"github.com/magabrotheeeer/anon-questions/internal/http/response"
	"github.com/magabrotheeeer/anon-questions/internal/lib/sl"
	"github.com/magabrotheeeer/anon-questions/internal/models"
)

// Exchange описывает чтение полученных вопросов.
type Exchange interface {
	ListReceived(ctx context.Context, id int64, limit, offset int) ([]*models.Question, error)
}

// Item — вопрос в ответе кабинета. Поля об отправителе отсутствуют
// намеренно: анонимность держится на том, что их здесь просто нет.
type Item struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	Answer    *string   `json:"answer,omitempty"`
	Answered  bool      `json:"answered"`
	Tier      string    `json:"tier"`
	Likes     int       `json:"likes"`
	CreatedAt time.Time `json:"created_at"`
}

// Handler управляет HTTP-запросами списка вопросов.
type Handler struct {
	log      *slog.Logger
	exchange Exchange
}

// New создает новый Handler с переданными зависимостями.
func New(log *slog.Logger, exchangeSvc Exchange) *Handler {
	return &Handler{log: log, exchange: exchangeSvc}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.questions"
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

	limit := parseOrDefault(r.URL.Query().Get("limit"), 20)
	if limit > 100 {
		limit = 100
	}
	offset := parseOrDefault(r.URL.Query().Get("offset"), 0)

	list, err := h.exchange.ListReceived(r.Context(), identityID, limit, offset)
	if err != nil {
		log.Error("failed to list questions", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not list questions"))
		return
	}

	items := make([]Item, 0, len(list))
	for _, q := range list {
		items = append(items, Item{
			ID:        q.ID,
			Body:      q.Body,
			Answer:    q.Answer,
			Answered:  q.Answered,
			Tier:      q.Tier,
			Likes:     q.Likes,
			CreatedAt: q.CreatedAt,
		})
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"questions": items,
	}))
}

func parseOrDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
