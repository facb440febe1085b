// Package session реализует HTTP-обработчик старта сессии, который шлюз
// бота вызывает на каждую команду /start.
//
// Handler регистрирует пользователя в справочнике, прогоняет реферальный
// токен, выдаёт пробный период на первой сессии и возвращает JWT
// для кнопки личного кабинета.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/anon-questions/internal/http/response"
	"github.com/magabrotheeeer/anon-questions/internal/lib/sl"
)

// Directory описывает регистрацию пользователя при старте сессии.
type Directory interface {
	RegisterOrTouch(ctx context.Context, id int64, handle string) (bool, error)
}

// Referrals описывает обработку реферального токена.
type Referrals interface {
	OnNewSession(ctx context.Context, newIdentityID int64, referralToken string, firstSession bool) error
}

// Entitlements описывает выдачу пробного периода.
type Entitlements interface {
	EnsureTrial(ctx context.Context, id int64, now time.Time) error
}

// TokenMaker описывает выпуск токена мини-приложения.
type TokenMaker interface {
	GenerateToken(identityID int64) (string, error)
}

// Request — событие старта сессии от шлюза бота.
type Request struct {
	IdentityID    int64  `json:"identity_id" validate:"required"`
	Handle        string `json:"handle"`
	ReferralToken string `json:"referral_token"`
}

// Handler управляет HTTP-запросами старта сессии.
type Handler struct {
	log          *slog.Logger
	directory    Directory
	referrals    Referrals
	entitlements Entitlements
	tokens       TokenMaker
	validate     *validator.Validate
}

// New создает новый Handler с переданными зависимостями.
func New(log *slog.Logger, directory Directory, referrals Referrals,
	entitlements Entitlements, tokens TokenMaker) *Handler {
	return &Handler{
		log:          log,
		directory:    directory,
		referrals:    referrals,
		entitlements: entitlements,
		tokens:       tokens,
		validate:     validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.session"
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

	first, err := h.directory.RegisterOrTouch(r.Context(), req.IdentityID, req.Handle)
	if err != nil {
		log.Error("failed to register identity", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not register identity"))
		return
	}

	if err := h.referrals.OnNewSession(r.Context(), req.IdentityID, req.ReferralToken, first); err != nil {
		// Реферальный сбой не должен ломать старт сессии.
		log.Error("failed to process referral", sl.Err(err))
	}

	if err := h.entitlements.EnsureTrial(r.Context(), req.IdentityID, time.Now()); err != nil {
		log.Error("failed to ensure trial", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not initialize trial"))
		return
	}

	token, err := h.tokens.GenerateToken(req.IdentityID)
	if err != nil {
		log.Error("failed to generate miniapp token", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not issue token"))
		return
	}

	log.Info("session started", slog.Int64("identity_id", req.IdentityID), slog.Bool("first", first))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"first_session": first,
		"miniapp_token": token,
	}))
}
