// Package message реализует HTTP-обработчик входящих текстовых сообщений.
//
// Ответ на доставленный вопрос сводится с ожидающим вопросом и записывается;
// любое другое сообщение продвигает диалог "задать вопрос". Собранный
// диалогом вопрос либо создаётся сразу, либо, когда нужна оплата
// (элитный тариф или премиальный адресат при закрытом доступе),
// превращается в счёт.
package message

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/anon-questions/internal/http/response"
	"github.com/magabrotheeeer/anon-questions/internal/lib/sl"
	"github.com/magabrotheeeer/anon-questions/internal/models"
	"github.com/magabrotheeeer/anon-questions/internal/services/askflow"
	"github.com/magabrotheeeer/anon-questions/internal/services/directory"
	"github.com/magabrotheeeer/anon-questions/internal/services/exchange"
)

// Exchange описывает операции обмена вопросами и ответами.
type Exchange interface {
	Ask(ctx context.Context, askerID, responderID int64, body, tier string) (int64, error)
	MatchPendingForReply(ctx context.Context, responderID int64, token, quotedBody string) (*models.Question, error)
	RecordAnswer(ctx context.Context, questionID int64, answerBody string) (int64, error)
}

// AskFlow описывает продвижение диалога "задать вопрос".
type AskFlow interface {
	Advance(ctx context.Context, identityID int64, text string) (*askflow.Result, error)
}

// Directory описывает чтение карточки адресата для проверки премиальности.
type Directory interface {
	Lookup(ctx context.Context, id int64) (*models.Identity, error)
}

// Entitlements описывает проверку открытого доступа.
type Entitlements interface {
	IsActive(ctx context.Context, id int64, now time.Time) (bool, error)
}

// Invoicer описывает выставление счёта за отложенный элитный вопрос.
type Invoicer interface {
	CreateInvoice(ctx context.Context, userID int64, kind string, pctx *models.PurchaseContext) (*models.Invoice, error)
}

// Reply — цитата, на которую отвечает пользователь. CorrelationToken
// шлюз достаёт из метаданных доставленного сообщения; QuotedText —
// запасной путь, если метаданные потерялись.
type Reply struct {
	CorrelationToken string `json:"correlation_token"`
	QuotedText       string `json:"quoted_text"`
}

// Request — входящее сообщение от шлюза бота.
type Request struct {
	IdentityID int64  `json:"identity_id" validate:"required"`
	Text       string `json:"text" validate:"required"`
	Reply      *Reply `json:"reply,omitempty"`
}

// Handler управляет HTTP-запросами входящих сообщений.
type Handler struct {
	log          *slog.Logger
	exchange     Exchange
	flow         AskFlow
	directory    Directory
	entitlements Entitlements
	invoicer     Invoicer
	validate     *validator.Validate
}

// New создает новый Handler с переданными зависимостями.
func New(log *slog.Logger, exchangeSvc Exchange, flow AskFlow, directory Directory,
	entitlements Entitlements, invoicer Invoicer) *Handler {
	return &Handler{
		log:          log,
		exchange:     exchangeSvc,
		flow:         flow,
		directory:    directory,
		entitlements: entitlements,
		invoicer:     invoicer,
		validate:     validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.message"
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

	if req.Reply != nil {
		h.handleReply(w, r, log, &req)
		return
	}
	h.handleFlowMessage(w, r, log, &req)
}

// handleReply сводит ответ с ожидающим вопросом и записывает его.
func (h *Handler) handleReply(w http.ResponseWriter, r *http.Request, log *slog.Logger, req *Request) {
	question, err := h.exchange.MatchPendingForReply(r.Context(), req.IdentityID,
		req.Reply.CorrelationToken, req.Reply.QuotedText)
	if err != nil {
		if errors.Is(err, exchange.ErrNoMatch) {
			// Ответ не на вопрос бота — шлюзу показывать нечего.
			render.JSON(w, r, response.OK())
			return
		}
		log.Error("failed to match reply", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not match reply"))
		return
	}

	if _, err := h.exchange.RecordAnswer(r.Context(), question.ID, req.Text); err != nil {
		if errors.Is(err, exchange.ErrAlreadyAnswered) {
			// Повторный ответ на то же сообщение — молчаливый no-op.
			render.JSON(w, r, response.OK())
			return
		}
		log.Error("failed to record answer", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not record answer"))
		return
	}

	log.Info("answer recorded", slog.Int64("question_id", question.ID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"reply_text": "Ответ отправлен анонимно",
	}))
}

// handleFlowMessage продвигает диалог "задать вопрос" и завершает его
// созданием вопроса или выставлением счёта.
func (h *Handler) handleFlowMessage(w http.ResponseWriter, r *http.Request, log *slog.Logger, req *Request) {
	result, err := h.flow.Advance(r.Context(), req.IdentityID, req.Text)
	if err != nil {
		if errors.Is(err, askflow.ErrNoFlow) {
			render.JSON(w, r, response.OK())
			return
		}
		log.Error("failed to advance ask flow", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not process message"))
		return
	}

	if result.Ask == nil {
		render.JSON(w, r, response.OKWithData(map[string]any{
			"reply_text": result.Prompt,
		}))
		return
	}

	reply, err := h.submitAsk(r.Context(), req.IdentityID, result.Ask)
	if err != nil {
		if errors.Is(err, exchange.ErrUnknownResponder) || errors.Is(err, exchange.ErrSuspended) {
			render.JSON(w, r, response.OKWithData(map[string]any{
				"reply_text": askflow.PromptNotFound,
			}))
			return
		}
		log.Error("failed to submit question", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not submit question"))
		return
	}
	render.JSON(w, r, response.OKWithData(map[string]any{
		"reply_text": reply,
	}))
}

// submitAsk решает, нужен ли платный путь. Вопрос платный, если выбран
// элитный тариф или адресат премиальный; открытый доступ (пробный период
// или подписка) покрывает платный путь без отдельного счёта. Проверка
// доступа выполняется свежей в момент отправки.
func (h *Handler) submitAsk(ctx context.Context, askerID int64, intent *askflow.AskIntent) (string, error) {
	tier := intent.Tier

	target, err := h.directory.Lookup(ctx, intent.TargetID)
	if err != nil {
		// Приглашение показывается только при реальном отсутствии адресата;
		// сбой хранилища — обычная ошибка операции, "попробуйте ещё раз".
		if errors.Is(err, directory.ErrNotFound) {
			return "", exchange.ErrUnknownResponder
		}
		return "", err
	}
	paid := tier == models.TierElevated
	if target.IsCelebrity {
		paid = true
		tier = models.TierElevated
	}

	if paid {
		active, err := h.entitlements.IsActive(ctx, askerID, time.Now())
		if err != nil {
			return "", err
		}
		if !active {
			if _, err := h.invoicer.CreateInvoice(ctx, askerID, models.KindElevatedQuestion,
				&models.PurchaseContext{ResponderID: intent.TargetID, Body: intent.Body}); err != nil {
				return "", err
			}
			return "Элитный вопрос требует оплаты — счёт отправлен отдельным сообщением", nil
		}
	}

	if _, err := h.exchange.Ask(ctx, askerID, intent.TargetID, intent.Body, tier); err != nil {
		return "", err
	}
	return "Вопрос отправлен анонимно", nil
}
