// Package confirm реализует HTTP-обработчик подтверждения платежа
// по известной сигнатуре транзакции.
//
// Handler принимает JSON-запрос с сигнатурой и ожидаемой суммой, валидирует его,
// извлекает UID пользователя из контекста и передает запрос платежному шлюзу.
// Результат проверки возвращается клиенту вместе с созданной подпиской.
package confirm

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/stablecoin-gateway/internal/http/middlewarectx"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/http/response"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/ledger"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/models"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/services/gateway"
)

// Service описывает интерфейс платежного шлюза для прямого подтверждения.
type Service interface {
	ConfirmDirect(ctx context.Context, userUID, signature, tierID string, expectedAmount decimal.Decimal, expectedSender, paymentMethod string) (*models.ConfirmResult, error)
}

// Handler обрабатывает запросы на подтверждение платежа по сигнатуре.
type Handler struct {
	log      *slog.Logger        // Логгер для записи информации и ошибок
	service  Service             // Платежный шлюз
	validate *validator.Validate // Валидатор структуры входящих данных
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Подтвердить платеж по сигнатуре
// @Description Проверяет транзакцию в реестре и активирует подписку текущего пользователя
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param request body models.DummyConfirmRequest true "Сигнатура и ожидаемая сумма"
// @Success 200 {object} models.ConfirmResult "Платеж подтвержден, подписка активирована"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 402 {object} models.ConfirmResult "Платеж найден, но не прошел проверку"
// @Failure 404 {object} models.ConfirmResult "Транзакция не найдена в реестре"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 503 {object} response.ErrorResponse "Реестр недоступен"
// @Router /payments/confirm [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.confirm"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	log.Info("request body decoded", slog.String("signature", req.Signature))

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}
	log.Info("all fields are validated")

	userUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || userUID == "" {
		log.Error("user UID not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	result, err := h.service.ConfirmDirect(r.Context(), userUID, req.Signature, req.TierID,
		decimal.NewFromFloat(req.ExpectedAmount), req.SenderAddress, gateway.PaymentMethodDirect)
	if err != nil {
		if errors.Is(err, ledger.ErrUnavailable) {
			log.Error("ledger is unavailable", sl.Err(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			render.JSON(w, r, response.Error("ledger is temporarily unavailable, retry later"))
			return
		}
		log.Error("failed to confirm payment", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	switch {
	case result.Success:
		log.Info("payment confirmed", slog.String("signature", req.Signature))
	case !result.PaymentFound:
		w.WriteHeader(http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusPaymentRequired)
	}
	render.JSON(w, r, result)
}
