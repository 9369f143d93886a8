// Package poll реализует HTTP-обработчик подтверждения платежа без известной
// сигнатуры: пользователь оплатил по QR-коду, и сервис ищет подходящий перевод
// в истории адреса кошелька.
//
// Запрос блокируется до нахождения платежа либо до истечения окна опроса,
// поэтому маршрут требует увеличенного таймаута на стороне сервера.
package poll

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
)

// Service описывает интерфейс платежного шлюза для подтверждения опросом.
type Service interface {
	ConfirmPolling(ctx context.Context, userUID, tierID string, expectedAmount decimal.Decimal, walletAddress string) (*models.ConfirmResult, error)
}

// Handler обрабатывает запросы на подтверждение платежа опросом реестра.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
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
// @Summary Подтвердить платеж опросом реестра
// @Description Ищет перевод на нужную сумму в истории адреса кошелька и активирует подписку
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param request body models.DummyPollRequest true "Адрес кошелька и ожидаемая сумма"
// @Success 200 {object} models.ConfirmResult "Платеж найден и подтвержден"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 402 {object} models.ConfirmResult "Платеж найден, но не прошел проверку"
// @Failure 404 {object} models.ConfirmResult "Платеж не найден за окно опроса"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 503 {object} response.ErrorResponse "Реестр недоступен"
// @Router /payments/poll [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.poll"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyPollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	log.Info("request body decoded", slog.String("wallet_address", req.WalletAddress))

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

	result, err := h.service.ConfirmPolling(r.Context(), userUID, req.TierID,
		decimal.NewFromFloat(req.ExpectedAmount), req.WalletAddress)
	if err != nil {
		if errors.Is(err, ledger.ErrUnavailable) {
			log.Error("ledger is unavailable", sl.Err(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			render.JSON(w, r, response.Error("ledger is temporarily unavailable, retry later"))
			return
		}
		log.Error("failed to confirm payment by polling", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	switch {
	case result.Success:
		log.Info("payment found and confirmed")
	case !result.PaymentFound:
		w.WriteHeader(http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusPaymentRequired)
	}
	render.JSON(w, r, result)
}
