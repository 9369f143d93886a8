// Package gateway оркестрирует подтверждение платежа: защита от повторной
// обработки сигнатуры, проверка транзакции в реестре и активация подписки.
//
// Отказы шлюз записывает в хранилище сам, успешный исход фиксируется
// активацией подписки; верификатор ничего не сохраняет.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/stablecoin-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/lib/token"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/models"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/rabbitmq"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/services/reconciler"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/storage"
)

// Способы оплаты, записываемые в строку подписки.
const (
	PaymentMethodDirect = "usdc_direct"
	PaymentMethodPoll   = "usdc_poll"
)

// DedupStore атомарная защита от повторной обработки сигнатуры.
// Гарантия живет в уникальном индексе базы и действует между
// экземплярами процесса.
type DedupStore interface {
	BeginProcessing(ctx context.Context, rec models.TransactionRecord) (storage.ProcessingDecision, *models.TransactionRecord, error)
	FailTransaction(ctx context.Context, signature string, rawData []byte) (int, error)
	ReleaseProcessing(ctx context.Context, signature string) error
}

// Verifier описывает проверку транзакции реестра.
type Verifier interface {
	Verify(ctx context.Context, signature string, expectedUnits int64, expectedSender string) (*models.VerificationResult, error)
}

// Reconciler описывает сессию сверки платежа без известной сигнатуры.
type Reconciler interface {
	Run(ctx context.Context, senderAddress string, expectedUnits int64) (*models.VerificationResult, error)
}

// Subscriptions описывает активацию и чтение подписок. Activate
// атомарно подтверждает запись транзакции и создает строку подписки.
type Subscriptions interface {
	Activate(ctx context.Context, userUID, tierID, paymentMethod string, verification *models.VerificationResult, now time.Time) (*models.Subscription, error)
	Current(ctx context.Context, userUID string) (*models.Subscription, error)
}

// EventPublisher публикует события подписок.
type EventPublisher interface {
	Publish(routingKey string, message any) error
}

// ActivatedEvent событие активации подписки для внешних потребителей.
type ActivatedEvent struct {
	UserUID        string    `json:"user_uid"`
	TierID         string    `json:"tier_id"`
	SubscriptionID int64     `json:"subscription_id"`
	Signature      string    `json:"signature"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Service платежный шлюз.
type Service struct {
	store      DedupStore
	verifier   Verifier
	reconciler Reconciler
	subs       Subscriptions
	events     EventPublisher
	log        *slog.Logger
}

// New создает новый экземпляр Service.
func New(store DedupStore, verify Verifier, rec Reconciler, subs Subscriptions, events EventPublisher, log *slog.Logger) *Service {
	return &Service{
		store:      store,
		verifier:   verify,
		reconciler: rec,
		subs:       subs,
		events:     events,
		log:        log,
	}
}

// ConfirmDirect подтверждает платеж по известной сигнатуре.
//
// Повторный вызов с уже подтвержденной сигнатурой — идемпотентный успех:
// вторая строка подписки не создается, реестр не опрашивается.
// Отклоненная сигнатура терминальна, для новой попытки нужна новая
// транзакция. Транзакция, которой реестр еще не видит, не считается
// отклоненной: pending-запись освобождается для следующей попытки.
func (s *Service) ConfirmDirect(ctx context.Context, userUID, signature, tierID string, expectedAmount decimal.Decimal, expectedSender, paymentMethod string) (*models.ConfirmResult, error) {
	const op = "gateway.ConfirmDirect"
	log := s.log.With(
		slog.String("op", op),
		slog.String("signature", signature),
		slog.String("user_uid", userUID),
	)

	decision, existing, err := s.store.BeginProcessing(ctx, models.TransactionRecord{
		Signature: signature,
		UserUID:   userUID,
		TierID:    tierID,
		Amount:    expectedAmount,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	switch decision {
	case storage.DecisionAlreadyConfirmed:
		log.Info("signature already confirmed, returning idempotent success")
		current, err := s.subs.Current(ctx, existing.UserUID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return &models.ConfirmResult{
			PaymentFound: true,
			Success:      true,
			Verified:     true,
			Message:      "payment already processed",
			Subscription: current,
		}, nil
	case storage.DecisionAlreadyFailed:
		log.Info("signature already failed, rejecting without re-verification")
		return &models.ConfirmResult{
			PaymentFound: true,
			Message:      "payment verification already failed, submit a new transaction",
		}, nil
	case storage.DecisionInFlight:
		log.Info("signature is being processed by another request")
		return &models.ConfirmResult{
			PaymentFound: true,
			Message:      "payment is being processed, retry shortly",
		}, nil
	}

	result, err := s.verifier.Verify(ctx, signature, token.ToUnits(expectedAmount), expectedSender)
	if err != nil {
		// Временный сбой: освобождаем сигнатуру для повторной попытки
		if relErr := s.store.ReleaseProcessing(ctx, signature); relErr != nil {
			log.Error("failed to release pending transaction", sl.Err(relErr))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !result.Valid {
		return s.finishInvalid(ctx, log, signature, result)
	}

	// Подтверждение записи транзакции и строка подписки пишутся одной
	// транзакцией базы: неудача откатывает обе, pending-запись освобождается
	// и сигнатура остается доступной для повторной попытки.
	sub, err := s.subs.Activate(ctx, userUID, tierID, paymentMethod, result, time.Now().UTC())
	if err != nil {
		if relErr := s.store.ReleaseProcessing(ctx, signature); relErr != nil {
			log.Error("failed to release pending transaction", sl.Err(relErr))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.events.Publish(rabbitmq.RoutingKeyActivated, ActivatedEvent{
		UserUID:        userUID,
		TierID:         tierID,
		SubscriptionID: sub.ID,
		Signature:      signature,
		ExpiresAt:      sub.ExpiresAt,
	}); err != nil {
		log.Warn("failed to publish activation event", sl.Err(err))
	}

	log.Info("payment confirmed and subscription activated", slog.Int64("subscription_id", sub.ID))
	return &models.ConfirmResult{
		PaymentFound: true,
		Success:      true,
		Verified:     true,
		Message:      "payment verified, subscription activated",
		Subscription: sub,
		Verification: result,
	}, nil
}

// ConfirmPolling подтверждает платеж без известной сигнатуры: сессия сверки
// находит кандидата в истории адреса кошелька, после чего подтверждение
// идет тем же путем, что и прямое, — защита от повторной обработки
// и активация не дублируются.
func (s *Service) ConfirmPolling(ctx context.Context, userUID, tierID string, expectedAmount decimal.Decimal, walletAddress string) (*models.ConfirmResult, error) {
	const op = "gateway.ConfirmPolling"

	found, err := s.reconciler.Run(ctx, walletAddress, token.ToUnits(expectedAmount))
	if err != nil {
		if errors.Is(err, reconciler.ErrTimeout) {
			return &models.ConfirmResult{
				Message: "no matching payment found within the polling window",
			}, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.ConfirmDirect(ctx, userUID, found.Signature, tierID, expectedAmount, walletAddress, PaymentMethodPoll)
}

// finishInvalid записывает терминальный отказ либо освобождает сигнатуру,
// если транзакция еще не видна реестру.
func (s *Service) finishInvalid(ctx context.Context, log *slog.Logger, signature string, result *models.VerificationResult) (*models.ConfirmResult, error) {
	const op = "gateway.finishInvalid"

	if result.Reason == models.ReasonTransactionNotFound {
		// Транзакция может подтвердиться позже, отказ не терминален
		if err := s.store.ReleaseProcessing(ctx, signature); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return &models.ConfirmResult{
			Message:      "transaction not found in the ledger yet, retry later",
			Verification: result,
		}, nil
	}

	rawData, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.store.FailTransaction(ctx, signature, rawData); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("payment found but failed verification", slog.String("reason", result.Reason))
	return &models.ConfirmResult{
		PaymentFound: true,
		Message:      rejectionMessage(result),
		Verification: result,
	}, nil
}

// rejectionMessage формирует сообщение для пользователя по причине отказа.
func rejectionMessage(result *models.VerificationResult) string {
	switch result.Reason {
	case models.ReasonTransactionFailed:
		return "transaction failed on the ledger"
	case models.ReasonNoTokenTransfer:
		return "transaction does not transfer the expected token"
	case models.ReasonReceiverMismatch:
		return "transaction was sent to an unknown address"
	case models.ReasonSenderMismatch:
		return fmt.Sprintf("transaction was sent from %s, not from the expected wallet", result.Sender)
	case models.ReasonAmountMismatch:
		return fmt.Sprintf("transferred amount %s does not match expected %s", result.Amount, result.Expected)
	default:
		return "payment verification failed"
	}
}
