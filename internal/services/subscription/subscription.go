// Package subscription содержит бизнес-логику периодов активации тарифов.
//
// История подписок только добавляется: продление создает новую строку,
// текущей считается строка с наибольшим ID. Эффективный статус никогда
// не хранится, а выводится чистой функцией ComputeStatus из времени.
package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/stablecoin-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/metrics"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/models"
)

// Эффективные статусы подписки.
const (
	StatusNone        = "none"
	StatusActive      = "active"
	StatusGracePeriod = "grace_period"
	StatusExpired     = "expired"
)

// TierFree эффективный тариф пользователя без действующей подписки.
const TierFree = "free"

// Периоды фиксированы для всех тарифов. Тарифно-зависимые периоды
// потребуют таблицы тарифов, call sites менять не придется.
const (
	// ActivationPeriod длительность оплаченного периода.
	ActivationPeriod = 30 * 24 * time.Hour
	// GracePeriod длительность грейс-периода после истечения.
	GracePeriod = 7 * 24 * time.Hour
)

// ErrInvalidTier возвращается при попытке активировать неизвестный тариф.
var ErrInvalidTier = errors.New("unknown subscription tier")

// SubscriptionRepository определяет методы для работы с подписками в хранилище.
type SubscriptionRepository interface {
	// CreateSubscriptionWithConfirmation атомарно подтверждает pending-запись
	// транзакции и добавляет строку периода активации, возвращая её ID.
	CreateSubscriptionWithConfirmation(ctx context.Context, sub models.Subscription, fromAddress, toAddress string, rawData []byte, confirmedAt time.Time) (int64, error)
	// GetCurrentSubscription возвращает строку с наибольшим ID или nil.
	GetCurrentSubscription(ctx context.Context, userUID string) (*models.Subscription, error)
	// ListSubscriptions возвращает историю периодов активации пользователя, новые первыми.
	ListSubscriptions(ctx context.Context, userUID string, limit, offset int) ([]*models.Subscription, error)
	// ListUserTransactions возвращает записи транзакций пользователя, новые первыми.
	ListUserTransactions(ctx context.Context, userUID string, limit int) ([]*models.TransactionRecord, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	// Get пытается получить значение из кеша по ключу.
	Get(key string, result any) (bool, error)
	// Set сохраняет значение в кеш с временем жизни.
	Set(key string, value any, expiration time.Duration) error
	// Invalidate удаляет значение из кеша по ключу.
	Invalidate(key string) error
}

// Service реализует бизнес-логику подписок, включая кеширование статуса.
type Service struct {
	repo  SubscriptionRepository
	cache Cache
	tiers map[string]struct{}
	log   *slog.Logger
}

// New создает новый экземпляр Service с набором известных тарифов.
func New(repo SubscriptionRepository, cache Cache, tiers []string, log *slog.Logger) *Service {
	known := make(map[string]struct{}, len(tiers))
	for _, tier := range tiers {
		known[tier] = struct{}{}
	}
	return &Service{
		repo:  repo,
		cache: cache,
		tiers: known,
		log:   log,
	}
}

// ComputeStatus выводит эффективный статус и тариф подписки на момент now.
// Чистая функция без побочных эффектов, безопасна для любого числа
// конкурентных вызовов.
//
// Во время грейс-периода тариф сохраняется: пользователь не теряет доступ,
// пока есть шанс продления. После грейс-периода эффективный тариф
// принудительно становится free независимо от сохраненного.
func ComputeStatus(sub *models.Subscription, now time.Time) (string, string) {
	if sub == nil {
		return StatusNone, TierFree
	}
	if now.Before(sub.ExpiresAt) {
		return StatusActive, sub.TierID
	}
	if !now.After(sub.GracePeriodEnds) {
		return StatusGracePeriod, sub.TierID
	}
	return StatusExpired, TierFree
}

// Activate создает новую строку периода активации по результату успешной
// проверки платежа. Строка подписки и перевод записи транзакции в confirmed
// выполняются одной транзакцией базы: подписка не может сослаться
// на неподтвержденную запись. Существующие строки не изменяются.
func (s *Service) Activate(ctx context.Context, userUID, tierID, paymentMethod string, verification *models.VerificationResult, now time.Time) (*models.Subscription, error) {
	const op = "subscription.Activate"

	if _, ok := s.tiers[tierID]; !ok {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrInvalidTier, tierID)
	}

	expiresAt := now.Add(ActivationPeriod)
	sub := models.Subscription{
		UserUID:              userUID,
		TierID:               tierID,
		PaymentMethod:        paymentMethod,
		Amount:               verification.Amount,
		ActivatedAt:          now,
		ExpiresAt:            expiresAt,
		GracePeriodEnds:      expiresAt.Add(GracePeriod),
		RenewalEnabled:       false,
		TransactionSignature: verification.Signature,
	}

	rawData, err := json.Marshal(verification)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	id, err := s.repo.CreateSubscriptionWithConfirmation(ctx, sub, verification.Sender, verification.Receiver, rawData, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sub.ID = id

	metrics.ActivationsTotal.WithLabelValues(tierID).Inc()
	s.log.Info("subscription activated",
		slog.Int64("id", id),
		slog.String("tier", tierID),
		slog.String("signature", verification.Signature))

	cacheKey := fmt.Sprintf("substatus:%s", userUID)
	if err := s.cache.Invalidate(cacheKey); err != nil {
		s.log.Warn("failed to invalidate status cache", slog.String("key", cacheKey), sl.Err(err))
	}

	return &sub, nil
}

// Current возвращает текущую подписку пользователя или nil,
// если пользователь никогда не активировался.
func (s *Service) Current(ctx context.Context, userUID string) (*models.Subscription, error) {
	const op = "subscription.Current"
	sub, err := s.repo.GetCurrentSubscription(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// statusSnapshot кешируемые исходные данные статуса: строка подписки
// и транзакции. Эффективный статус в кеш не попадает.
type statusSnapshot struct {
	Subscription *models.Subscription        `json:"subscription"`
	Transactions []*models.TransactionRecord `json:"transactions"`
}

// List возвращает историю периодов активации пользователя, новые первыми.
func (s *Service) List(ctx context.Context, userUID string, limit, offset int) ([]*models.Subscription, error) {
	const op = "subscription.List"
	subs, err := s.repo.ListSubscriptions(ctx, userUID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return subs, nil
}

// Status возвращает агрегированный статус подписки пользователя,
// пересчитывая его из последней строки, а не из сохраненного флага.
//
// Кешируются только исходные данные: ComputeStatus выполняется на каждый
// вызов, поэтому попадание в кеш не может вернуть active после expires_at.
func (s *Service) Status(ctx context.Context, userUID string, now time.Time) (*models.SubscriptionStatusInfo, error) {
	const op = "subscription.Status"

	var snap statusSnapshot
	cacheKey := fmt.Sprintf("substatus:%s", userUID)
	found, err := s.cache.Get(cacheKey, &snap)
	if err != nil {
		s.log.Warn("failed to read status cache", slog.String("key", cacheKey), sl.Err(err))
	}

	if !found {
		current, err := s.repo.GetCurrentSubscription(ctx, userUID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		transactions, err := s.repo.ListUserTransactions(ctx, userUID, 20)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		snap = statusSnapshot{Subscription: current, Transactions: transactions}

		if err := s.cache.Set(cacheKey, snap, time.Minute); err != nil {
			s.log.Warn("failed to cache status", slog.String("key", cacheKey), sl.Err(err))
		}
	}

	status, tier := ComputeStatus(snap.Subscription, now)
	info := &models.SubscriptionStatusInfo{
		Status:       status,
		Tier:         tier,
		Transactions: snap.Transactions,
	}
	if snap.Subscription != nil {
		info.ExpiresAt = &snap.Subscription.ExpiresAt
		info.GracePeriodEnds = &snap.Subscription.GracePeriodEnds
		info.AutoRenew = snap.Subscription.RenewalEnabled
	}
	return info, nil
}
