// Package reconciler реализует сверку платежа без известной сигнатуры:
// ограниченный по времени цикл опроса истории сигнатур адреса отправителя
// с передачей каждого кандидата верификатору.
//
// Сессия опроса запускается отдельной горутиной на каждый платеж и
// останавливается по отмене контекста, не дожидаясь полного таймаута.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/stablecoin-gateway/internal/ledger"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/metrics"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/models"
)

// ErrTimeout означает, что окно опроса истекло, а подходящая транзакция
// так и не появилась в реестре.
var ErrTimeout = errors.New("no matching transaction within polling window")

// Ledger описывает запрос истории сигнатур адреса.
type Ledger interface {
	// GetSignaturesForAddress возвращает историю сигнатур адреса, новые первыми.
	GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]ledger.SignatureInfo, error)
}

// Verifier описывает проверку одной транзакции-кандидата.
type Verifier interface {
	Verify(ctx context.Context, signature string, expectedUnits int64, expectedSender string) (*models.VerificationResult, error)
}

// Service выполняет сессии сверки. Интервал и таймаут фиксируются
// при создании и одинаковы для всех сессий.
type Service struct {
	ledger   Ledger
	verifier Verifier
	interval time.Duration
	timeout  time.Duration
	sigLimit int
	log      *slog.Logger
}

// New создает новый экземпляр Service.
func New(ledgerClient Ledger, verify Verifier, interval, timeout time.Duration, sigLimit int, log *slog.Logger) *Service {
	return &Service{
		ledger:   ledgerClient,
		verifier: verify,
		interval: interval,
		timeout:  timeout,
		sigLimit: sigLimit,
		log:      log,
	}
}

// Run опрашивает историю сигнатур senderAddress, пока не найдет транзакцию,
// прошедшую проверку, либо пока не истечет таймаут или не отменят контекст.
//
// Нижняя граница окна сдвигается ко времени предыдущего тика, а не к началу
// сессии: транзакции, появившиеся между тиками, не теряются, а уже
// проверенные сигнатуры не проверяются повторно. Граница сдвигается только
// после чистого тика: если запрос истории или проверка кандидата завершились
// временной ошибкой, окно остается прежним, и кандидаты этого тика попадут
// в следующий. Временная недоступность реестра логируется и не прерывает
// сессию.
func (s *Service) Run(ctx context.Context, senderAddress string, expectedUnits int64) (*models.VerificationResult, error) {
	const op = "reconciler.Run"

	windowStart := time.Now()
	ctx, cancel := context.WithDeadline(ctx, windowStart.Add(s.timeout))
	defer cancel()

	log := s.log.With(
		slog.String("op", op),
		slog.String("sender", senderAddress),
	)
	log.Info("polling session started",
		slog.Duration("interval", s.interval),
		slog.Duration("timeout", s.timeout))

	seen := make(map[string]struct{})
	lowerBound := windowStart

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				log.Info("polling session timed out")
				metrics.PollSessionsTotal.WithLabelValues("timeout").Inc()
				return nil, fmt.Errorf("%s: %w", op, ErrTimeout)
			}
			log.Info("polling session cancelled")
			metrics.PollSessionsTotal.WithLabelValues("cancelled").Inc()
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		case tickTime := <-ticker.C:
			metrics.PollTicksTotal.Inc()
			result, clean := s.checkTick(ctx, log, senderAddress, expectedUnits, lowerBound, seen)
			if result != nil {
				log.Info("polling session succeeded", slog.String("signature", result.Signature))
				metrics.PollSessionsTotal.WithLabelValues("success").Inc()
				return result, nil
			}
			if clean {
				lowerBound = tickTime
			}
		}
	}
}

// checkTick выполняет один тик: запрашивает историю сигнатур и передает
// непросмотренных кандидатов верификатору. Возвращает nil, если подходящая
// транзакция не найдена; все ошибки тика считаются временными. Второе
// значение сообщает, был ли тик чистым: без ошибок запроса истории и без
// временных ошибок проверки. После грязного тика нижнюю границу окна
// сдвигать нельзя, иначе непроверенные кандидаты будут отфильтрованы.
func (s *Service) checkTick(ctx context.Context, log *slog.Logger, senderAddress string, expectedUnits int64, lowerBound time.Time, seen map[string]struct{}) (*models.VerificationResult, bool) {
	sigs, err := s.ledger.GetSignaturesForAddress(ctx, senderAddress, s.sigLimit)
	if err != nil {
		metrics.LedgerRPCErrorsTotal.Inc()
		log.Warn("signature lookup failed, will retry on next tick", sl.Err(err))
		return nil, false
	}

	clean := true
	for _, sig := range sigs {
		if _, ok := seen[sig.Signature]; ok {
			continue
		}
		if sig.BlockTime == nil || *sig.BlockTime < lowerBound.Unix() {
			continue
		}
		seen[sig.Signature] = struct{}{}

		result, err := s.verifier.Verify(ctx, sig.Signature, expectedUnits, senderAddress)
		if err != nil {
			log.Warn("candidate verification failed, will retry on next tick", sl.Err(err))
			delete(seen, sig.Signature)
			clean = false
			continue
		}
		if result.Valid {
			return result, clean
		}
		log.Info("candidate rejected",
			slog.String("signature", sig.Signature),
			slog.String("reason", result.Reason))
	}
	return nil, clean
}
