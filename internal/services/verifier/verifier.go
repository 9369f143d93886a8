// Package verifier реализует проверку транзакции реестра на соответствие
// ожидаемому платежу: получатель, отправитель, сумма с допуском ±1%.
//
// Проверка чистая: сервис ничего не сохраняет, вся запись результатов
// происходит в платежном шлюзе. Отказы возвращаются структурированным
// результатом, ошибкой считается только недоступность реестра.
package verifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/stablecoin-gateway/internal/ledger"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/lib/token"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/metrics"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/models"
)

// Ledger описывает запрос транзакции из реестра.
type Ledger interface {
	// GetTransaction возвращает транзакцию по сигнатуре, nil если реестр её не знает.
	GetTransaction(ctx context.Context, signature string) (*ledger.TxInfo, error)
}

// Service проверяет транзакции против известного токена и адреса платформы.
type Service struct {
	ledger          Ledger
	tokenMint       string
	receiverAddress string
	log             *slog.Logger
}

// New создает новый экземпляр Service.
func New(ledgerClient Ledger, tokenMint, receiverAddress string, log *slog.Logger) *Service {
	return &Service{
		ledger:          ledgerClient,
		tokenMint:       tokenMint,
		receiverAddress: receiverAddress,
		log:             log,
	}
}

// Verify загружает транзакцию по сигнатуре и проверяет, что она переводит
// ожидаемую сумму стейблкоина на адрес платформы. ExpectedUnits задается
// в микроединицах; expectedSender может быть пустым, тогда отправитель
// определяется эвристикой и не сверяется.
func (s *Service) Verify(ctx context.Context, signature string, expectedUnits int64, expectedSender string) (*models.VerificationResult, error) {
	const op = "verifier.Verify"
	start := time.Now()
	defer func() { metrics.VerificationDuration.Observe(time.Since(start).Seconds()) }()

	result := &models.VerificationResult{
		Signature: signature,
		Receiver:  s.receiverAddress,
		Expected:  token.FromUnits(expectedUnits),
	}

	tx, err := s.ledger.GetTransaction(ctx, signature)
	if err != nil {
		metrics.LedgerRPCErrorsTotal.Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if tx == nil || tx.Meta == nil {
		return s.reject(result, models.ReasonTransactionNotFound), nil
	}
	if tx.BlockTime != nil {
		result.Timestamp = time.Unix(*tx.BlockTime, 0).UTC()
	}
	if tx.Meta.Err != nil {
		return s.reject(result, models.ReasonTransactionFailed), nil
	}

	pre := s.balancesByIndex(tx.Meta.PreTokenBalances)
	post := s.balancesByIndex(tx.Meta.PostTokenBalances)
	if len(post) == 0 {
		return s.reject(result, models.ReasonNoTokenTransfer), nil
	}

	receiverDelta, receiverFound, err := s.receiverDelta(pre, post)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !receiverFound {
		return s.reject(result, models.ReasonReceiverMismatch), nil
	}
	if receiverDelta <= 0 {
		return s.reject(result, models.ReasonNoTokenTransfer), nil
	}
	result.Amount = token.FromUnits(receiverDelta)

	sender, err := s.inferSender(pre, post, receiverDelta)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	result.Sender = sender

	// Отправитель сообщается и при отказе, чтобы вызывающая сторона
	// могла диагностировать расхождение.
	if expectedSender != "" && sender != expectedSender {
		return s.reject(result, models.ReasonSenderMismatch), nil
	}

	if !token.WithinTolerance(receiverDelta, expectedUnits) {
		s.log.Info("transferred amount outside tolerance",
			slog.String("signature", signature),
			slog.String("actual", result.Amount.String()),
			slog.String("expected", result.Expected.String()))
		return s.reject(result, models.ReasonAmountMismatch), nil
	}

	result.Valid = true
	metrics.VerificationsTotal.WithLabelValues("success").Inc()
	s.log.Info("transaction verified",
		slog.String("signature", signature),
		slog.String("sender", sender),
		slog.String("amount", result.Amount.String()))
	return result, nil
}

func (s *Service) reject(result *models.VerificationResult, reason string) *models.VerificationResult {
	result.Valid = false
	result.Reason = reason
	metrics.VerificationsTotal.WithLabelValues(reason).Inc()
	return result
}

// balancesByIndex отбирает снимки балансов интересующего токена по индексу аккаунта.
func (s *Service) balancesByIndex(balances []ledger.TokenBalance) map[int]ledger.TokenBalance {
	result := make(map[int]ledger.TokenBalance)
	for _, b := range balances {
		if b.Mint == s.tokenMint {
			result[b.AccountIndex] = b
		}
	}
	return result
}

// receiverDelta считает изменение баланса на аккаунте платформы в микроединицах.
// Целочисленная арифметика: деление на точность токена происходит только
// при формировании результата.
func (s *Service) receiverDelta(pre, post map[int]ledger.TokenBalance) (int64, bool, error) {
	for idx, p := range post {
		if p.Owner != s.receiverAddress {
			continue
		}
		postUnits, err := token.ParseRawAmount(p.UITokenAmount.Amount)
		if err != nil {
			return 0, false, err
		}
		var preUnits int64
		if pb, ok := pre[idx]; ok {
			preUnits, err = token.ParseRawAmount(pb.UITokenAmount.Amount)
			if err != nil {
				return 0, false, err
			}
		}
		return postUnits - preUnits, true, nil
	}
	return 0, false, nil
}

// inferSender определяет отправителя как аккаунт, чей баланс токена
// уменьшился на величину, ближайшую к сумме перевода. Эвристика может
// ошибаться, если одна транзакция содержит несколько переводов токена.
func (s *Service) inferSender(pre, post map[int]ledger.TokenBalance, transferred int64) (string, error) {
	var sender string
	var bestDiff int64 = -1
	for idx, pb := range pre {
		if pb.Owner == s.receiverAddress {
			continue
		}
		preUnits, err := token.ParseRawAmount(pb.UITokenAmount.Amount)
		if err != nil {
			return "", err
		}
		var postUnits int64
		if p, ok := post[idx]; ok {
			postUnits, err = token.ParseRawAmount(p.UITokenAmount.Amount)
			if err != nil {
				return "", err
			}
		}
		decrease := preUnits - postUnits
		if decrease <= 0 {
			continue
		}
		diff := decrease - transferred
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			bestDiff = diff
			sender = pb.Owner
		}
	}
	if sender == "" {
		s.log.Warn("could not infer sender from balance changes", sl.Err(fmt.Errorf("no decreasing balance found")))
	}
	return sender, nil
}
