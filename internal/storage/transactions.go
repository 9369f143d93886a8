package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/magabrotheeeer/stablecoin-gateway/internal/models"
)

// ProcessingDecision результат атомарной попытки начать обработку сигнатуры.
type ProcessingDecision string

const (
	// DecisionProceed сигнатура встречена впервые, обработку начинает этот вызов.
	DecisionProceed ProcessingDecision = "proceed"
	// DecisionAlreadyConfirmed сигнатура уже подтверждена другим вызовом.
	DecisionAlreadyConfirmed ProcessingDecision = "already_confirmed"
	// DecisionAlreadyFailed сигнатура уже отклонена, повторная проверка не выполняется.
	DecisionAlreadyFailed ProcessingDecision = "already_failed"
	// DecisionInFlight сигнатуру прямо сейчас обрабатывает другой вызов.
	DecisionInFlight ProcessingDecision = "in_flight"
)

// BeginProcessing атомарно вставляет pending-запись по сигнатуре.
// Нарушение уникальности означает, что другой вызов успел первым:
// тогда решение выводится из статуса существующей строки, без
// повторного обращения к реестру. Гарантия живет в уникальном индексе
// базы, поэтому она действует и между экземплярами процесса.
func (s *Storage) BeginProcessing(ctx context.Context, rec models.TransactionRecord) (ProcessingDecision, *models.TransactionRecord, error) {
	const op = "storage.BeginProcessing"
	select {
	case <-ctx.Done():
		return "", nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO transactions (signature, user_uid, tier_id, amount, status, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  ON CONFLICT (signature) DO NOTHING`
	result, err := s.DB.ExecContext(ctx, query,
		rec.Signature, rec.UserUID, rec.TierID, rec.Amount, models.TxStatusPending, time.Now().UTC())
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 1 {
		return DecisionProceed, nil, nil
	}

	existing, err := s.GetTransaction(ctx, rec.Signature)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	if existing == nil {
		// Строка успела исчезнуть между insert и select, обрабатываем как новую
		return DecisionProceed, nil, nil
	}

	switch existing.Status {
	case models.TxStatusConfirmed:
		return DecisionAlreadyConfirmed, existing, nil
	case models.TxStatusFailed:
		return DecisionAlreadyFailed, existing, nil
	default:
		return DecisionInFlight, existing, nil
	}
}

// FailTransaction переводит pending-запись в failed. Отклоненная сигнатура
// терминальна: повторная попытка оплаты требует новой сигнатуры.
func (s *Storage) FailTransaction(ctx context.Context, signature string, rawData []byte) (int, error) {
	const op = "storage.FailTransaction"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE transactions
			  SET status = $2, raw_data = $3
			  WHERE signature = $1 AND status = $4`
	result, err := s.DB.ExecContext(ctx, query,
		signature, models.TxStatusFailed, rawData, models.TxStatusPending)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// ReleaseProcessing удаляет pending-запись по сигнатуре. Используется,
// когда проверка не дала терминального исхода (реестр недоступен или
// транзакция еще не видна): сигнатура остается доступной для повторной
// попытки. Подтвержденные и отклоненные записи не затрагиваются.
func (s *Storage) ReleaseProcessing(ctx context.Context, signature string) error {
	const op = "storage.ReleaseProcessing"

	query := `DELETE FROM transactions WHERE signature = $1 AND status = $2`
	_, err := s.DB.ExecContext(ctx, query, signature, models.TxStatusPending)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetTransaction возвращает запись транзакции по сигнатуре
// или nil, если такой записи нет.
func (s *Storage) GetTransaction(ctx context.Context, signature string) (*models.TransactionRecord, error) {
	const op = "storage.GetTransaction"

	query := `SELECT signature, user_uid, tier_id, COALESCE(from_address, ''), COALESCE(to_address, ''),
				amount, status, raw_data, created_at, confirmed_at
			  FROM transactions WHERE signature = $1`
	row := s.DB.QueryRowContext(ctx, query, signature)

	var result models.TransactionRecord
	err := row.Scan(&result.Signature, &result.UserUID, &result.TierID, &result.FromAddress,
		&result.ToAddress, &result.Amount, &result.Status, &result.RawData,
		&result.CreatedAt, &result.ConfirmedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &result, nil
}

// ListUserTransactions возвращает записи транзакций пользователя, новые первыми.
func (s *Storage) ListUserTransactions(ctx context.Context, userUID string, limit int) ([]*models.TransactionRecord, error) {
	const op = "storage.ListUserTransactions"

	query := `SELECT signature, user_uid, tier_id, COALESCE(from_address, ''), COALESCE(to_address, ''),
				amount, status, raw_data, created_at, confirmed_at
			  FROM transactions WHERE user_uid = $1
			  ORDER BY created_at DESC LIMIT $2`
	rows, err := s.DB.QueryContext(ctx, query, userUID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var results []*models.TransactionRecord
	for rows.Next() {
		var rec models.TransactionRecord
		if err := rows.Scan(&rec.Signature, &rec.UserUID, &rec.TierID, &rec.FromAddress,
			&rec.ToAddress, &rec.Amount, &rec.Status, &rec.RawData,
			&rec.CreatedAt, &rec.ConfirmedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		results = append(results, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return results, nil
}
