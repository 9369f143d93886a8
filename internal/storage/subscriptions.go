package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/stablecoin-gateway/internal/models"
)

// ErrTransactionNotPending возвращается, когда запись транзакции,
// на которую должна сослаться подписка, не находится в статусе pending.
var ErrTransactionNotPending = errors.New("transaction record is not pending")

// CreateSubscriptionWithConfirmation в одной транзакции базы переводит
// pending-запись транзакции в confirmed и добавляет новую строку периода
// активации, ссылающуюся на неё. Возвращает ID созданной строки.
//
// Подписка никогда не ссылается на неподтвержденную запись: если запись
// не pending, обе операции откатываются и возвращается
// ErrTransactionNotPending. История подписок только добавляется,
// существующие строки никогда не обновляются.
func (s *Storage) CreateSubscriptionWithConfirmation(ctx context.Context, sub models.Subscription, fromAddress, toAddress string, rawData []byte, confirmedAt time.Time) (int64, error) {
	const op = "storage.CreateSubscriptionWithConfirmation"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	confirmQuery := `UPDATE transactions
			  SET status = $2, from_address = $3, to_address = $4, raw_data = $5, confirmed_at = $6
			  WHERE signature = $1 AND status = $7`
	result, err := tx.ExecContext(ctx, confirmQuery,
		sub.TransactionSignature, models.TxStatusConfirmed, fromAddress, toAddress,
		rawData, confirmedAt, models.TxStatusPending)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected != 1 {
		return 0, fmt.Errorf("%s: %w: %s", op, ErrTransactionNotPending, sub.TransactionSignature)
	}

	insertQuery := `INSERT INTO subscriptions (user_uid, tier_id, payment_method, amount,
			      activated_at, expires_at, grace_period_ends, renewal_enabled, transaction_signature)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  RETURNING id`
	var newID int64
	err = tx.QueryRowContext(ctx, insertQuery,
		sub.UserUID, sub.TierID, sub.PaymentMethod, sub.Amount, sub.ActivatedAt,
		sub.ExpiresAt, sub.GracePeriodEnds, sub.RenewalEnabled, sub.TransactionSignature).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// GetCurrentSubscription возвращает текущую подписку пользователя —
// строку с наибольшим ID — или nil, если пользователь никогда не активировался.
func (s *Storage) GetCurrentSubscription(ctx context.Context, userUID string) (*models.Subscription, error) {
	const op = "storage.GetCurrentSubscription"

	query := `SELECT id, user_uid, tier_id, payment_method, amount, activated_at,
				expires_at, grace_period_ends, renewal_enabled, transaction_signature
			  FROM subscriptions WHERE user_uid = $1
			  ORDER BY id DESC LIMIT 1`
	row := s.DB.QueryRowContext(ctx, query, userUID)

	var result models.Subscription
	err := row.Scan(&result.ID, &result.UserUID, &result.TierID, &result.PaymentMethod,
		&result.Amount, &result.ActivatedAt, &result.ExpiresAt, &result.GracePeriodEnds,
		&result.RenewalEnabled, &result.TransactionSignature)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &result, nil
}

// ListSubscriptions возвращает историю периодов активации пользователя, новые первыми.
func (s *Storage) ListSubscriptions(ctx context.Context, userUID string, limit, offset int) ([]*models.Subscription, error) {
	const op = "storage.ListSubscriptions"

	query := `SELECT id, user_uid, tier_id, payment_method, amount, activated_at,
				expires_at, grace_period_ends, renewal_enabled, transaction_signature
			  FROM subscriptions WHERE user_uid = $1
			  ORDER BY id DESC LIMIT $2 OFFSET $3`
	rows, err := s.DB.QueryContext(ctx, query, userUID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var results []*models.Subscription
	for rows.Next() {
		var sub models.Subscription
		if err := rows.Scan(&sub.ID, &sub.UserUID, &sub.TierID, &sub.PaymentMethod,
			&sub.Amount, &sub.ActivatedAt, &sub.ExpiresAt, &sub.GracePeriodEnds,
			&sub.RenewalEnabled, &sub.TransactionSignature); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		results = append(results, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return results, nil
}
