package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Subscription представляет один период активации тарифа для пользователя.
// Строки только добавляются: продление или смена тарифа создает новую строку,
// текущей считается строка с наибольшим ID.
type Subscription struct {
	ID                   int64           // Монотонный идентификатор строки
	UserUID              string          // UID пользователя
	TierID               string          // Оплаченный тариф
	PaymentMethod        string          // Способ оплаты (usdc_direct, usdc_poll)
	Amount               decimal.Decimal // Оплаченная сумма
	ActivatedAt          time.Time       // Начало периода
	ExpiresAt            time.Time       // Конец периода, всегда позже ActivatedAt
	GracePeriodEnds      time.Time       // Конец грейс-периода, всегда позже ExpiresAt
	RenewalEnabled       bool            // Разрешено ли автопродление
	TransactionSignature string          // Ссылка на подтвержденную запись транзакции
}

// SubscriptionStatusInfo агрегированный статус подписки пользователя,
// вычисляемый по последней строке, а не по сохраненному флагу.
type SubscriptionStatusInfo struct {
	Status          string               `json:"status"`                      // none | active | grace_period | expired
	Tier            string               `json:"tier"`                        // Эффективный тариф (free после истечения)
	ExpiresAt       *time.Time           `json:"expires_at,omitempty"`        // Конец оплаченного периода
	GracePeriodEnds *time.Time           `json:"grace_period_ends,omitempty"` // Конец грейс-периода
	AutoRenew       bool                 `json:"auto_renew"`                  // Автопродление
	Transactions    []*TransactionRecord `json:"transactions"`                // История попыток оплаты
}
