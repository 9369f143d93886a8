package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Причины отказа проверки транзакции. Пустая причина означает успех.
const (
	ReasonTransactionNotFound = "transaction_not_found" // Реестр не знает такой сигнатуры
	ReasonTransactionFailed   = "transaction_failed"    // Реестр сообщил об ошибке исполнения
	ReasonNoTokenTransfer     = "no_token_transfer"     // В транзакции нет перевода нужного токена
	ReasonReceiverMismatch    = "receiver_mismatch"     // Получатель не совпадает с адресом платформы
	ReasonSenderMismatch      = "sender_mismatch"       // Отправитель не совпадает с ожидаемым
	ReasonAmountMismatch      = "amount_mismatch"       // Сумма вне допуска ±1%
)

// VerificationResult результат проверки одной транзакции реестра.
// Отказы возвращаются как структурированный результат, а не как ошибка:
// транзакция может быть найдена, но оказаться невалидной, и это разные
// сообщения для пользователя.
type VerificationResult struct {
	Valid     bool            // Прошла ли транзакция все проверки
	Reason    string          // Причина отказа, пустая при успехе
	Signature string          // Проверенная сигнатура
	Sender    string          // Определенный отправитель (заполняется и при отказе, для диагностики)
	Receiver  string          // Адрес получателя платформы
	Amount    decimal.Decimal // Фактически переведенная сумма
	Expected  decimal.Decimal // Ожидаемая сумма
	Timestamp time.Time       // Время блока транзакции
}

// ConfirmResult ответ платежного шлюза на попытку подтверждения.
// Поля ветвятся независимо: платеж может быть найден (PaymentFound),
// но не пройти проверку (Verified=false).
type ConfirmResult struct {
	PaymentFound bool                `json:"payment_found"`          // Транзакция существует в реестре
	Success      bool                `json:"success"`                // Подписка активирована (или уже была)
	Verified     bool                `json:"verified"`               // Транзакция прошла проверку
	Message      string              `json:"message"`                // Сообщение для пользователя
	Subscription *Subscription       `json:"subscription,omitempty"` // Созданная либо существующая подписка
	Verification *VerificationResult `json:"-"`                      // Детали проверки для логов и аудита
}
