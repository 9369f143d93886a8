// Package models содержит доменные структуры платежного шлюза,
// а также вспомогательные типы для приёма данных из JSON-запросов.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Статусы записи транзакции. Запись создается в статусе pending при первой
// встрече сигнатуры и переходит в confirmed или failed ровно один раз.
const (
	TxStatusPending   = "pending"
	TxStatusConfirmed = "confirmed"
	TxStatusFailed    = "failed"
)

// TransactionRecord представляет один проверенный (или проверяемый) перевод
// в распределенном реестре. Сигнатура — уникальный идентификатор,
// назначенный реестром; на одну сигнатуру может существовать не более
// одной подтвержденной записи.
type TransactionRecord struct {
	Signature   string          // Сигнатура транзакции, первичный ключ
	UserUID     string          // UID пользователя, инициировавшего проверку
	TierID      string          // Запрошенный тариф
	FromAddress string          // Адрес отправителя в реестре
	ToAddress   string          // Адрес получателя в реестре
	Amount      decimal.Decimal // Сумма перевода, фиксированная точность 6 знаков
	Status      string          // pending | confirmed | failed
	RawData     []byte          // Свидетельство проверки для аудита (JSON)
	CreatedAt   time.Time       // Момент первой встречи сигнатуры
	ConfirmedAt *time.Time      // Момент подтверждения, nil пока не подтверждена
}

// DummyConfirmRequest используется для приёма данных запроса
// подтверждения платежа по известной сигнатуре.
type DummyConfirmRequest struct {
	Signature      string  `json:"signature" validate:"required"`              // Сигнатура транзакции
	TierID         string  `json:"tier_id" validate:"required"`                // Идентификатор тарифа
	ExpectedAmount float64 `json:"expected_amount" validate:"required,gt=0"`   // Ожидаемая сумма (>0)
	SenderAddress  string  `json:"sender_address,omitempty" validate:"omitempty,min=32,max=44"` // Необязательный адрес отправителя
}

// DummyPollRequest используется для приёма данных запроса
// подтверждения платежа без известной сигнатуры (QR-код).
type DummyPollRequest struct {
	TierID         string  `json:"tier_id" validate:"required"`              // Идентификатор тарифа
	ExpectedAmount float64 `json:"expected_amount" validate:"required,gt=0"` // Ожидаемая сумма (>0)
	WalletAddress  string  `json:"wallet_address" validate:"required,min=32,max=44"` // Адрес кошелька отправителя
}
