// Package token реализует арифметику сумм стейблкоина с фиксированной точностью 6 знаков.
//
// Суммы в транзакциях реестра приходят в микроединицах (целые числа),
// поэтому все сравнения выполняются в целочисленной арифметике,
// а деление на 10^6 происходит только на последнем шаге при выводе.
package token

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Decimals количество знаков после запятой у стейблкоина (конвенция USDC).
const Decimals = 6

// UnitsPerToken количество микроединиц в одном токене.
const UnitsPerToken int64 = 1_000_000

// TolerancePercent допустимое отклонение фактической суммы перевода
// от ожидаемой, в процентах. Учитывает округления и поведение комиссий.
const TolerancePercent int64 = 1

// ParseRawAmount разбирает сумму баланса из ответа реестра
// (целое число микроединиц в виде строки).
func ParseRawAmount(raw string) (int64, error) {
	const op = "token.ParseRawAmount"
	units, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return units, nil
}

// FromUnits переводит микроединицы в десятичную сумму токенов.
func FromUnits(units int64) decimal.Decimal {
	return decimal.New(units, -Decimals)
}

// ToUnits переводит десятичную сумму токенов в микроединицы.
func ToUnits(amount decimal.Decimal) int64 {
	return amount.Shift(Decimals).IntPart()
}

// WithinTolerance проверяет, что фактическая сумма перевода попадает
// в допуск ±TolerancePercent от ожидаемой. Обе суммы в микроединицах.
func WithinTolerance(actual, expected int64) bool {
	diff := actual - expected
	if diff < 0 {
		diff = -diff
	}
	return diff*100 <= expected*TolerancePercent
}
