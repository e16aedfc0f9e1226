// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: русская плюрализация, форматирование чисел, работа с временем.
package common

import (
	"fmt"
	"math"
	"time"
)

// PluralizeCoins возвращает правильную форму слова «монета» для числа n.
//
// Правила русского языка:
//   - n%10==1 И n%100!=11 → "монета" (1, 21, 31, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → "монеты" (2, 3, 4, 22, 23, ...)
//   - Остальные случаи → "монет" (0, 5-20, 25-30, 100, ...)
func PluralizeCoins(n int64) string {
	absN := int64(math.Abs(float64(n)))
	lastDigit := absN % 10
	lastTwoDigits := absN % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return "монета"
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return "монеты"
	}
	return "монет"
}

// PluralizePrizes возвращает правильную форму слова «приз».
//
// Примеры:
//
//	PluralizePrizes(1)  → "приз"
//	PluralizePrizes(3)  → "приза"
//	PluralizePrizes(5)  → "призов"
//	PluralizePrizes(21) → "приз"
func PluralizePrizes(n int64) string {
	absN := int64(math.Abs(float64(n)))
	lastDigit := absN % 10
	lastTwoDigits := absN % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return "приз"
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return "приза"
	}
	return "призов"
}

// FormatCoins форматирует сумму монет в читабельную строку.
// Пример: FormatCoins(150) → "150 монет"
func FormatCoins(coins int64) string {
	return fmt.Sprintf("%d %s", coins, PluralizeCoins(coins))
}

// FormatCoinsDelta создаёт строку вида "+10 монет" или "-50 монет".
// Знак «+» добавляется автоматически для неотрицательных сумм.
func FormatCoinsDelta(delta int64) string {
	if delta >= 0 {
		return fmt.Sprintf("+%d %s", delta, PluralizeCoins(delta))
	}
	return fmt.Sprintf("%d %s", delta, PluralizeCoins(delta))
}

// MoscowTime возвращает текущее время в часовом поясе Москвы (Europe/Moscow).
// Бонусный час и расписание розыгрышей считаются по Москве.
func MoscowTime() time.Time {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		// Если не удалось загрузить — используем UTC+3 вручную
		loc = time.FixedZone("MSK", 3*60*60)
	}
	return time.Now().In(loc)
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04" (день.месяц.год часы:минуты).
// Используется для отображения дат выигрышей и операций с монетами.
func FormatDateTime(t time.Time) string {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		loc = time.FixedZone("MSK", 3*60*60)
	}
	return t.In(loc).Format("02.01.2006 15:04")
}
