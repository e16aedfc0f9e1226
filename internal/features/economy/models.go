// Package economy управляет монетами пользователей.
// models.go описывает структуру журнала операций bonus_actions.
package economy

import "time"

// BonusAction представляет одну операцию с монетами.
// Журнал append-only: баланс в users.coins — денормализованный счётчик,
// каждое его изменение сопровождается строкой здесь (в одной транзакции).
type BonusAction struct {
	ActionID    int64     `db:"action_id"`    // ID записи
	UserID      int64     `db:"user_id"`      // Чей счёт
	ActionType  string    `db:"action_type"`  // Тип: 'win', 'purchase', 'admin_adjust'
	CoinsChange int64     `db:"coins_change"` // Дельта (может быть отрицательной)
	ActionTime  time.Time `db:"action_time"`  // Время операции
}

// Допустимые типы операций
const (
	ActionWin         = "win"          // Награда за выигранный приз
	ActionPurchase    = "purchase"     // Покупка приза за монеты
	ActionAdminAdjust = "admin_adjust" // Начисление/изъятие админом
)
