// Package settings хранит изменяемую на лету конфигурацию бота
// в таблице bot_settings (ключ → строковое значение).
// models.go описывает ключи и их значения по умолчанию.
package settings

import "time"

// Ключи настроек в таблице bot_settings.
const (
	// KeyRevealInterval — интервал между розыгрышами (формат time.Duration: "1h", "30m")
	KeyRevealInterval = "reveal_interval"
	// KeyMaxWinners — сколько пользователей успевают получить один приз
	KeyMaxWinners = "max_winners"
	// KeyCoinsPerWin — награда монетами за выигранный приз
	KeyCoinsPerWin = "coins_per_win"
	// KeyBonusHour — "on"/"off": во время бонусного часа награда удваивается
	KeyBonusHour = "bonus_hour"
	// KeyMissedPrice — фиксированная цена пропущенного приза (скидка)
	KeyMissedPrice = "missed_price"
	// KeyAdmins — user_id дополнительных админов через запятую
	KeyAdmins = "admins"
)

// Значения по умолчанию. Применяются при чтении, если ключ
// отсутствует в таблице — заранее ничего не записывается.
var defaults = map[string]string{
	KeyRevealInterval: "1h",
	KeyMaxWinners:     "3",
	KeyCoinsPerWin:    "10",
	KeyBonusHour:      "off",
	KeyMissedPrice:    "5",
	KeyAdmins:         "",
}

// DefaultRevealInterval — интервал розыгрыша, если настройка не задана
// и не парсится.
const DefaultRevealInterval = time.Hour

// KnownKeys возвращает список всех известных ключей (для /settings и
// валидации /set).
func KnownKeys() []string {
	return []string{
		KeyRevealInterval, KeyMaxWinners, KeyCoinsPerWin,
		KeyBonusHour, KeyMissedPrice, KeyAdmins,
	}
}

// IsKnownKey проверяет, что ключ входит в список поддерживаемых.
func IsKnownKey(key string) bool {
	_, ok := defaults[key]
	return ok
}
