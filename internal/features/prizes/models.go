// Package prizes реализует ядро бота: каталог призов, розыгрыши,
// присуждение выигрышей и покупки.
// models.go описывает структуры таблиц prizes, winners и failed_prizes.
package prizes

import "time"

// Prize представляет приз в каталоге.
// Поле Used — одноразовый флаг: после рассылки приз помечается
// использованным навсегда и больше не выбирается для розыгрыша.
type Prize struct {
	PrizeID int64     `db:"prize_id"` // Автоинкрементный ID
	Image   string    `db:"image"`    // Имя файла (одинаковое в img/ и hidden_img/)
	Used    bool      `db:"used"`     // Был ли приз уже разослан
	AddedBy *int64    `db:"added_by"` // Кто добавил (nil для массового импорта)
	AddDate time.Time `db:"add_date"` // Когда добавлен
	Price   int64     `db:"price"`    // Цена в монетах (для покупки)
}

// Winner — запись о полученном призе.
// На пару (user_id, prize_id) может существовать максимум одна строка:
// дважды получить один приз нельзя, как ни получай.
type Winner struct {
	UserID  int64     `db:"user_id"`
	PrizeID int64     `db:"prize_id"`
	WinTime time.Time `db:"win_time"`
	WinType string    `db:"win_type"` // 'claim' или 'purchase'
}

// Типы выигрыша
const (
	WinTypeClaim    = "claim"    // Успел нажать кнопку при розыгрыше
	WinTypePurchase = "purchase" // Купил за монеты
)

// FailedDelivery — запись о несостоявшейся доставке розыгрыша пользователю.
// Используется для списка «пропущенных» призов и для /resend.
type FailedDelivery struct {
	FailID   int64     `db:"fail_id"`
	PrizeID  int64     `db:"prize_id"`
	UserID   int64     `db:"user_id"`
	FailTime time.Time `db:"fail_time"`
}

// RatingRow — строка рейтинга победителей.
type RatingRow struct {
	UserName string
	Wins     int
}

// ClaimResult — результат успешного нажатия «Получить!».
type ClaimResult struct {
	Prize     *Prize
	Reward    int64 // Сколько монет начислено
	SlotsLeft int   // Сколько мест на приз осталось после этого выигрыша
}
