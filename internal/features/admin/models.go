// Package admin реализует админку с парольной аутентификацией.
// models.go описывает сессии и учёт попыток входа.
//
// Сессии живут в памяти процесса: админка — один человек с парой
// команд в день, переживать рестарт сессиям незачем.
package admin

import "time"

// session — активная сессия администратора.
type session struct {
	UserID    int64
	ExpiresAt time.Time
}

// Время жизни сессии и параметры защиты от перебора пароля.
const (
	sessionTTL      = 24 * time.Hour
	maxLoginFails   = 3
	loginFailWindow = time.Hour
)
