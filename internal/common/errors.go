// Package common — errors.go определяет пользовательские ошибки,
// которые используются во всех модулях бота.
// Эти ошибки позволяют обработчикам различать типы проблем
// и отправлять пользователю понятные сообщения.
package common

import "errors"

// Ошибки розыгрыша призов
var (
	// ErrPrizeNotFound — приз с таким ID отсутствует в каталоге
	ErrPrizeNotFound = errors.New("приз не найден")
	// ErrNoPrizes — в каталоге не осталось неразыгранных призов
	ErrNoPrizes = errors.New("неразыгранных призов не осталось")
	// ErrAlreadyClaimed — пользователь уже получал этот приз
	ErrAlreadyClaimed = errors.New("приз уже получен этим пользователем")
	// ErrExhausted — все места на приз заняты (лимит победителей достигнут)
	ErrExhausted = errors.New("все места на приз уже разобраны")
)

// Ошибки экономики (монеты)
var (
	// ErrInsufficientFunds — недостаточно монет на счёте
	ErrInsufficientFunds = errors.New("недостаточно монет на счёте")
	// ErrInvalidAmount — некорректная сумма (ноль)
	ErrInvalidAmount = errors.New("сумма должна быть ненулевой")
	// ErrUserNotFound — пользователь не найден в базе
	ErrUserNotFound = errors.New("пользователь не найден")
)

// Ошибки работы с изображениями
var (
	// ErrImageUnreadable — исходный файл изображения отсутствует или битый
	ErrImageUnreadable = errors.New("не удалось прочитать изображение")
)

// Ошибки админки
var (
	// ErrNotAdmin — пользователь не является администратором
	ErrNotAdmin = errors.New("у вас нет прав администратора")
	// ErrWrongPassword — неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
)
