// Package bot содержит главный модуль бота — инициализацию, запуск и остановку.
// bot.go связывает обработчики фич и гоняет polling-цикл.
package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"prizebot/internal/bot/filters"
	"prizebot/internal/bot/middleware"
	"prizebot/internal/config"
	"prizebot/internal/features/admin"
	"prizebot/internal/features/economy"
	"prizebot/internal/features/prizes"
)

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	api *tgbotapi.BotAPI
	cfg *config.Config

	accessFilter *filters.AccessFilter
	rateLimiter  *middleware.RateLimiter

	prizeHandler   *prizes.Handler
	economyHandler *economy.Handler
	adminHandler   *admin.Handler

	parser *CommandParser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

// New создаёт новый экземпляр бота со всеми зависимостями.
func New(
	api *tgbotapi.BotAPI,
	cfg *config.Config,
	prizeHandler *prizes.Handler,
	economyHandler *economy.Handler,
	adminHandler *admin.Handler,
	accessFilter *filters.AccessFilter,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:            api,
		cfg:            cfg,
		accessFilter:   accessFilter,
		rateLimiter:    middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		prizeHandler:   prizeHandler,
		economyHandler: economyHandler,
		adminHandler:   adminHandler,
		parser:         NewCommandParser(),
		inflight:       make(chan struct{}, maxInFlight),
	}
}

// Start запускает polling обновлений от Telegram.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.BotUpdateTimeoutSeconds

	updates := b.api.GetUpdatesChan(u)

	log.WithFields(log.Fields{
		"max_inflight": b.cfg.BotMaxInflight,
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			b.api.StopReceivingUpdates()
			b.rateLimiter.Close()
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				b.rateLimiter.Close()
				return
			}

			// лимит параллелизма
			b.inflight <- struct{}{}
			go func(upd tgbotapi.Update) {
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer middleware.RecoverFromPanic()

	// Нажатия кнопок под сообщением с призом
	if update.CallbackQuery != nil {
		middleware.LogCallback(update.CallbackQuery)

		if update.CallbackQuery.From != nil && !b.rateLimiter.Allow(update.CallbackQuery.From.ID) {
			log.WithField("user_id", update.CallbackQuery.From.ID).Debug("rate limited")
			return
		}

		b.prizeHandler.HandleCallback(ctx, update.CallbackQuery)
		return
	}

	if update.Message == nil {
		return
	}

	message := update.Message
	if message.From == nil {
		return
	}

	// Фото с подписью /addprize — загрузка нового приза админом
	if len(message.Photo) > 0 {
		middleware.LogMessage(message)
		if b.adminHandler.HandlePhoto(ctx, message) {
			return
		}
	}

	if message.Text == "" {
		return
	}

	// Логируем входящее
	middleware.LogMessage(message)

	chatID := message.Chat.ID
	userID := message.From.ID

	// Бот работает только в личке
	if !message.Chat.IsPrivate() {
		return
	}

	// Всё, кроме /start, требует регистрации
	if !b.accessFilter.Allow(ctx, userID, message.Text) {
		b.sendMessage(chatID, "Сначала зарегистрируйся командой /start")
		return
	}

	// Rate limiting
	if !b.rateLimiter.Allow(userID) {
		log.WithField("user_id", userID).Debug("rate limited")
		return
	}

	// Парсим команду
	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	log.WithFields(log.Fields{
		"isCommand": isCommand,
		"cmd":       cmd,
		"args":      args,
		"text":      message.Text,
	}).Debug("parsed command")

	if isCommand {
		b.routeCommand(ctx, chatID, userID, message.From.UserName, cmd, args)
	}
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, chatID, userID int64, userName, cmd string, args []string) {
	log.WithFields(log.Fields{
		"cmd":  cmd,
		"args": args,
	}).Debug("routing command")

	// Админ-команды получают первый шанс (login/logout работают всегда)
	if b.adminHandler.HandleCommand(ctx, chatID, userID, cmd, args) {
		return
	}

	switch cmd {
	case "start":
		b.prizeHandler.HandleStart(ctx, chatID, userID, userName)

	case "help":
		b.sendMessage(chatID, helpText)

	case "rating", "рейтинг":
		b.prizeHandler.HandleRating(ctx, chatID)

	case "мои":
		b.prizeHandler.HandleCollage(ctx, chatID, userID)

	case "пропущенные":
		b.prizeHandler.HandleMissed(ctx, chatID, userID)

	case "купить":
		b.prizeHandler.HandleBuy(ctx, chatID, userID, args)

	case "баланс":
		b.economyHandler.HandleBalance(ctx, chatID, userID)

	case "история":
		b.economyHandler.HandleHistory(ctx, chatID, userID)
	}
}

const helpText = `Доступные команды:
/start — регистрация
/rating — рейтинг победителей
/мои — коллаж твоих призов
/пропущенные — призы, которые не дошли (можно купить со скидкой)
/купить <id> — купить приз за монеты
/баланс — твой баланс монет
/история — последние операции с монетами

Админам: /login <пароль>`

// sendMessage — утилита для отправки сообщений.
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

// CommandParser парсит команды с префиксами /, ! и .
type CommandParser struct {
	validPrefixes []string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser() *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"!", ".", "/"},
	}
}

// ParseCommand разбирает текст на команду и аргументы.
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}

	if !hasPrefix {
		return "", nil, false
	}

	text = strings.TrimSpace(text)
	parts := strings.Fields(text)

	if len(parts) == 0 {
		return "", nil, false
	}

	command := strings.ToLower(parts[0])
	// /start@prizebot и подобные упоминания — отрезаем хвост после @
	if at := strings.Index(command, "@"); at != -1 {
		command = command[:at]
	}

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}

	return command, args, true
}
