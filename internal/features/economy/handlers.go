// Package economy — handlers.go обрабатывает команды:
// /баланс (текущий счёт), /история (журнал операций).
package economy

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"prizebot/internal/common"
)

// Handler обрабатывает команды экономики.
type Handler struct {
	service *Service
	bot     *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик экономических команд.
func NewHandler(service *Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandleBalance обрабатывает команду /баланс — показывает счёт.
//
// Формат ответа:
//
//	💰 Баланс: 150 монет
func (h *Handler) HandleBalance(ctx context.Context, chatID, userID int64) {
	balance, err := h.service.GetBalance(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Ошибка получения баланса")
		h.sendMessage(chatID, "❌ Ошибка получения баланса")
		return
	}

	h.sendMessage(chatID, fmt.Sprintf("💰 Баланс: %s", common.FormatCoins(balance)))
}

// HandleHistory обрабатывает команду /история — журнал операций с монетами.
func (h *Handler) HandleHistory(ctx context.Context, chatID, userID int64) {
	history, err := h.service.GetHistoryText(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Ошибка получения истории операций")
		h.sendMessage(chatID, "❌ Ошибка получения истории операций")
		return
	}
	h.sendMessage(chatID, history)
}

// sendMessage — вспомогательный метод для отправки текстовых сообщений.
func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
