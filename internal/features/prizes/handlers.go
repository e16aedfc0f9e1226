// Package prizes — handlers.go обрабатывает команды и нажатия кнопок:
// /start, /rating, /мои (коллаж), /пропущенные, /купить и колбэки
// «Получить!» / «Купить».
//
// Сервис возвращает типизированные результаты и ошибки; весь текст
// для пользователя формируется только здесь.
package prizes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"prizebot/internal/common"
	"prizebot/internal/imgproc"
)

// Префиксы callback data у inline-кнопок.
const (
	callbackClaimPrefix  = "prize_"  // Кнопка «Получить!» под розыгрышем
	callbackBuyPrefix    = "buy_"    // Покупка по каталожной цене
	callbackMissedPrefix = "missed_" // Покупка пропущенного со скидкой
)

// Handler обрабатывает призовые команды и колбэки.
type Handler struct {
	service *Service
	bot     *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик призов.
func NewHandler(service *Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, bot: bot}
}

// SendPrize доставляет скрытую картинку приза с кнопкой «Получить!».
// Используется движком как функция рассылки (prizes.NotifyFunc).
func (h *Handler) SendPrize(userID int64, hiddenPath string, prizeID int64) error {
	photo := tgbotapi.NewPhoto(userID, tgbotapi.FilePath(hiddenPath))
	photo.ReplyMarkup = claimMarkup(prizeID)
	if _, err := h.bot.Send(photo); err != nil {
		return fmt.Errorf("отправка приза %d пользователю %d: %w", prizeID, userID, err)
	}
	return nil
}

// claimMarkup собирает клавиатуру с одной кнопкой «Получить!».
func claimMarkup(prizeID int64) *tgbotapi.InlineKeyboardMarkup {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Получить!", fmt.Sprintf("%s%d", callbackClaimPrefix, prizeID)),
		),
	)
	return &markup
}

// HandleStart обрабатывает /start — регистрацию пользователя.
func (h *Handler) HandleStart(ctx context.Context, chatID, userID int64, userName string) {
	created, err := h.service.Register(ctx, userID, userName)
	if err != nil {
		log.WithError(err).Error("Ошибка регистрации")
		h.sendMessage(chatID, "❌ Ошибка регистрации, попробуйте позже")
		return
	}
	if !created {
		h.sendMessage(chatID, "Ты уже зарегистрирован!")
		return
	}

	maxWinners := h.service.MaxWinners(ctx)
	h.sendMessage(chatID, fmt.Sprintf(
		"Привет! Добро пожаловать!\n"+
			"Тебя успешно зарегистрировали!\n"+
			"Периодически тебе будут приходить новые картинки и у тебя будет шанс их получить!\n"+
			"Для этого нужно быстрее всех нажать на кнопку «Получить!»\n\n"+
			"Только %d %s пользователей получат картинку!)",
		maxWinners, pluralizeFirst(maxWinners),
	))
}

// HandleRating обрабатывает /rating — топ победителей.
func (h *Handler) HandleRating(ctx context.Context, chatID int64) {
	rating, err := h.service.Rating(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка получения рейтинга")
		h.sendMessage(chatID, "❌ Ошибка получения рейтинга")
		return
	}

	if len(rating) == 0 {
		h.sendMessage(chatID, "📊 Рейтинг пока пуст. Стань первым победителем!")
		return
	}

	var sb strings.Builder
	sb.WriteString("🏆 ТОП ПОБЕДИТЕЛЕЙ 🏆\n\n")
	for i, row := range rating {
		var place string
		switch i {
		case 0:
			place = "🥇 "
		case 1:
			place = "🥈 "
		case 2:
			place = "🥉 "
		default:
			place = fmt.Sprintf("%d. ", i+1)
		}
		sb.WriteString(fmt.Sprintf("%s%s — %d %s\n",
			place, row.UserName, row.Wins, common.PluralizePrizes(int64(row.Wins))))
	}
	h.sendMessage(chatID, sb.String())
}

// HandleCollage обрабатывает /мои — коллаж призов пользователя.
func (h *Handler) HandleCollage(ctx context.Context, chatID, userID int64) {
	collage, err := h.service.Collage(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Ошибка сборки коллажа")
		h.sendMessage(chatID, "❌ Ошибка сборки коллажа")
		return
	}
	if collage == nil {
		h.sendMessage(chatID, "📭 В каталоге пока нет призов")
		return
	}

	data, err := imgproc.EncodeJPEG(collage)
	if err != nil {
		log.WithError(err).Error("Ошибка кодирования коллажа")
		h.sendMessage(chatID, "❌ Ошибка сборки коллажа")
		return
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "collage.jpg", Bytes: data})
	photo.Caption = "🖼 Твои призы — в открытую, остальные пока спрятаны"
	if _, err := h.bot.Send(photo); err != nil {
		log.WithError(err).Error("Ошибка отправки коллажа")
	}
}

// HandleMissed обрабатывает /пропущенные — список призов,
// которые можно купить со скидкой.
func (h *Handler) HandleMissed(ctx context.Context, chatID, userID int64) {
	missed, err := h.service.Missed(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Ошибка получения пропущенных призов")
		h.sendMessage(chatID, "❌ Ошибка получения списка")
		return
	}
	if len(missed) == 0 {
		h.sendMessage(chatID, "✨ Пропущенных призов нет")
		return
	}

	price := h.service.MissedPrice(ctx)
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, p := range missed {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("Приз #%d — %s", p.PrizeID, common.FormatCoins(price)),
				fmt.Sprintf("%s%d", callbackMissedPrefix, p.PrizeID),
			),
		))
	}

	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf(
		"🕑 Пропущенные призы — второй шанс по %s за штуку:", common.FormatCoins(price)))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки списка пропущенных")
	}
}

// HandleBuy обрабатывает /купить <prize_id> — покупку по каталожной цене.
func (h *Handler) HandleBuy(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) < 1 {
		h.sendMessage(chatID, "❌ Формат: /купить <номер приза>")
		return
	}
	prizeID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		h.sendMessage(chatID, "❌ Номер приза должен быть числом")
		return
	}

	prize, err := h.service.Purchase(ctx, userID, prizeID)
	if err != nil {
		h.sendMessage(chatID, purchaseErrorText(err))
		return
	}
	h.deliverPrize(chatID, prize, fmt.Sprintf(
		"🛒 Покупка удалась! Приз #%d твой (−%s)", prize.PrizeID, common.FormatCoins(prize.Price)))
}

// HandleCallback разбирает callback data и направляет к нужной операции.
// Возвращает false, если колбэк не призовой.
func (h *Handler) HandleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) bool {
	data := cb.Data
	switch {
	case strings.HasPrefix(data, callbackClaimPrefix):
		h.handleClaimCallback(ctx, cb, strings.TrimPrefix(data, callbackClaimPrefix))
	case strings.HasPrefix(data, callbackMissedPrefix):
		h.handleMissedCallback(ctx, cb, strings.TrimPrefix(data, callbackMissedPrefix))
	case strings.HasPrefix(data, callbackBuyPrefix):
		h.handleBuyCallback(ctx, cb, strings.TrimPrefix(data, callbackBuyPrefix))
	default:
		return false
	}
	return true
}

// handleClaimCallback — нажатие «Получить!» под разосланным призом.
func (h *Handler) handleClaimCallback(ctx context.Context, cb *tgbotapi.CallbackQuery, rawID string) {
	prizeID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		h.answer(cb.ID, "❌ Некорректный приз")
		return
	}
	userID := cb.From.ID

	result, err := h.service.Claim(ctx, userID, prizeID)
	switch {
	case err == nil:
		// успех — ниже
	case errors.Is(err, common.ErrExhausted):
		// Повторный клик по разобранному призу тоже попадает сюда:
		// лимит проверяется раньше дубликата
		h.answer(cb.ID, "⏳ Все призы уже разыграны!")
		h.sendMessage(userID, "😔 К сожалению, этот приз уже разобрали!\nНе расстраивайся, попробуй получить другие призы! 🍀")
		return
	case errors.Is(err, common.ErrAlreadyClaimed):
		h.answer(cb.ID, "⚠️ Ты уже получал этот приз!")
		h.sendMessage(userID, "📦 Ты уже получал этот приз ранее!\nПопробуй получить другие призы!")
		return
	case errors.Is(err, common.ErrPrizeNotFound):
		h.answer(cb.ID, "❌ Ошибка: приз не найден")
		return
	default:
		log.WithError(err).WithFields(log.Fields{
			"user_id":  userID,
			"prize_id": prizeID,
		}).Error("Ошибка присуждения приза")
		h.answer(cb.ID, "❌ Что-то пошло не так, попробуй ещё раз")
		return
	}

	h.answer(cb.ID, "🎁 Поздравляем с выигрышем!")
	h.deliverPrize(userID, result.Prize, fmt.Sprintf(
		"🎉 Поздравляем! Ты получил приз! 🎉\nКартинка теперь твоя! (%s)",
		common.FormatCoinsDelta(result.Reward)))

	// Убираем кнопку и пишем в исходном сообщении, сколько мест осталось
	if cb.Message != nil {
		edit := tgbotapi.NewEditMessageCaption(cb.Message.Chat.ID, cb.Message.MessageID, fmt.Sprintf(
			"✅ Приз получен!\nОсталось мест: %d/%d",
			result.SlotsLeft, h.service.MaxWinners(ctx)))
		if _, err := h.bot.Send(edit); err != nil {
			log.WithError(err).Debug("Не удалось изменить подпись сообщения")
		}
	}
}

// handleBuyCallback — покупка по каталожной цене через кнопку.
func (h *Handler) handleBuyCallback(ctx context.Context, cb *tgbotapi.CallbackQuery, rawID string) {
	prizeID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		h.answer(cb.ID, "❌ Некорректный приз")
		return
	}
	userID := cb.From.ID

	prize, err := h.service.Purchase(ctx, userID, prizeID)
	if err != nil {
		h.answer(cb.ID, purchaseErrorText(err))
		return
	}
	h.answer(cb.ID, "🛒 Покупка удалась!")
	h.deliverPrize(userID, prize, fmt.Sprintf(
		"🛒 Приз #%d твой (−%s)", prize.PrizeID, common.FormatCoins(prize.Price)))
}

// handleMissedCallback — покупка пропущенного приза со скидкой.
func (h *Handler) handleMissedCallback(ctx context.Context, cb *tgbotapi.CallbackQuery, rawID string) {
	prizeID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		h.answer(cb.ID, "❌ Некорректный приз")
		return
	}
	userID := cb.From.ID

	prize, err := h.service.PurchaseMissed(ctx, userID, prizeID)
	if err != nil {
		h.answer(cb.ID, purchaseErrorText(err))
		return
	}
	h.answer(cb.ID, "🛒 Второй шанс использован!")
	h.deliverPrize(userID, prize, fmt.Sprintf(
		"🕑 Пропущенный приз #%d теперь твой!", prize.PrizeID))
}

// purchaseErrorText переводит типизированную ошибку покупки в текст.
// «Уже получал», «разобрали» и «не хватает монет» — три разных ответа,
// их нельзя смешивать.
func purchaseErrorText(err error) string {
	switch {
	case errors.Is(err, common.ErrAlreadyClaimed):
		return "📦 У тебя уже есть этот приз!"
	case errors.Is(err, common.ErrInsufficientFunds):
		return "💸 Не хватает монет на этот приз"
	case errors.Is(err, common.ErrPrizeNotFound):
		return "❌ Такой приз не найден"
	case errors.Is(err, common.ErrUserNotFound):
		return "❌ Сначала зарегистрируйся: /start"
	default:
		log.WithError(err).Error("Ошибка покупки")
		return "❌ Ошибка покупки, попробуй позже"
	}
}

// deliverPrize отправляет оригинал картинки приза с подписью.
func (h *Handler) deliverPrize(chatID int64, prize *Prize, caption string) {
	if prize.Image == "" {
		h.sendMessage(chatID, caption)
		return
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(h.service.ClearPath(prize.Image)))
	photo.Caption = caption
	if _, err := h.bot.Send(photo); err != nil {
		log.WithError(err).WithField("prize_id", prize.PrizeID).Error("Ошибка отправки приза")
		h.sendMessage(chatID, caption)
	}
}

// answer отвечает на callback query (всплывашка у кнопки).
func (h *Handler) answer(callbackID, text string) {
	cb := tgbotapi.NewCallback(callbackID, text)
	if _, err := h.bot.Request(cb); err != nil {
		log.WithError(err).Debug("Не удалось ответить на callback")
	}
}

// sendMessage — вспомогательный метод для отправки текстовых сообщений.
func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}

// pluralizeFirst: «3 первых», «1 первый», «2 первых» — форма слова «первый».
func pluralizeFirst(n int) string {
	if n%10 == 1 && n%100 != 11 {
		return "первый"
	}
	return "первых"
}
