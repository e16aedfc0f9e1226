// Package admin — handlers.go обрабатывает админ-команды:
// /login, /addprize, /import, /set, /settings, /coins, /resend, /addadmin.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"prizebot/internal/common"
	"prizebot/internal/config"
	"prizebot/internal/features/economy"
	"prizebot/internal/features/prizes"
	"prizebot/internal/features/settings"
)

// Handler обрабатывает админ-команды.
type Handler struct {
	service         *Service
	settingsService *settings.Service
	prizeService    *prizes.Service
	economyService  *economy.Service
	bot             *tgbotapi.BotAPI
	cfg             *config.Config

	// reschedule дергается при изменении reveal_interval —
	// планировщик перечитывает интервал без рестарта
	reschedule func(time.Duration)
}

// NewHandler создаёт обработчик админ-команд.
func NewHandler(
	service *Service,
	settingsService *settings.Service,
	prizeService *prizes.Service,
	economyService *economy.Service,
	bot *tgbotapi.BotAPI,
	cfg *config.Config,
) *Handler {
	return &Handler{
		service:         service,
		settingsService: settingsService,
		prizeService:    prizeService,
		economyService:  economyService,
		bot:             bot,
		cfg:             cfg,
	}
}

// SetReschedule подключает перепланирование розыгрыша (вызывается при сборке).
func (h *Handler) SetReschedule(reschedule func(time.Duration)) {
	h.reschedule = reschedule
}

// HandleCommand выполняет одну админ-команду.
// Возвращает false, если команда не админская (пусть её разберёт
// обычный роутер бота).
func (h *Handler) HandleCommand(ctx context.Context, chatID, userID int64, cmd string, args []string) bool {
	switch cmd {
	case "login":
		h.handleLogin(chatID, userID, args)
		return true
	case "logout":
		h.service.Logout(userID)
		h.sendMessage(chatID, "👋 Сессия закрыта")
		return true
	case "import", "set", "settings", "coins", "resend", "addadmin", "stats":
		// проверка прав ниже
	default:
		return false
	}

	if !h.service.IsAuthorized(ctx, userID) {
		h.sendMessage(chatID, "❌ У вас нет прав администратора. Вход: /login <пароль>")
		return true
	}

	switch cmd {
	case "import":
		h.handleImport(ctx, chatID)
	case "set":
		h.handleSet(ctx, chatID, args)
	case "settings":
		h.handleSettings(ctx, chatID)
	case "coins":
		h.handleCoins(ctx, chatID, args)
	case "resend":
		h.handleResend(ctx, chatID, args)
	case "addadmin":
		h.handleAddAdmin(ctx, chatID, args)
	case "stats":
		h.handleStats(ctx, chatID)
	}
	return true
}

// HandlePhoto обрабатывает фото с подписью «/addprize <цена>» —
// добавление нового приза в каталог.
// Возвращает false, если фото не админское добавление приза.
func (h *Handler) HandlePhoto(ctx context.Context, message *tgbotapi.Message) bool {
	caption := strings.TrimSpace(message.Caption)
	if !strings.HasPrefix(caption, "/addprize") {
		return false
	}
	chatID := message.Chat.ID
	userID := message.From.ID

	if !h.service.IsAuthorized(ctx, userID) {
		h.sendMessage(chatID, "❌ У вас нет прав администратора")
		return true
	}

	price := h.cfg.DefaultPrizePrice
	if fields := strings.Fields(caption); len(fields) > 1 {
		p, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil || p <= 0 {
			h.sendMessage(chatID, "❌ Формат: фото с подписью «/addprize <цена>»")
			return true
		}
		price = p
	}

	// Берём самый большой из вариантов фото
	if len(message.Photo) == 0 {
		h.sendMessage(chatID, "❌ Не вижу фото")
		return true
	}
	photo := message.Photo[len(message.Photo)-1]

	data, err := h.downloadFile(photo.FileID)
	if err != nil {
		log.WithError(err).Error("Ошибка скачивания фото")
		h.sendMessage(chatID, "❌ Не удалось скачать фото")
		return true
	}

	filename := photo.FileUniqueID + ".jpg"
	id, err := h.prizeService.AddPrize(ctx, filename, data, userID, price)
	if err != nil {
		log.WithError(err).Error("Ошибка добавления приза")
		h.sendMessage(chatID, "❌ Не удалось добавить приз")
		return true
	}

	h.sendMessage(chatID, fmt.Sprintf("✅ Приз #%d добавлен, цена %s", id, common.FormatCoins(price)))
	return true
}

func (h *Handler) handleLogin(chatID, userID int64, args []string) {
	// Логин принимается только в личке: пароль в группе — это утечка
	if chatID != userID {
		h.sendMessage(chatID, "❌ /login принимается только в личных сообщениях")
		return
	}
	if len(args) < 1 {
		h.sendMessage(chatID, "❌ Формат: /login <пароль>")
		return
	}

	err := h.service.Login(userID, args[0])
	switch {
	case err == nil:
		h.sendMessage(chatID, "✅ Вход выполнен. Команды: /addprize, /import, /set, /settings, /coins, /resend, /addadmin, /stats")
	case errors.Is(err, common.ErrTooManyAttempts):
		h.sendMessage(chatID, "⏳ Слишком много попыток, подождите час")
	case errors.Is(err, common.ErrWrongPassword):
		h.sendMessage(chatID, "❌ Неверный пароль")
	default:
		log.WithError(err).Error("Ошибка входа")
		h.sendMessage(chatID, "❌ Ошибка входа")
	}
}

func (h *Handler) handleImport(ctx context.Context, chatID int64) {
	added, err := h.prizeService.ImportDir(ctx, h.cfg.DefaultPrizePrice)
	if err != nil {
		log.WithError(err).Error("Ошибка импорта каталога")
		h.sendMessage(chatID, "❌ Ошибка импорта каталога")
		return
	}
	unused, _ := h.prizeService.UnusedCount(ctx)
	h.sendMessage(chatID, fmt.Sprintf(
		"📦 Импорт завершён: добавлено %d, неразыгранных в каталоге %d", added, unused))
}

func (h *Handler) handleSet(ctx context.Context, chatID int64, args []string) {
	if len(args) < 2 {
		h.sendMessage(chatID, "❌ Формат: /set <ключ> <значение>\nКлючи: "+strings.Join(settings.KnownKeys(), ", "))
		return
	}
	key, value := args[0], args[1]

	if err := h.settingsService.Set(ctx, key, value); err != nil {
		h.sendMessage(chatID, "❌ "+err.Error())
		return
	}

	// Интервал розыгрыша применяем сразу, без рестарта
	if key == settings.KeyRevealInterval && h.reschedule != nil {
		h.reschedule(h.settingsService.RevealInterval(ctx))
	}

	h.sendMessage(chatID, fmt.Sprintf("✅ %s = %s", key, value))
}

func (h *Handler) handleSettings(ctx context.Context, chatID int64) {
	all, err := h.settingsService.GetAll(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка чтения настроек")
		h.sendMessage(chatID, "❌ Ошибка чтения настроек")
		return
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("⚙️ Настройки:\n")
	for _, k := range keys {
		v := all[k]
		if v == "" {
			v = "—"
		}
		sb.WriteString(fmt.Sprintf("%s = %s\n", k, v))
	}
	h.sendMessage(chatID, sb.String())
}

func (h *Handler) handleCoins(ctx context.Context, chatID int64, args []string) {
	if len(args) < 2 {
		h.sendMessage(chatID, "❌ Формат: /coins <user_id> <±сумма>")
		return
	}
	userID, err1 := strconv.ParseInt(args[0], 10, 64)
	delta, err2 := strconv.ParseInt(args[1], 10, 64)
	if err1 != nil || err2 != nil {
		h.sendMessage(chatID, "❌ user_id и сумма должны быть числами")
		return
	}

	err := h.economyService.AdjustCoins(ctx, userID, delta)
	switch {
	case err == nil:
		balance, _ := h.economyService.GetBalance(ctx, userID)
		h.sendMessage(chatID, fmt.Sprintf("✅ %s, новый баланс: %s",
			common.FormatCoinsDelta(delta), common.FormatCoins(balance)))
	case errors.Is(err, common.ErrUserNotFound):
		h.sendMessage(chatID, "❌ Пользователь не найден")
	case errors.Is(err, common.ErrInsufficientFunds):
		h.sendMessage(chatID, "❌ Нельзя увести баланс в минус")
	case errors.Is(err, common.ErrInvalidAmount):
		h.sendMessage(chatID, "❌ Сумма должна быть ненулевой")
	default:
		log.WithError(err).Error("Ошибка изменения баланса")
		h.sendMessage(chatID, "❌ Ошибка изменения баланса")
	}
}

func (h *Handler) handleResend(ctx context.Context, chatID int64, args []string) {
	if len(args) < 1 {
		h.sendMessage(chatID, "❌ Формат: /resend <номер приза|all>")
		return
	}

	var delivered, failed int
	var err error
	if args[0] == "all" {
		delivered, failed, err = h.prizeService.ResendAll(ctx)
	} else {
		prizeID, parseErr := strconv.ParseInt(args[0], 10, 64)
		if parseErr != nil {
			h.sendMessage(chatID, "❌ Номер приза должен быть числом (или all)")
			return
		}
		delivered, failed, err = h.prizeService.Resend(ctx, prizeID)
	}

	switch {
	case errors.Is(err, common.ErrPrizeNotFound):
		h.sendMessage(chatID, "❌ Такой приз не найден")
	case err != nil:
		log.WithError(err).Error("Ошибка повторной доставки")
		h.sendMessage(chatID, "❌ Ошибка повторной доставки")
	default:
		h.sendMessage(chatID, fmt.Sprintf("📤 Доставлено: %d, снова не удалось: %d", delivered, failed))
	}
}

func (h *Handler) handleAddAdmin(ctx context.Context, chatID int64, args []string) {
	if len(args) < 1 {
		h.sendMessage(chatID, "❌ Формат: /addadmin <user_id>")
		return
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		h.sendMessage(chatID, "❌ user_id должен быть числом")
		return
	}

	if err := h.settingsService.AddAdmin(ctx, userID); err != nil {
		log.WithError(err).Error("Ошибка добавления админа")
		h.sendMessage(chatID, "❌ Ошибка добавления админа")
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("✅ Пользователь %d теперь админ", userID))
}

func (h *Handler) handleStats(ctx context.Context, chatID int64) {
	unused, err := h.prizeService.UnusedCount(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка чтения статистики")
		h.sendMessage(chatID, "❌ Ошибка чтения статистики")
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("📊 Неразыгранных призов: %d", unused))
}

// downloadFile скачивает файл с серверов Telegram.
func (h *Handler) downloadFile(fileID string) ([]byte, error) {
	url, err := h.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("получение ссылки на файл: %w", err)
	}

	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("скачивание файла: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("скачивание файла: статус %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// sendMessage — вспомогательный метод для отправки текстовых сообщений.
func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
