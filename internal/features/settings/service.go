// Package settings — service.go содержит типизированный доступ к настройкам
// и абстракцию «множество админов» поверх CSV-строки в bot_settings.
//
// Настройки НЕ кешируются: каждое обращение читает таблицу заново,
// поэтому изменение через /set действует сразу, без перезапуска.
package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"prizebot/internal/config"
)

// store — операции хранилища, нужные сервису настроек.
// Реализуется *Repository; в тестах подменяется картой в памяти.
type store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	GetAll(ctx context.Context) (map[string]string, error)
}

// Service предоставляет типизированный доступ к настройкам бота.
type Service struct {
	repo store
	cfg  *config.Config
}

// NewService создаёт сервис настроек.
func NewService(repo store, cfg *config.Config) *Service {
	return &Service{repo: repo, cfg: cfg}
}

// Get возвращает строковое значение ключа, подставляя дефолт,
// если ключ не записан. Ошибка БД тоже приводит к дефолту —
// розыгрыш не должен падать из-за отсутствующей настройки.
func (s *Service) Get(ctx context.Context, key string) string {
	value, found, err := s.repo.Get(ctx, key)
	if err != nil {
		log.WithError(err).WithField("key", key).Error("Ошибка чтения настройки, используем дефолт")
		return defaults[key]
	}
	if !found {
		return defaults[key]
	}
	return value
}

// Set записывает значение ключа. Неизвестные ключи отклоняются.
func (s *Service) Set(ctx context.Context, key, value string) error {
	if !IsKnownKey(key) {
		return fmt.Errorf("неизвестная настройка: %s", key)
	}
	if err := validateValue(key, value); err != nil {
		return err
	}
	return s.repo.Set(ctx, key, value)
}

// GetAll возвращает все настройки, включая незаписанные дефолты.
func (s *Service) GetAll(ctx context.Context) (map[string]string, error) {
	stored, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range stored {
		out[k] = v
	}
	return out, nil
}

// RevealInterval возвращает интервал между розыгрышами.
func (s *Service) RevealInterval(ctx context.Context) time.Duration {
	raw := s.Get(ctx, KeyRevealInterval)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.WithField("value", raw).Warn("Некорректный reveal_interval, используем дефолт")
		return DefaultRevealInterval
	}
	return d
}

// MaxWinners возвращает лимит победителей на один приз.
func (s *Service) MaxWinners(ctx context.Context) int {
	n, err := strconv.Atoi(s.Get(ctx, KeyMaxWinners))
	if err != nil || n <= 0 {
		return 3
	}
	return n
}

// CoinsPerWin возвращает награду за выигранный приз.
// Во время бонусного часа награда удваивается.
func (s *Service) CoinsPerWin(ctx context.Context) int64 {
	n, err := strconv.ParseInt(s.Get(ctx, KeyCoinsPerWin), 10, 64)
	if err != nil || n < 0 {
		n = 10
	}
	if s.BonusHour(ctx) {
		n *= 2
	}
	return n
}

// BonusHour сообщает, включён ли бонусный час.
func (s *Service) BonusHour(ctx context.Context) bool {
	return s.Get(ctx, KeyBonusHour) == "on"
}

// MissedPrice возвращает фиксированную цену пропущенного приза.
func (s *Service) MissedPrice(ctx context.Context) int64 {
	n, err := strconv.ParseInt(s.Get(ctx, KeyMissedPrice), 10, 64)
	if err != nil || n <= 0 {
		return 5
	}
	return n
}

// IsAdmin проверяет, входит ли пользователь в множество админов:
// стартовый список из окружения (ADMIN_IDS) плюс добавленные через /addadmin.
func (s *Service) IsAdmin(ctx context.Context, userID int64) bool {
	for _, id := range s.cfg.AdminIDs {
		if id == userID {
			return true
		}
	}
	for _, id := range parseAdminCSV(s.Get(ctx, KeyAdmins)) {
		if id == userID {
			return true
		}
	}
	return false
}

// AddAdmin добавляет пользователя в множество админов.
// Повторное добавление — no-op.
func (s *Service) AddAdmin(ctx context.Context, userID int64) error {
	current := parseAdminCSV(s.Get(ctx, KeyAdmins))
	for _, id := range current {
		if id == userID {
			return nil
		}
	}
	current = append(current, userID)

	parts := make([]string, 0, len(current))
	for _, id := range current {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	// CSV — деталь хранения; наружу торчат только IsAdmin/AddAdmin.
	return s.repo.Set(ctx, KeyAdmins, strings.Join(parts, ","))
}

// validateValue проверяет значение перед записью, чтобы /set не мог
// сломать розыгрыш нечитаемой настройкой.
func validateValue(key, value string) error {
	switch key {
	case KeyRevealInterval:
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return fmt.Errorf("%s: ожидается положительный интервал вида \"30m\" или \"1h\"", key)
		}
	case KeyMaxWinners:
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s: ожидается целое число > 0", key)
		}
	case KeyCoinsPerWin:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 {
			return fmt.Errorf("%s: ожидается целое число >= 0", key)
		}
	case KeyMissedPrice:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s: ожидается целое число > 0", key)
		}
	case KeyBonusHour:
		if value != "on" && value != "off" {
			return fmt.Errorf("%s: ожидается \"on\" или \"off\"", key)
		}
	case KeyAdmins:
		if _, err := parseAdminCSVStrict(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

// parseAdminCSV разбирает CSV user_id, молча пропуская мусор.
// Настройка могла быть записана руками в БД — не падаем из-за неё.
func parseAdminCSV(s string) []int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var out []int64
	for _, p := range strings.Split(s, ",") {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			log.WithField("part", p).Warn("Некорректный user_id в списке админов")
			continue
		}
		out = append(out, v)
	}
	return out
}

func parseAdminCSVStrict(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []int64
	for _, p := range strings.Split(s, ",") {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("некорректный user_id %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
