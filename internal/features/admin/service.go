// Package admin — service.go содержит логику аутентификации и проверки прав.
//
// Админом считается тот, кто (а) указан в ADMIN_IDS, (б) добавлен через
// /addadmin (хранится в bot_settings), или (в) залогинился паролем
// (/login) и имеет живую сессию.
package admin

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"prizebot/internal/common"
	"prizebot/internal/config"
	"prizebot/internal/features/settings"
)

// Service управляет доступом к админ-командам.
type Service struct {
	cfg      *config.Config
	settings *settings.Service

	mu       sync.Mutex
	sessions map[int64]*session
	fails    map[int64][]time.Time // неудачные попытки входа
}

// NewService создаёт сервис админки.
func NewService(cfg *config.Config, settingsService *settings.Service) *Service {
	return &Service{
		cfg:      cfg,
		settings: settingsService,
		sessions: make(map[int64]*session),
		fails:    make(map[int64][]time.Time),
	}
}

// Login проверяет пароль и открывает сессию на 24 часа.
// После трёх неудачных попыток за час вход блокируется
// (common.ErrTooManyAttempts).
func (s *Service) Login(userID int64, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Считаем только свежие неудачи
	cutoff := time.Now().Add(-loginFailWindow)
	var recent []time.Time
	for _, t := range s.fails[userID] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	s.fails[userID] = recent

	if len(recent) >= maxLoginFails {
		return common.ErrTooManyAttempts
	}

	if !verifyArgon2id(password, s.cfg.AdminPasswordHash) {
		s.fails[userID] = append(s.fails[userID], time.Now())
		log.WithField("user_id", userID).Warn("Неудачная попытка входа в админку")
		return common.ErrWrongPassword
	}

	delete(s.fails, userID)
	s.sessions[userID] = &session{
		UserID:    userID,
		ExpiresAt: time.Now().Add(sessionTTL),
	}
	log.WithField("user_id", userID).Info("Админ залогинился")
	return nil
}

// IsAuthorized проверяет право пользователя на админ-команды.
func (s *Service) IsAuthorized(ctx context.Context, userID int64) bool {
	if s.settings.IsAdmin(ctx, userID) {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return false
	}
	if time.Now().After(sess.ExpiresAt) {
		delete(s.sessions, userID)
		return false
	}
	return true
}

// Logout закрывает сессию.
func (s *Service) Logout(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// verifyArgon2id проверяет пароль по хешу Argon2id.
// Формат хеша: $argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<hash_base64>
func verifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory uint32
	var iterations uint32
	var parallelism uint8
	_, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism)
	if err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expectedHash)))

	// Сравниваем в постоянном времени (защита от timing attack)
	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1
}
