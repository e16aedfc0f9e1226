package filters

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
)

type registrar interface {
	IsRegistered(ctx context.Context, userID int64) (bool, error)
}

// AccessFilter пропускает команды только от зарегистрированных пользователей.
// /start разрешён всегда, иначе зарегистрироваться было бы невозможно.
type AccessFilter struct {
	users registrar
}

func NewAccessFilter(users registrar) *AccessFilter {
	return &AccessFilter{users: users}
}

func (f *AccessFilter) Allow(ctx context.Context, userID int64, text string) bool {
	if strings.HasPrefix(text, "/start") {
		return true
	}

	registered, err := f.users.IsRegistered(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Не удалось проверить регистрацию пользователя")
		return false
	}
	return registered
}
