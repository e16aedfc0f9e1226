// Package economy — service.go содержит бизнес-логику работы с монетами:
// баланс, админские начисления, история операций.
package economy

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"prizebot/internal/common"
)

// Service управляет монетами бота.
type Service struct {
	repo *Repository
}

// NewService создаёт сервис экономики.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// GetBalance возвращает текущий баланс пользователя.
func (s *Service) GetBalance(ctx context.Context, userID int64) (int64, error) {
	return s.repo.GetBalance(ctx, userID)
}

// AdjustCoins изменяет баланс пользователя на delta (админская операция).
// Нулевая дельта отклоняется; уход в минус — тоже.
func (s *Service) AdjustCoins(ctx context.Context, userID, delta int64) error {
	if delta == 0 {
		return common.ErrInvalidAmount
	}
	if err := s.repo.AdjustCoins(ctx, userID, delta, ActionAdminAdjust); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"user_id": userID,
		"delta":   delta,
	}).Info("Баланс изменён админом")
	return nil
}

// GetHistoryText возвращает форматированную историю последних 10 операций.
func (s *Service) GetHistoryText(ctx context.Context, userID int64) (string, error) {
	actions, err := s.repo.GetHistory(ctx, userID, 10)
	if err != nil {
		return "", err
	}

	if len(actions) == 0 {
		return "📋 У вас пока нет операций с монетами", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 Последние %d операций:\n\n", len(actions)))
	for i, a := range actions {
		sb.WriteString(fmt.Sprintf("%d. %s | %s | %s\n",
			i+1,
			common.FormatDateTime(a.ActionTime),
			common.FormatCoinsDelta(a.CoinsChange),
			describeAction(a.ActionType),
		))
	}
	return sb.String(), nil
}

func describeAction(actionType string) string {
	switch actionType {
	case ActionWin:
		return "награда за приз"
	case ActionPurchase:
		return "покупка приза"
	case ActionAdminAdjust:
		return "операция админа"
	default:
		return actionType
	}
}
