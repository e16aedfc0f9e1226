// Package economy — repository.go выполняет все операции с балансом (users.coins)
// и журналом bonus_actions.
// Все денежные операции выполняются в транзакциях БД для целостности данных.
package economy

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"prizebot/internal/common"
)

// Repository предоставляет методы для работы с монетами.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий экономики.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetBalance возвращает текущий баланс пользователя.
func (r *Repository) GetBalance(ctx context.Context, userID int64) (int64, error) {
	query := `SELECT coins FROM users WHERE user_id = $1`
	var coins int64
	err := r.db.QueryRow(ctx, query, userID).Scan(&coins)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, common.ErrUserNotFound
		}
		return 0, fmt.Errorf("ошибка получения баланса: %w", err)
	}
	return coins, nil
}

// AdjustCoins изменяет баланс на delta и записывает операцию в журнал.
// Обновление баланса и запись журнала атомарны: либо оба произойдут,
// либо ни одного. Списание, уводящее баланс в минус, отклоняется.
func (r *Repository) AdjustCoins(ctx context.Context, userID, delta int64, actionType string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	// Блокируем строку пользователя, чтобы параллельные операции
	// не потеряли обновление
	var coins int64
	err = tx.QueryRow(ctx, `
		SELECT coins FROM users WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&coins)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.ErrUserNotFound
		}
		return fmt.Errorf("ошибка получения баланса: %w", err)
	}

	if coins+delta < 0 {
		return common.ErrInsufficientFunds
	}

	_, err = tx.Exec(ctx, `
		UPDATE users SET coins = coins + $2 WHERE user_id = $1
	`, userID, delta)
	if err != nil {
		return fmt.Errorf("ошибка изменения баланса: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO bonus_actions (user_id, action_type, coins_change)
		VALUES ($1, $2, $3)
	`, userID, actionType, delta)
	if err != nil {
		return fmt.Errorf("ошибка записи в журнал: %w", err)
	}

	return tx.Commit(ctx)
}

// GetHistory возвращает последние N операций пользователя, новые первыми.
func (r *Repository) GetHistory(ctx context.Context, userID int64, limit int) ([]*BonusAction, error) {
	query := `
		SELECT action_id, user_id, action_type, coins_change, action_time
		FROM bonus_actions
		WHERE user_id = $1
		ORDER BY action_time DESC, action_id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала: %w", err)
	}
	defer rows.Close()

	var actions []*BonusAction
	for rows.Next() {
		var a BonusAction
		if err := rows.Scan(&a.ActionID, &a.UserID, &a.ActionType, &a.CoinsChange, &a.ActionTime); err != nil {
			return nil, fmt.Errorf("ошибка сканирования операции: %w", err)
		}
		actions = append(actions, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return actions, nil
}
