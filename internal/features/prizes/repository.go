// Package prizes — repository.go выполняет все операции с таблицами
// users, prizes, winners и failed_prizes.
//
// Критичные к гонкам операции (Claim, Purchase) выполняются в транзакциях
// с блокировкой строки приза (FOR UPDATE): проверка числа победителей и
// вставка новой записи сериализуются по призу, поэтому лимит победителей
// не может быть превышен даже при одновременных нажатиях.
package prizes

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"prizebot/internal/common"
	"prizebot/internal/features/economy"
)

// Repository предоставляет методы для работы с призами в БД.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий призов.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// --- Пользователи ---

// RegisterUser регистрирует пользователя. Повторная регистрация — no-op.
// Возвращает true, если пользователь создан впервые.
func (r *Repository) RegisterUser(ctx context.Context, userID int64, userName string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO users (user_id, user_name, coins)
		VALUES ($1, $2, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, userName)
	if err != nil {
		return false, fmt.Errorf("ошибка регистрации пользователя: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UserExists проверяет, зарегистрирован ли пользователь.
func (r *Repository) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE user_id = $1)`, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки пользователя: %w", err)
	}
	return exists, nil
}

// Users возвращает ID всех зарегистрированных пользователей (для рассылки).
func (r *Repository) Users(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT user_id FROM users ORDER BY registration_date`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пользователей: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования user_id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// --- Каталог призов ---

// CreatePrize добавляет приз в каталог и возвращает его ID.
func (r *Repository) CreatePrize(ctx context.Context, image string, addedBy *int64, price int64) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO prizes (image, used, added_by, price)
		VALUES ($1, FALSE, $2, $3)
		RETURNING prize_id
	`, image, addedBy, price).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ошибка добавления приза: %w", err)
	}
	return id, nil
}

// PrizeByID возвращает приз по ID.
func (r *Repository) PrizeByID(ctx context.Context, prizeID int64) (*Prize, error) {
	var p Prize
	err := r.db.QueryRow(ctx, `
		SELECT prize_id, image, used, added_by, add_date, price
		FROM prizes WHERE prize_id = $1
	`, prizeID).Scan(&p.PrizeID, &p.Image, &p.Used, &p.AddedBy, &p.AddDate, &p.Price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrPrizeNotFound
		}
		return nil, fmt.Errorf("ошибка чтения приза: %w", err)
	}
	return &p, nil
}

// PrizeExistsByImage проверяет, есть ли приз с таким файлом (для импорта).
func (r *Repository) PrizeExistsByImage(ctx context.Context, image string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM prizes WHERE image = $1)`, image,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки приза: %w", err)
	}
	return exists, nil
}

// PickBroadcastCandidate выбирает случайный неразыгранный приз.
// Состояние НЕ меняется: пометка used выполняется отдельно (MarkBroadcast),
// чтобы успеть скрыть картинку до фиксации.
func (r *Repository) PickBroadcastCandidate(ctx context.Context) (*Prize, error) {
	var p Prize
	err := r.db.QueryRow(ctx, `
		SELECT prize_id, image, used, added_by, add_date, price
		FROM prizes
		WHERE used = FALSE
		ORDER BY RANDOM()
		LIMIT 1
	`).Scan(&p.PrizeID, &p.Image, &p.Used, &p.AddedBy, &p.AddDate, &p.Price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNoPrizes
		}
		return nil, fmt.Errorf("ошибка выбора приза: %w", err)
	}
	return &p, nil
}

// MarkBroadcast помечает приз разосланным. Идемпотентно: повторная
// пометка ничего не меняет, обратно флаг не снимается.
func (r *Repository) MarkBroadcast(ctx context.Context, prizeID int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE prizes SET used = TRUE WHERE prize_id = $1`, prizeID)
	if err != nil {
		return fmt.Errorf("ошибка пометки приза: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrPrizeNotFound
	}
	return nil
}

// UnusedCount возвращает число ещё не разыгранных призов.
func (r *Repository) UnusedCount(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM prizes WHERE used = FALSE`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта призов: %w", err)
	}
	return n, nil
}

// --- Присуждение ---

// Claim присуждает приз пользователю, если остались места.
// Вся операция — одна транзакция с блокировкой строки приза:
//  1. лимит победителей (раньше проверки дубликата — порядок важен:
//     повторный клик по разобранному призу получает «всё разобрали»,
//     а не «уже получал»);
//  2. дубликат (user, prize);
//  3. вставка winner + начисление награды + запись в журнал.
//
// Возвращает число победителей ДО этого выигрыша (для сообщения
// «осталось мест»).
func (r *Repository) Claim(ctx context.Context, userID, prizeID int64, maxWinners int, reward int64) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	// Блокируем строку приза — все параллельные Claim по этому призу
	// выстраиваются в очередь здесь
	var locked int64
	err = tx.QueryRow(ctx,
		`SELECT prize_id FROM prizes WHERE prize_id = $1 FOR UPDATE`, prizeID,
	).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, common.ErrPrizeNotFound
		}
		return 0, fmt.Errorf("ошибка блокировки приза: %w", err)
	}

	var claimants int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(DISTINCT user_id) FROM winners WHERE prize_id = $1`, prizeID,
	).Scan(&claimants)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта победителей: %w", err)
	}
	if claimants >= maxWinners {
		return claimants, common.ErrExhausted
	}

	var duplicate bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM winners WHERE user_id = $1 AND prize_id = $2)`,
		userID, prizeID,
	).Scan(&duplicate)
	if err != nil {
		return 0, fmt.Errorf("ошибка проверки дубликата: %w", err)
	}
	if duplicate {
		return claimants, common.ErrAlreadyClaimed
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO winners (user_id, prize_id, win_type)
		VALUES ($1, $2, $3)
	`, userID, prizeID, WinTypeClaim)
	if err != nil {
		return 0, fmt.Errorf("ошибка записи победителя: %w", err)
	}

	// Награда начисляется в той же транзакции, что и запись победителя:
	// нет выигрыша без монет и монет без выигрыша
	if reward > 0 {
		tag, err := tx.Exec(ctx,
			`UPDATE users SET coins = coins + $2 WHERE user_id = $1`, userID, reward,
		)
		if err != nil {
			return 0, fmt.Errorf("ошибка начисления награды: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return 0, common.ErrUserNotFound
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO bonus_actions (user_id, action_type, coins_change)
			VALUES ($1, $2, $3)
		`, userID, economy.ActionWin, reward)
		if err != nil {
			return 0, fmt.Errorf("ошибка записи в журнал: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return claimants, nil
}

// CountClaimants возвращает число различных победителей приза.
func (r *Repository) CountClaimants(ctx context.Context, prizeID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(DISTINCT user_id) FROM winners WHERE prize_id = $1`, prizeID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта победителей: %w", err)
	}
	return n, nil
}

// Purchase покупает приз за монеты. Вся операция — одна транзакция:
// чтение цены, проверка дубликата, проверка и списание баланса,
// запись winner и журнала. Частичного применения не бывает: любая
// ошибка откатывает всё.
//
// price — цена покупки; если nil, берётся каталожная цена приза
// (для пропущенных призов сервис передаёт скидочную цену).
func (r *Repository) Purchase(ctx context.Context, userID, prizeID int64, price *int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	// Порядок блокировок всегда приз → пользователь (как в Claim),
	// иначе встречные транзакции могут взаимно заблокироваться
	var catalogPrice int64
	err = tx.QueryRow(ctx,
		`SELECT price FROM prizes WHERE prize_id = $1 FOR UPDATE`, prizeID,
	).Scan(&catalogPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.ErrPrizeNotFound
		}
		return fmt.Errorf("ошибка чтения цены: %w", err)
	}

	cost := catalogPrice
	if price != nil {
		cost = *price
	}

	var duplicate bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM winners WHERE user_id = $1 AND prize_id = $2)`,
		userID, prizeID,
	).Scan(&duplicate)
	if err != nil {
		return fmt.Errorf("ошибка проверки дубликата: %w", err)
	}
	if duplicate {
		return common.ErrAlreadyClaimed
	}

	var coins int64
	err = tx.QueryRow(ctx,
		`SELECT coins FROM users WHERE user_id = $1 FOR UPDATE`, userID,
	).Scan(&coins)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.ErrUserNotFound
		}
		return fmt.Errorf("ошибка чтения баланса: %w", err)
	}
	if coins < cost {
		return common.ErrInsufficientFunds
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET coins = coins - $2 WHERE user_id = $1`, userID, cost,
	)
	if err != nil {
		return fmt.Errorf("ошибка списания монет: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO winners (user_id, prize_id, win_type)
		VALUES ($1, $2, $3)
	`, userID, prizeID, WinTypePurchase)
	if err != nil {
		return fmt.Errorf("ошибка записи победителя: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO bonus_actions (user_id, action_type, coins_change)
		VALUES ($1, $2, $3)
	`, userID, economy.ActionPurchase, -cost)
	if err != nil {
		return fmt.Errorf("ошибка записи в журнал: %w", err)
	}

	return tx.Commit(ctx)
}

// --- Рейтинг ---

// Rating возвращает топ победителей по числу выигранных (не купленных)
// призов. При равенстве побеждает тот, кто выиграл раньше.
func (r *Repository) Rating(ctx context.Context, topN int) ([]RatingRow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT u.user_name, COUNT(*) AS wins
		FROM winners w
		JOIN users u ON u.user_id = w.user_id
		WHERE w.win_type = $1
		GROUP BY u.user_id, u.user_name
		ORDER BY wins DESC, MIN(w.win_time) ASC, u.user_id ASC
		LIMIT $2
	`, WinTypeClaim, topN)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения рейтинга: %w", err)
	}
	defer rows.Close()

	var out []RatingRow
	for rows.Next() {
		var row RatingRow
		if err := rows.Scan(&row.UserName, &row.Wins); err != nil {
			return nil, fmt.Errorf("ошибка сканирования рейтинга: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// --- Пропущенные призы ---

// RecordMissed записывает несостоявшуюся доставку (append-only).
func (r *Repository) RecordMissed(ctx context.Context, userID, prizeID int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO failed_prizes (prize_id, user_id) VALUES ($1, $2)
	`, prizeID, userID)
	if err != nil {
		return fmt.Errorf("ошибка записи пропущенного приза: %w", err)
	}
	return nil
}

// MissedPrizes возвращает до limit пропущенных пользователем призов,
// которые всё ещё не разыграны (used = FALSE).
func (r *Repository) MissedPrizes(ctx context.Context, userID int64, limit int) ([]*Prize, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.prize_id, p.image, p.used, p.added_by, p.add_date, p.price
		FROM prizes p
		WHERE p.used = FALSE
		  AND EXISTS (
			SELECT 1 FROM failed_prizes f
			WHERE f.prize_id = p.prize_id AND f.user_id = $1
		  )
		ORDER BY p.prize_id
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пропущенных призов: %w", err)
	}
	defer rows.Close()

	var out []*Prize
	for rows.Next() {
		var p Prize
		if err := rows.Scan(&p.PrizeID, &p.Image, &p.Used, &p.AddedBy, &p.AddDate, &p.Price); err != nil {
			return nil, fmt.Errorf("ошибка сканирования приза: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// IsMissed проверяет, есть ли приз в списке пропущенных пользователя
// (и не разыгран ли он) — условие скидочной покупки.
func (r *Repository) IsMissed(ctx context.Context, userID, prizeID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM failed_prizes f
			JOIN prizes p ON p.prize_id = f.prize_id
			WHERE f.user_id = $1 AND f.prize_id = $2 AND p.used = FALSE
		)
	`, userID, prizeID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки пропущенного приза: %w", err)
	}
	return ok, nil
}

// FailedRecipients возвращает пользователей, до которых не дошла
// рассылка приза (для /resend).
func (r *Repository) FailedRecipients(ctx context.Context, prizeID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT user_id FROM failed_prizes WHERE prize_id = $1
	`, prizeID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения получателей: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования user_id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// FailedPrizeIDs возвращает все призы с несостоявшимися доставками.
func (r *Repository) FailedPrizeIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT prize_id FROM failed_prizes`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения призов с ошибками доставки: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования prize_id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// ClearMissed удаляет записи о несостоявшейся доставке после успешного
// повторного вручения.
func (r *Repository) ClearMissed(ctx context.Context, prizeID, userID int64) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM failed_prizes WHERE prize_id = $1 AND user_id = $2
	`, prizeID, userID)
	if err != nil {
		return fmt.Errorf("ошибка очистки пропущенного приза: %w", err)
	}
	return nil
}

// --- Картинки для коллажа ---

// WonImages возвращает файлы призов, полученных пользователем
// (выигранных и купленных).
func (r *Repository) WonImages(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.image
		FROM winners w
		JOIN prizes p ON p.prize_id = w.prize_id
		WHERE w.user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения выигранных картинок: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var img string
		if err := rows.Scan(&img); err != nil {
			return nil, fmt.Errorf("ошибка сканирования картинки: %w", err)
		}
		out = append(out, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// AllImages возвращает файлы всех призов каталога (порядок стабильный).
func (r *Repository) AllImages(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT image FROM prizes ORDER BY prize_id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения каталога: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var img string
		if err := rows.Scan(&img); err != nil {
			return nil, fmt.Errorf("ошибка сканирования картинки: %w", err)
		}
		out = append(out, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}
