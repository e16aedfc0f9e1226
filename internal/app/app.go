// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, репозитории, сервисы, обработчики,
// фильтры и собирает всё в один объект Bot.
package app

import (
	"context"
	"fmt"
	"os"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"prizebot/internal/bot"
	"prizebot/internal/bot/filters"
	"prizebot/internal/config"
	"prizebot/internal/db/postgres"
	"prizebot/internal/features/admin"
	"prizebot/internal/features/economy"
	"prizebot/internal/features/prizes"
	"prizebot/internal/features/settings"
	"prizebot/internal/jobs"
)

// App содержит все компоненты приложения.
type App struct {
	Bot       *bot.Bot
	Scheduler *jobs.Scheduler
	DB        *pgxpool.Pool
	BotAPI    *tgbotapi.BotAPI
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	// Запускаем миграции
	if err := runMigrations(ctx, pool); err != nil {
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// Каталоги с картинками призов
	if err := os.MkdirAll(cfg.ImgDir, 0o755); err != nil {
		return nil, fmt.Errorf("ошибка создания каталога %s: %w", cfg.ImgDir, err)
	}
	if err := os.MkdirAll(cfg.HiddenImgDir, 0o755); err != nil {
		return nil, fmt.Errorf("ошибка создания каталога %s: %w", cfg.HiddenImgDir, err)
	}

	// === 2. Telegram Bot API ===
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	botAPI.Debug = cfg.AppEnv == "development"
	log.Infof("Авторизован как @%s", botAPI.Self.UserName)

	// === 3. Репозитории ===
	settingsRepo := settings.NewRepository(pool)
	prizeRepo := prizes.NewRepository(pool)
	economyRepo := economy.NewRepository(pool)

	// === 4. Сервисы ===
	settingsService := settings.NewService(settingsRepo, cfg)
	prizeService := prizes.NewService(prizeRepo, settingsService, cfg.ImgDir, cfg.HiddenImgDir)
	economyService := economy.NewService(economyRepo)
	adminService := admin.NewService(cfg, settingsService)

	// === 5. Обработчики ===
	prizeHandler := prizes.NewHandler(prizeService, botAPI)
	economyHandler := economy.NewHandler(economyService, botAPI)
	adminHandler := admin.NewHandler(adminService, settingsService, prizeService, economyService, botAPI, cfg)

	// Рассылка идёт через обработчик призов (фото + кнопка)
	prizeService.SetNotify(prizeHandler.SendPrize)

	// === 6. Фильтры ===
	accessFilter := filters.NewAccessFilter(prizeService)

	// === 7. Собираем бота ===
	b := bot.New(botAPI, cfg, prizeHandler, economyHandler, adminHandler, accessFilter)

	// === 8. Планировщик задач ===
	scheduler := jobs.NewScheduler(prizeService, settingsService)
	adminHandler.SetReschedule(scheduler.Reschedule)

	return &App{
		Bot:       b,
		Scheduler: scheduler,
		DB:        pool,
		BotAPI:    botAPI,
	}, nil
}

// runMigrations выполняет все SQL-миграции.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if err := postgres.EnsureMigrationsTable(ctx, pool); err != nil {
		return err
	}

	// Выполняем миграции по порядку
	migrations := []struct {
		version int
		sql     string
	}{
		{1, migration001Users},
		{2, migration002Prizes},
		{3, migration003Winners},
		{4, migration004FailedPrizes},
		{5, migration005BonusActions},
		{6, migration006Settings},
	}

	for _, m := range migrations {
		if err := postgres.ExecMigrationSQL(ctx, pool, m.version, m.sql); err != nil {
			return fmt.Errorf("миграция %d: %w", m.version, err)
		}
		log.Infof("Миграция %d применена", m.version)
	}

	return nil
}

// SQL-миграции встроены в код для упрощения деплоя.

var migration001Users = `
CREATE TABLE IF NOT EXISTS users (
    user_id BIGINT PRIMARY KEY,
    user_name VARCHAR(255),
    coins BIGINT NOT NULL DEFAULT 0,
    registration_date TIMESTAMP NOT NULL DEFAULT NOW()
);
`

var migration002Prizes = `
CREATE TABLE IF NOT EXISTS prizes (
    prize_id BIGSERIAL PRIMARY KEY,
    image VARCHAR(255) UNIQUE NOT NULL,
    used BOOLEAN NOT NULL DEFAULT FALSE,
    added_by BIGINT,
    add_date TIMESTAMP NOT NULL DEFAULT NOW(),
    price BIGINT NOT NULL DEFAULT 30
);
CREATE INDEX IF NOT EXISTS idx_prizes_used ON prizes(used);
`

var migration003Winners = `
CREATE TABLE IF NOT EXISTS winners (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(user_id),
    prize_id BIGINT NOT NULL REFERENCES prizes(prize_id),
    win_time TIMESTAMP NOT NULL DEFAULT NOW(),
    win_type VARCHAR(32) NOT NULL DEFAULT 'claim',
    UNIQUE(user_id, prize_id)
);
CREATE INDEX IF NOT EXISTS idx_winners_user_id ON winners(user_id);
CREATE INDEX IF NOT EXISTS idx_winners_prize_id ON winners(prize_id);
`

var migration004FailedPrizes = `
CREATE TABLE IF NOT EXISTS failed_prizes (
    fail_id BIGSERIAL PRIMARY KEY,
    prize_id BIGINT NOT NULL REFERENCES prizes(prize_id),
    user_id BIGINT NOT NULL REFERENCES users(user_id),
    fail_time TIMESTAMP NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_failed_prizes_prize_id ON failed_prizes(prize_id);
CREATE INDEX IF NOT EXISTS idx_failed_prizes_user_id ON failed_prizes(user_id);
`

var migration005BonusActions = `
CREATE TABLE IF NOT EXISTS bonus_actions (
    action_id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(user_id),
    action_type VARCHAR(50) NOT NULL,
    coins_change BIGINT NOT NULL,
    action_time TIMESTAMP NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_bonus_actions_user_id ON bonus_actions(user_id);
CREATE INDEX IF NOT EXISTS idx_bonus_actions_action_time ON bonus_actions(action_time DESC);
`

var migration006Settings = `
CREATE TABLE IF NOT EXISTS bot_settings (
    setting_key VARCHAR(64) PRIMARY KEY,
    setting_value TEXT NOT NULL
);
`
