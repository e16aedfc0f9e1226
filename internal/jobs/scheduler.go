// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает периодическую рассылку призов
// и умеет менять интервал на лету, когда админ правит настройку.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"prizebot/internal/features/prizes"
	"prizebot/internal/features/settings"
)

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron            *cron.Cron
	prizeService    *prizes.Service
	settingsService *settings.Service

	mu      sync.Mutex
	entryID cron.EntryID
	ctx     context.Context
}

// NewScheduler создаёт планировщик задач с московским часовым поясом.
func NewScheduler(prizeService *prizes.Service, settingsService *settings.Service) *Scheduler {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		log.WithError(err).Warn("Не удалось загрузить Europe/Moscow, используем UTC+3")
		loc = time.FixedZone("MSK", 3*60*60)
	}

	c := cron.New(cron.WithLocation(loc))

	return &Scheduler{
		cron:            c,
		prizeService:    prizeService,
		settingsService: settingsService,
	}
}

// Start запускает рассылку призов с интервалом из настроек.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx = ctx

	interval := s.settingsService.RevealInterval(ctx)
	if err := s.schedule(interval); err != nil {
		log.WithError(err).Error("[CRON] Не удалось запланировать рассылку призов")
	}

	s.cron.Start()
	log.WithField("interval", interval.String()).Info("Планировщик задач запущен (Europe/Moscow)")
}

// Reschedule меняет интервал рассылки без перезапуска бота.
// Вызывается из админки после /set reveal_interval.
func (s *Scheduler) Reschedule(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
		s.entryID = 0
	}

	if err := s.schedule(interval); err != nil {
		log.WithError(err).Error("[CRON] Не удалось перепланировать рассылку призов")
		return
	}

	log.WithField("interval", interval.String()).Info("[CRON] Интервал рассылки изменён")
}

// schedule добавляет задачу рассылки. Вызывать только под s.mu.
func (s *Scheduler) schedule(interval time.Duration) error {
	if interval <= 0 {
		interval = settings.DefaultRevealInterval
	}

	ctx := s.ctx

	id, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		log.Debug("[CRON] Рассылка очередного приза")
		if err := s.prizeService.Reveal(ctx); err != nil {
			log.WithError(err).Error("[CRON] Ошибка рассылки приза")
		}
	})
	if err != nil {
		return err
	}

	s.entryID = id
	return nil
}

// Stop останавливает планировщик.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
