// Package prizes — service.go содержит движок жизненного цикла приза:
// розыгрыш (reveal), присуждение, покупка, пропущенные призы, коллаж.
//
// Сервис не хранит состояния — вся правда в БД, настройки читаются
// заново при каждой операции (никаких кешей между запросами).
package prizes

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"prizebot/internal/common"
	"prizebot/internal/imgproc"
)

const (
	// ratingTop — сколько строк показывает /rating.
	ratingTop = 10
	// missedLimit — сколько пропущенных призов предлагается за раз.
	missedLimit = 5
)

// Store — контракт хранилища, нужный движку.
// Реализуется *Repository; в тестах подменяется стором в памяти.
type Store interface {
	RegisterUser(ctx context.Context, userID int64, userName string) (bool, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
	Users(ctx context.Context) ([]int64, error)

	CreatePrize(ctx context.Context, image string, addedBy *int64, price int64) (int64, error)
	PrizeByID(ctx context.Context, prizeID int64) (*Prize, error)
	PrizeExistsByImage(ctx context.Context, image string) (bool, error)
	PickBroadcastCandidate(ctx context.Context) (*Prize, error)
	MarkBroadcast(ctx context.Context, prizeID int64) error
	UnusedCount(ctx context.Context) (int, error)

	Claim(ctx context.Context, userID, prizeID int64, maxWinners int, reward int64) (int, error)
	CountClaimants(ctx context.Context, prizeID int64) (int, error)
	Purchase(ctx context.Context, userID, prizeID int64, price *int64) error
	Rating(ctx context.Context, topN int) ([]RatingRow, error)

	RecordMissed(ctx context.Context, userID, prizeID int64) error
	MissedPrizes(ctx context.Context, userID int64, limit int) ([]*Prize, error)
	IsMissed(ctx context.Context, userID, prizeID int64) (bool, error)
	FailedRecipients(ctx context.Context, prizeID int64) ([]int64, error)
	FailedPrizeIDs(ctx context.Context) ([]int64, error)
	ClearMissed(ctx context.Context, prizeID, userID int64) error

	WonImages(ctx context.Context, userID int64) ([]string, error)
	AllImages(ctx context.Context) ([]string, error)
}

// Settings — изменяемые на лету параметры розыгрыша.
// Реализуется settings.Service.
type Settings interface {
	MaxWinners(ctx context.Context) int
	CoinsPerWin(ctx context.Context) int64
	MissedPrice(ctx context.Context) int64
}

// NotifyFunc доставляет скрытую картинку приза пользователю
// (фото + кнопка «Получить!»). Реализуется ботом.
type NotifyFunc func(userID int64, hiddenPath string, prizeID int64) error

// Service — движок жизненного цикла приза.
type Service struct {
	store     Store
	settings  Settings
	imgDir    string
	hiddenDir string

	// obfuscate подменяется в тестах, по умолчанию imgproc.Obfuscate
	obfuscate func(src, dst string) error
	// notify устанавливается после сборки бота (SetNotify) —
	// бот и сервис зависят друг от друга
	notify NotifyFunc
}

// NewService создаёт движок призов.
func NewService(store Store, settings Settings, imgDir, hiddenDir string) *Service {
	return &Service{
		store:     store,
		settings:  settings,
		imgDir:    imgDir,
		hiddenDir: hiddenDir,
		obfuscate: imgproc.Obfuscate,
	}
}

// SetNotify подключает функцию доставки (вызывается при сборке приложения).
func (s *Service) SetNotify(notify NotifyFunc) {
	s.notify = notify
}

// ClearPath возвращает путь к оригиналу картинки приза.
func (s *Service) ClearPath(image string) string {
	return filepath.Join(s.imgDir, image)
}

// HiddenPath возвращает путь к скрытой версии картинки.
func (s *Service) HiddenPath(image string) string {
	return filepath.Join(s.hiddenDir, image)
}

// --- Регистрация ---

// Register регистрирует пользователя. Возвращает false, если он уже был.
func (s *Service) Register(ctx context.Context, userID int64, userName string) (bool, error) {
	return s.store.RegisterUser(ctx, userID, userName)
}

// IsRegistered проверяет регистрацию (для фильтра доступа).
func (s *Service) IsRegistered(ctx context.Context, userID int64) (bool, error) {
	return s.store.UserExists(ctx, userID)
}

// --- Розыгрыш ---

// Reveal выполняет один цикл розыгрыша:
// выбрать случайный неразыгранный приз → скрыть картинку → пометить
// использованным → разослать всем зарегистрированным.
//
// Рассылка НЕ транзакционна: ошибка доставки одному пользователю
// записывается в failed_prizes и не мешает остальным. Если призов
// не осталось — тихий no-op.
func (s *Service) Reveal(ctx context.Context) error {
	prize, err := s.store.PickBroadcastCandidate(ctx)
	if err != nil {
		if errors.Is(err, common.ErrNoPrizes) {
			log.Info("Розыгрыш пропущен: неразыгранных призов не осталось")
			return nil
		}
		return fmt.Errorf("выбор приза: %w", err)
	}

	hidden := s.HiddenPath(prize.Image)
	if err := s.obfuscate(s.ClearPath(prize.Image), hidden); err != nil {
		return fmt.Errorf("скрытие картинки приза %d: %w", prize.PrizeID, err)
	}

	if err := s.store.MarkBroadcast(ctx, prize.PrizeID); err != nil {
		return fmt.Errorf("пометка приза %d: %w", prize.PrizeID, err)
	}

	users, err := s.store.Users(ctx)
	if err != nil {
		return fmt.Errorf("список получателей: %w", err)
	}

	log.WithFields(log.Fields{
		"prize_id":   prize.PrizeID,
		"recipients": len(users),
	}).Info("Розыгрыш начат")

	delivered := 0
	for _, userID := range users {
		if err := s.notify(userID, hidden, prize.PrizeID); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"user_id":  userID,
				"prize_id": prize.PrizeID,
			}).Warn("Доставка не удалась, записываем в пропущенные")
			if recErr := s.store.RecordMissed(ctx, userID, prize.PrizeID); recErr != nil {
				log.WithError(recErr).Error("Не удалось записать пропущенный приз")
			}
			continue
		}
		delivered++
	}

	log.WithFields(log.Fields{
		"prize_id":  prize.PrizeID,
		"delivered": delivered,
		"failed":    len(users) - delivered,
	}).Info("Розыгрыш разослан")
	return nil
}

// --- Присуждение ---

// Claim обрабатывает нажатие «Получить!».
// Лимит победителей и награда читаются из настроек на каждый запрос.
// Возможные ошибки: common.ErrExhausted, common.ErrAlreadyClaimed,
// common.ErrPrizeNotFound.
func (s *Service) Claim(ctx context.Context, userID, prizeID int64) (*ClaimResult, error) {
	maxWinners := s.settings.MaxWinners(ctx)
	reward := s.settings.CoinsPerWin(ctx)

	claimantsBefore, err := s.store.Claim(ctx, userID, prizeID, maxWinners, reward)
	if err != nil {
		return nil, err
	}

	prize, err := s.store.PrizeByID(ctx, prizeID)
	if err != nil {
		// Победитель уже записан; без картинки обойдёмся
		log.WithError(err).WithField("prize_id", prizeID).Error("Приз выигран, но не прочитан")
		prize = &Prize{PrizeID: prizeID}
	}

	log.WithFields(log.Fields{
		"user_id":  userID,
		"prize_id": prizeID,
		"reward":   reward,
	}).Info("Приз выигран")

	return &ClaimResult{
		Prize:     prize,
		Reward:    reward,
		SlotsLeft: maxWinners - claimantsBefore - 1,
	}, nil
}

// --- Покупка ---

// Purchase покупает приз по каталожной цене.
// Возможные ошибки: common.ErrPrizeNotFound, common.ErrUserNotFound,
// common.ErrAlreadyClaimed, common.ErrInsufficientFunds.
func (s *Service) Purchase(ctx context.Context, userID, prizeID int64) (*Prize, error) {
	prize, err := s.store.PrizeByID(ctx, prizeID)
	if err != nil {
		return nil, err
	}
	if err := s.store.Purchase(ctx, userID, prizeID, nil); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id":  userID,
		"prize_id": prizeID,
		"price":    prize.Price,
	}).Info("Приз куплен")
	return prize, nil
}

// PurchaseMissed покупает пропущенный приз по фиксированной
// скидочной цене. Доступно только для призов из списка пропущенных
// данного пользователя.
func (s *Service) PurchaseMissed(ctx context.Context, userID, prizeID int64) (*Prize, error) {
	missed, err := s.store.IsMissed(ctx, userID, prizeID)
	if err != nil {
		return nil, err
	}
	if !missed {
		return nil, common.ErrPrizeNotFound
	}

	prize, err := s.store.PrizeByID(ctx, prizeID)
	if err != nil {
		return nil, err
	}

	price := s.settings.MissedPrice(ctx)
	if err := s.store.Purchase(ctx, userID, prizeID, &price); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id":  userID,
		"prize_id": prizeID,
		"price":    price,
	}).Info("Пропущенный приз куплен со скидкой")
	return prize, nil
}

// Missed возвращает до 5 пропущенных призов пользователя,
// всё ещё не разыгранных.
func (s *Service) Missed(ctx context.Context, userID int64) ([]*Prize, error) {
	return s.store.MissedPrizes(ctx, userID, missedLimit)
}

// MissedPrice возвращает текущую скидочную цену пропущенного приза.
func (s *Service) MissedPrice(ctx context.Context) int64 {
	return s.settings.MissedPrice(ctx)
}

// MaxWinners возвращает текущий лимит победителей (для сообщений).
func (s *Service) MaxWinners(ctx context.Context) int {
	return s.settings.MaxWinners(ctx)
}

// --- Рейтинг и коллаж ---

// Rating возвращает топ-10 победителей.
func (s *Service) Rating(ctx context.Context) ([]RatingRow, error) {
	return s.store.Rating(ctx, ratingTop)
}

// Collage собирает коллаж пользователя: полученные призы — в открытую,
// остальные — скрытыми. Возвращает nil без ошибки при пустом каталоге.
func (s *Service) Collage(ctx context.Context, userID int64) (image.Image, error) {
	all, err := s.store.AllImages(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}

	won, err := s.store.WonImages(ctx, userID)
	if err != nil {
		return nil, err
	}
	wonSet := make(map[string]struct{}, len(won))
	for _, img := range won {
		wonSet[img] = struct{}{}
	}

	paths := make([]string, 0, len(all))
	for _, img := range all {
		if _, ok := wonSet[img]; ok {
			paths = append(paths, s.ClearPath(img))
		} else {
			paths = append(paths, s.HiddenPath(img))
		}
	}
	return imgproc.Collage(paths)
}

// --- Повторная доставка ---

// Resend повторно доставляет скрытую картинку приза пользователям
// из failed_prizes. Успешные доставки вычёркиваются из списка.
func (s *Service) Resend(ctx context.Context, prizeID int64) (delivered, failed int, err error) {
	prize, err := s.store.PrizeByID(ctx, prizeID)
	if err != nil {
		return 0, 0, err
	}

	recipients, err := s.store.FailedRecipients(ctx, prizeID)
	if err != nil {
		return 0, 0, err
	}

	hidden := s.HiddenPath(prize.Image)
	for _, userID := range recipients {
		if err := s.notify(userID, hidden, prize.PrizeID); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"user_id":  userID,
				"prize_id": prizeID,
			}).Warn("Повторная доставка не удалась")
			failed++
			continue
		}
		if err := s.store.ClearMissed(ctx, prizeID, userID); err != nil {
			log.WithError(err).Error("Не удалось вычеркнуть доставленный приз")
		}
		delivered++
	}
	return delivered, failed, nil
}

// ResendAll повторяет доставку по всем призам с ошибками.
func (s *Service) ResendAll(ctx context.Context) (delivered, failed int, err error) {
	prizeIDs, err := s.store.FailedPrizeIDs(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, id := range prizeIDs {
		d, f, err := s.Resend(ctx, id)
		if err != nil {
			log.WithError(err).WithField("prize_id", id).Error("Ошибка повторной доставки")
			continue
		}
		delivered += d
		failed += f
	}
	return delivered, failed, nil
}

// --- Администрирование каталога ---

// AddPrize сохраняет присланную админом картинку в каталог:
// файл в img/, скрытая версия в hidden_img/, строка в prizes.
func (s *Service) AddPrize(ctx context.Context, filename string, data []byte, addedBy int64, price int64) (int64, error) {
	clear := s.ClearPath(filename)
	if err := os.WriteFile(clear, data, 0o644); err != nil {
		return 0, fmt.Errorf("сохранение картинки: %w", err)
	}
	if err := s.obfuscate(clear, s.HiddenPath(filename)); err != nil {
		return 0, err
	}
	id, err := s.store.CreatePrize(ctx, filename, &addedBy, price)
	if err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"prize_id": id,
		"image":    filename,
		"added_by": addedBy,
	}).Info("Приз добавлен")
	return id, nil
}

// ImportDir добавляет в каталог все файлы из img/, которых там ещё нет,
// заранее готовя скрытые версии. Возвращает число добавленных призов.
func (s *Service) ImportDir(ctx context.Context, price int64) (int, error) {
	entries, err := os.ReadDir(s.imgDir)
	if err != nil {
		return 0, fmt.Errorf("чтение %s: %w", s.imgDir, err)
	}

	added := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()

		exists, err := s.store.PrizeExistsByImage(ctx, name)
		if err != nil {
			return added, err
		}
		if exists {
			continue
		}

		if err := s.obfuscate(s.ClearPath(name), s.HiddenPath(name)); err != nil {
			log.WithError(err).WithField("image", name).Warn("Файл не похож на картинку, пропускаем")
			continue
		}
		if _, err := s.store.CreatePrize(ctx, name, nil, price); err != nil {
			return added, err
		}
		added++
	}

	log.WithField("added", added).Info("Импорт каталога завершён")
	return added, nil
}

// UnusedCount возвращает число неразыгранных призов.
func (s *Service) UnusedCount(ctx context.Context) (int, error) {
	return s.store.UnusedCount(ctx)
}
