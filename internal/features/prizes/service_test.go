package prizes

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prizebot/internal/common"
)

// memStore — хранилище в памяти с той же семантикой, что у *Repository.
// Claim сериализуется мьютексом, как в БД строка приза сериализуется FOR UPDATE.
type memStore struct {
	mu sync.Mutex

	users   map[int64]string
	coins   map[int64]int64
	prizes  map[int64]*Prize
	winners map[[2]int64]string // (userID, prizeID) -> win_type
	missed  map[[2]int64]bool   // (userID, prizeID)
	nextID  int64
}

func newMemStore() *memStore {
	return &memStore{
		users:   make(map[int64]string),
		coins:   make(map[int64]int64),
		prizes:  make(map[int64]*Prize),
		winners: make(map[[2]int64]string),
		missed:  make(map[[2]int64]bool),
		nextID:  1,
	}
}

func (m *memStore) RegisterUser(ctx context.Context, userID int64, userName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; ok {
		return false, nil
	}
	m.users[userID] = userName
	m.coins[userID] = 0
	return true, nil
}

func (m *memStore) UserExists(ctx context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.users[userID]
	return ok, nil
}

func (m *memStore) Users(ctx context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memStore) CreatePrize(ctx context.Context, image string, addedBy *int64, price int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.prizes[id] = &Prize{PrizeID: id, Image: image, AddedBy: addedBy, Price: price}
	return id, nil
}

func (m *memStore) PrizeByID(ctx context.Context, prizeID int64) (*Prize, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prizes[prizeID]
	if !ok {
		return nil, common.ErrPrizeNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) PrizeExistsByImage(ctx context.Context, image string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.prizes {
		if p.Image == image {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) PickBroadcastCandidate(ctx context.Context) (*Prize, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id, p := range m.prizes {
		if !p.Used {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, common.ErrNoPrizes
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	cp := *m.prizes[ids[0]]
	return &cp, nil
}

func (m *memStore) MarkBroadcast(ctx context.Context, prizeID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prizes[prizeID]
	if !ok {
		return common.ErrPrizeNotFound
	}
	p.Used = true
	return nil
}

func (m *memStore) UnusedCount(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.prizes {
		if !p.Used {
			n++
		}
	}
	return n, nil
}

func (m *memStore) Claim(ctx context.Context, userID, prizeID int64, maxWinners int, reward int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.prizes[prizeID]; !ok {
		return 0, common.ErrPrizeNotFound
	}

	claimants := 0
	for key := range m.winners {
		if key[1] == prizeID {
			claimants++
		}
	}
	// Сначала лимит, потом дубликат — как в репозитории
	if claimants >= maxWinners {
		return 0, common.ErrExhausted
	}
	if _, ok := m.winners[[2]int64{userID, prizeID}]; ok {
		return 0, common.ErrAlreadyClaimed
	}

	m.winners[[2]int64{userID, prizeID}] = WinTypeClaim
	m.coins[userID] += reward
	return claimants, nil
}

func (m *memStore) CountClaimants(ctx context.Context, prizeID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key := range m.winners {
		if key[1] == prizeID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) Purchase(ctx context.Context, userID, prizeID int64, price *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.prizes[prizeID]
	if !ok {
		return common.ErrPrizeNotFound
	}
	if _, ok := m.winners[[2]int64{userID, prizeID}]; ok {
		return common.ErrAlreadyClaimed
	}
	coins, ok := m.coins[userID]
	if !ok {
		return common.ErrUserNotFound
	}

	cost := p.Price
	if price != nil {
		cost = *price
	}
	if coins < cost {
		return common.ErrInsufficientFunds
	}

	m.coins[userID] = coins - cost
	m.winners[[2]int64{userID, prizeID}] = WinTypePurchase
	return nil
}

func (m *memStore) Rating(ctx context.Context, topN int) ([]RatingRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wins := make(map[int64]int)
	for key, winType := range m.winners {
		if winType == WinTypeClaim {
			wins[key[0]]++
		}
	}
	var rows []RatingRow
	for userID, n := range wins {
		rows = append(rows, RatingRow{UserName: m.users[userID], Wins: n})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Wins > rows[j].Wins })
	if len(rows) > topN {
		rows = rows[:topN]
	}
	return rows, nil
}

func (m *memStore) RecordMissed(ctx context.Context, userID, prizeID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.missed[[2]int64{userID, prizeID}] = true
	return nil
}

func (m *memStore) MissedPrizes(ctx context.Context, userID int64, limit int) ([]*Prize, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Prize
	var ids []int64
	for key := range m.missed {
		if key[0] == userID {
			ids = append(ids, key[1])
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if len(out) >= limit {
			break
		}
		if p, ok := m.prizes[id]; ok && !p.Used {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) IsMissed(ctx context.Context, userID, prizeID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.prizes[prizeID]; !ok || p.Used {
		return false, nil
	}
	return m.missed[[2]int64{userID, prizeID}], nil
}

func (m *memStore) FailedRecipients(ctx context.Context, prizeID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for key := range m.missed {
		if key[1] == prizeID {
			ids = append(ids, key[0])
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memStore) FailedPrizeIDs(ctx context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[int64]bool)
	var ids []int64
	for key := range m.missed {
		if !seen[key[1]] {
			seen[key[1]] = true
			ids = append(ids, key[1])
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memStore) ClearMissed(ctx context.Context, prizeID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.missed, [2]int64{userID, prizeID})
	return nil
}

func (m *memStore) WonImages(ctx context.Context, userID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for key := range m.winners {
		if key[0] == userID {
			if p, ok := m.prizes[key[1]]; ok {
				out = append(out, p.Image)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) AllImages(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	var ids []int64
	for id := range m.prizes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		out = append(out, m.prizes[id].Image)
	}
	return out, nil
}

func (m *memStore) balance(userID int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coins[userID]
}

func (m *memStore) hasMissedRecord(userID, prizeID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.missed[[2]int64{userID, prizeID}]
}

// fakeSettings — настройки с фиксированными значениями.
type fakeSettings struct {
	maxWinners  int
	coinsPerWin int64
	missedPrice int64
}

func (f *fakeSettings) MaxWinners(ctx context.Context) int    { return f.maxWinners }
func (f *fakeSettings) CoinsPerWin(ctx context.Context) int64 { return f.coinsPerWin }
func (f *fakeSettings) MissedPrice(ctx context.Context) int64 { return f.missedPrice }

func newTestService(store *memStore) *Service {
	svc := NewService(store, &fakeSettings{maxWinners: 3, coinsPerWin: 10, missedPrice: 5}, "img", "hidden_img")
	svc.obfuscate = func(src, dst string) error { return nil }
	return svc
}

func TestClaimAwardsCoinsAndCountsSlots(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	_, err := store.RegisterUser(ctx, 100, "alice")
	require.NoError(t, err)
	prizeID, err := store.CreatePrize(ctx, "cat.jpg", nil, 30)
	require.NoError(t, err)

	res, err := svc.Claim(ctx, 100, prizeID)
	require.NoError(t, err)

	assert.Equal(t, int64(10), res.Reward)
	assert.Equal(t, 2, res.SlotsLeft)
	assert.Equal(t, "cat.jpg", res.Prize.Image)
	assert.Equal(t, int64(10), store.balance(100))
}

func TestClaimTwiceReturnsAlreadyClaimed(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	_, err := store.RegisterUser(ctx, 100, "alice")
	require.NoError(t, err)
	prizeID, err := store.CreatePrize(ctx, "cat.jpg", nil, 30)
	require.NoError(t, err)

	_, err = svc.Claim(ctx, 100, prizeID)
	require.NoError(t, err)

	_, err = svc.Claim(ctx, 100, prizeID)
	assert.ErrorIs(t, err, common.ErrAlreadyClaimed)

	// Монеты начислены ровно один раз
	assert.Equal(t, int64(10), store.balance(100))
}

func TestClaimExhaustedBeforeDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	for i := int64(1); i <= 4; i++ {
		_, err := store.RegisterUser(ctx, i, "user")
		require.NoError(t, err)
	}
	prizeID, err := store.CreatePrize(ctx, "cat.jpg", nil, 30)
	require.NoError(t, err)

	for i := int64(1); i <= 3; i++ {
		_, err := svc.Claim(ctx, i, prizeID)
		require.NoError(t, err)
	}

	// Четвёртый — мест нет
	_, err = svc.Claim(ctx, 4, prizeID)
	assert.ErrorIs(t, err, common.ErrExhausted)

	// Повторный клик победителя при заполненном призе — тоже «мест нет»,
	// а не «уже получал»
	_, err = svc.Claim(ctx, 1, prizeID)
	assert.ErrorIs(t, err, common.ErrExhausted)
}

func TestClaimUnknownPrize(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	_, err := store.RegisterUser(ctx, 100, "alice")
	require.NoError(t, err)

	_, err = svc.Claim(ctx, 100, 999)
	assert.ErrorIs(t, err, common.ErrPrizeNotFound)
}

func TestConcurrentClaimsNeverExceedLimit(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	const users = 20
	for i := int64(1); i <= users; i++ {
		_, err := store.RegisterUser(ctx, i, "user")
		require.NoError(t, err)
	}
	prizeID, err := store.CreatePrize(ctx, "cat.jpg", nil, 30)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, users)
	for i := int64(1); i <= users; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := svc.Claim(ctx, userID, prizeID)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	won := 0
	for err := range results {
		if err == nil {
			won++
		} else {
			assert.ErrorIs(t, err, common.ErrExhausted)
		}
	}
	assert.Equal(t, 3, won)

	n, err := store.CountClaimants(ctx, prizeID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPurchaseDebitsCatalogPrice(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	_, err := store.RegisterUser(ctx, 100, "alice")
	require.NoError(t, err)
	store.mu.Lock()
	store.coins[100] = 50
	store.mu.Unlock()

	prizeID, err := store.CreatePrize(ctx, "cat.jpg", nil, 30)
	require.NoError(t, err)

	prize, err := svc.Purchase(ctx, 100, prizeID)
	require.NoError(t, err)
	assert.Equal(t, "cat.jpg", prize.Image)
	assert.Equal(t, int64(20), store.balance(100))
}

func TestPurchaseInsufficientFundsLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	_, err := store.RegisterUser(ctx, 100, "alice")
	require.NoError(t, err)
	store.mu.Lock()
	store.coins[100] = 5
	store.mu.Unlock()

	prizeID, err := store.CreatePrize(ctx, "cat.jpg", nil, 30)
	require.NoError(t, err)

	_, err = svc.Purchase(ctx, 100, prizeID)
	assert.ErrorIs(t, err, common.ErrInsufficientFunds)

	assert.Equal(t, int64(5), store.balance(100))
	n, err := store.CountClaimants(ctx, prizeID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPurchaseMissedUsesDiscountPrice(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	_, err := store.RegisterUser(ctx, 100, "alice")
	require.NoError(t, err)
	store.mu.Lock()
	store.coins[100] = 7
	store.mu.Unlock()

	prizeID, err := store.CreatePrize(ctx, "cat.jpg", nil, 30)
	require.NoError(t, err)
	require.NoError(t, store.RecordMissed(ctx, 100, prizeID))

	// Каталожная цена 30 не по карману, скидочная 5 — да
	prize, err := svc.PurchaseMissed(ctx, 100, prizeID)
	require.NoError(t, err)
	assert.Equal(t, prizeID, prize.PrizeID)
	assert.Equal(t, int64(2), store.balance(100))
}

func TestPurchaseMissedRequiresMissedEntry(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	_, err := store.RegisterUser(ctx, 100, "alice")
	require.NoError(t, err)
	store.mu.Lock()
	store.coins[100] = 100
	store.mu.Unlock()

	prizeID, err := store.CreatePrize(ctx, "cat.jpg", nil, 30)
	require.NoError(t, err)

	// Приз не в списке пропущенных этого пользователя
	_, err = svc.PurchaseMissed(ctx, 100, prizeID)
	assert.ErrorIs(t, err, common.ErrPrizeNotFound)
}

func TestRevealMarksPrizeUsedAndNotifiesEveryone(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	for i := int64(1); i <= 3; i++ {
		_, err := store.RegisterUser(ctx, i, "user")
		require.NoError(t, err)
	}
	prizeID, err := store.CreatePrize(ctx, "cat.jpg", nil, 30)
	require.NoError(t, err)

	var mu sync.Mutex
	var notified []int64
	svc.SetNotify(func(userID int64, hiddenPath string, pid int64) error {
		mu.Lock()
		defer mu.Unlock()
		notified = append(notified, userID)
		assert.Equal(t, prizeID, pid)
		return nil
	})

	require.NoError(t, svc.Reveal(ctx))

	assert.ElementsMatch(t, []int64{1, 2, 3}, notified)

	p, err := store.PrizeByID(ctx, prizeID)
	require.NoError(t, err)
	assert.True(t, p.Used)

	// Разыгранный приз больше не выбирается
	require.NoError(t, svc.Reveal(ctx))
	assert.Len(t, notified, 3)
}

func TestRevealRecordsFailedDeliveries(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	for i := int64(1); i <= 3; i++ {
		_, err := store.RegisterUser(ctx, i, "user")
		require.NoError(t, err)
	}
	prizeID, err := store.CreatePrize(ctx, "cat.jpg", nil, 30)
	require.NoError(t, err)

	svc.SetNotify(func(userID int64, hiddenPath string, pid int64) error {
		if userID == 2 {
			return assert.AnError
		}
		return nil
	})

	require.NoError(t, svc.Reveal(ctx))

	assert.True(t, store.hasMissedRecord(2, prizeID))

	// Остальные доставки не пострадали
	assert.False(t, store.hasMissedRecord(1, prizeID))
	assert.False(t, store.hasMissedRecord(3, prizeID))
}

func TestRevealNoOpWhenCatalogEmpty(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	svc.SetNotify(func(userID int64, hiddenPath string, pid int64) error {
		t.Fatal("не должно быть доставок при пустом каталоге")
		return nil
	})

	assert.NoError(t, svc.Reveal(ctx))
}

func TestResendClearsDeliveredEntries(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	for i := int64(1); i <= 2; i++ {
		_, err := store.RegisterUser(ctx, i, "user")
		require.NoError(t, err)
	}
	prizeID, err := store.CreatePrize(ctx, "cat.jpg", nil, 30)
	require.NoError(t, err)
	require.NoError(t, store.RecordMissed(ctx, 1, prizeID))
	require.NoError(t, store.RecordMissed(ctx, 2, prizeID))

	svc.SetNotify(func(userID int64, hiddenPath string, pid int64) error {
		if userID == 2 {
			return assert.AnError
		}
		return nil
	})

	delivered, failed, err := svc.Resend(ctx, prizeID)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, failed)

	m1, _ := store.IsMissed(ctx, 1, prizeID)
	m2, _ := store.IsMissed(ctx, 2, prizeID)
	assert.False(t, m1)
	assert.True(t, m2)
}

func TestMissedListLimitedToFive(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	_, err := store.RegisterUser(ctx, 100, "alice")
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		id, err := store.CreatePrize(ctx, "p.jpg", nil, 30)
		require.NoError(t, err)
		require.NoError(t, store.RecordMissed(ctx, 100, id))
	}

	missed, err := svc.Missed(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, missed, 5)
}
