package settings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prizebot/internal/config"
)

// memSettings — хранилище настроек в памяти.
type memSettings struct {
	values map[string]string
}

func newMemSettings() *memSettings {
	return &memSettings{values: make(map[string]string)}
}

func (m *memSettings) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memSettings) Set(ctx context.Context, key, value string) error {
	m.values[key] = value
	return nil
}

func (m *memSettings) GetAll(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

func newTestService(repo *memSettings, adminIDs ...int64) *Service {
	return NewService(repo, &config.Config{AdminIDs: adminIDs})
}

func TestDefaultsAppliedOnRead(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemSettings())

	assert.Equal(t, time.Hour, svc.RevealInterval(ctx))
	assert.Equal(t, 3, svc.MaxWinners(ctx))
	assert.Equal(t, int64(10), svc.CoinsPerWin(ctx))
	assert.Equal(t, int64(5), svc.MissedPrice(ctx))
	assert.False(t, svc.BonusHour(ctx))
}

func TestSetChangesTakeEffectImmediately(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemSettings())

	require.NoError(t, svc.Set(ctx, KeyRevealInterval, "30m"))
	require.NoError(t, svc.Set(ctx, KeyMaxWinners, "5"))
	require.NoError(t, svc.Set(ctx, KeyCoinsPerWin, "25"))

	assert.Equal(t, 30*time.Minute, svc.RevealInterval(ctx))
	assert.Equal(t, 5, svc.MaxWinners(ctx))
	assert.Equal(t, int64(25), svc.CoinsPerWin(ctx))
}

func TestBonusHourDoublesReward(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemSettings())

	require.NoError(t, svc.Set(ctx, KeyBonusHour, "on"))
	assert.Equal(t, int64(20), svc.CoinsPerWin(ctx))

	require.NoError(t, svc.Set(ctx, KeyBonusHour, "off"))
	assert.Equal(t, int64(10), svc.CoinsPerWin(ctx))
}

func TestSetRejectsUnknownKey(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemSettings())

	assert.Error(t, svc.Set(ctx, "no_such_key", "1"))
}

func TestSetValidatesValues(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemSettings())

	cases := []struct {
		key   string
		value string
	}{
		{KeyRevealInterval, "abc"},
		{KeyRevealInterval, "-5m"},
		{KeyMaxWinners, "0"},
		{KeyMaxWinners, "три"},
		{KeyCoinsPerWin, "-1"},
		{KeyMissedPrice, "0"},
		{KeyBonusHour, "maybe"},
		{KeyAdmins, "123,abc"},
	}
	for _, tc := range cases {
		assert.Error(t, svc.Set(ctx, tc.key, tc.value), "key=%s value=%s", tc.key, tc.value)
	}

	// Прежние значения не затронуты
	assert.Equal(t, time.Hour, svc.RevealInterval(ctx))
	assert.Equal(t, 3, svc.MaxWinners(ctx))
}

func TestGetAllMergesDefaults(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemSettings())

	require.NoError(t, svc.Set(ctx, KeyMaxWinners, "7"))

	all, err := svc.GetAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, "7", all[KeyMaxWinners])
	assert.Equal(t, "1h", all[KeyRevealInterval])
	assert.Len(t, all, len(KnownKeys()))
}

func TestIsAdminFromConfigAndStoredList(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemSettings(), 111)

	assert.True(t, svc.IsAdmin(ctx, 111))
	assert.False(t, svc.IsAdmin(ctx, 222))

	require.NoError(t, svc.AddAdmin(ctx, 222))
	assert.True(t, svc.IsAdmin(ctx, 222))

	// Повторное добавление — no-op
	require.NoError(t, svc.AddAdmin(ctx, 222))
	assert.True(t, svc.IsAdmin(ctx, 222))
}

func TestInvalidStoredValueFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	repo := newMemSettings()
	// Пишем мимо валидации, как будто настройку испортили руками в БД
	repo.values[KeyRevealInterval] = "garbage"
	repo.values[KeyMaxWinners] = "-2"
	svc := newTestService(repo)

	assert.Equal(t, time.Hour, svc.RevealInterval(ctx))
	assert.Equal(t, 3, svc.MaxWinners(ctx))
}
