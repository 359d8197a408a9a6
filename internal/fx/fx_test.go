package fx

import (
	"context"
	"testing"
	"time"

	"folio-backend/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type countingLookup struct {
	calls int
	next  Lookup
}

func (c *countingLookup) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	c.calls++
	return c.next.Rate(ctx, from, to)
}

func setupStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.FxRate{}))
	return &Store{DB: db}
}

func TestResolve_SameCurrencySkipsLookup(t *testing.T) {
	l := &countingLookup{next: Static{}}
	rate, err := Resolve(context.Background(), l, "usd", " USD ")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 0, l.calls)
}

func TestResolve_UnknownPair(t *testing.T) {
	_, err := Resolve(context.Background(), Static{}, "USD", "EUR")
	assert.ErrorIs(t, err, ErrNoFxRate)
	var nr *NoRateError
	require.ErrorAs(t, err, &nr)
	assert.Equal(t, "USD", nr.From)
	assert.Equal(t, "EUR", nr.To)
}

func TestStore_SetRateUpserts(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, err := s.SetRate(ctx, "usd", "eur", decimal.RequireFromString("0.91"))
	require.NoError(t, err)
	_, err = s.SetRate(ctx, "USD", "EUR", decimal.RequireFromString("0.90"))
	require.NoError(t, err)

	rows, err := s.ListRates(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rate, err := s.Rate(ctx, "USD", "EUR")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.9")))

	_, err = s.Rate(ctx, "EUR", "USD")
	assert.ErrorIs(t, err, ErrNoFxRate)

	_, err = s.SetRate(ctx, "USD", "GBP", decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidRate)
}

func TestCachedLookup_ReadThroughAndInvalidate(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	next := &countingLookup{next: Static{"USD:EUR": decimal.RequireFromString("0.9")}}
	c := &CachedLookup{Next: next, Rdb: rdb, TTL: time.Minute}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rate, err := c.Rate(ctx, "USD", "EUR")
		require.NoError(t, err)
		assert.Equal(t, "0.9", rate.String())
	}
	assert.Equal(t, 1, next.calls)
	cached, err := mr.Get(CacheKey("usd", "eur"))
	require.NoError(t, err)
	assert.Equal(t, "0.9", cached)

	require.NoError(t, c.Invalidate(ctx, "USD", "EUR"))
	assert.False(t, mr.Exists("fx:USD:EUR"))

	_, err = c.Rate(ctx, "USD", "JPY")
	assert.ErrorIs(t, err, ErrNoFxRate)
	assert.False(t, mr.Exists("fx:USD:JPY"))
}

func TestCachedLookup_RedisDownFallsBack(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	c := &CachedLookup{Next: Static{"USD:EUR": decimal.RequireFromString("0.9")}, Rdb: rdb, TTL: time.Minute}
	rate, err := c.Rate(context.Background(), "USD", "EUR")
	require.NoError(t, err)
	assert.Equal(t, "0.9", rate.String())
}

func TestMemo_RemembersMisses(t *testing.T) {
	next := &countingLookup{next: Static{"USD:EUR": decimal.RequireFromString("0.9")}}
	m := NewMemo(next)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := m.Rate(ctx, "USD", "EUR")
		require.NoError(t, err)
		_, err = m.Rate(ctx, "USD", "CHF")
		assert.ErrorIs(t, err, ErrNoFxRate)
	}
	assert.Equal(t, 2, next.calls)
}

func TestBind_PointsStoreAtTransaction(t *testing.T) {
	s := setupStore(t)
	c := &CachedLookup{Next: s}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(&domain.FxRate{FromCurrency: "USD", ToCurrency: "EUR", Rate: decimal.RequireFromString("0.9")}).Error)
		rate, err := Bind(c, tx).Rate(context.Background(), "USD", "EUR")
		require.NoError(t, err)
		assert.Equal(t, "0.9", rate.String())
		return nil
	})
	require.NoError(t, err)
}
