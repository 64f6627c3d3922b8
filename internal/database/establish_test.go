package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Tomlord1122/tasklist/internal/domain"
)

// lazyDB returns a pool that never dials until a statement runs.
func lazyDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(
		postgres.Open("host=127.0.0.1 port=1 user=test dbname=test sslmode=disable"),
		&gorm.Config{DisableAutomaticPing: true},
	)
	require.NoError(t, err)
	return db
}

// flakyOpener fails the first failures calls, then succeeds.
type flakyOpener struct {
	mu       sync.Mutex
	failures int
	calls    int
	db       *gorm.DB
}

func (f *flakyOpener) open(_ context.Context, _ string) (*gorm.DB, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection refused")
	}
	if f.db == nil {
		return nil, errors.New("connection refused")
	}
	return f.db, nil
}

type retryRecord struct {
	attempt int
	delay   time.Duration
}

func fastConfig(maxAttempts int) Config {
	return Config{
		DSN:            "postgres://unused",
		MaxAttempts:    maxAttempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
		MaxOpenConns:   5,
	}
}

func TestEstablish(t *testing.T) {
	t.Run("Should succeed on the Nth attempt with non-decreasing capped delays", func(t *testing.T) {
		opener := &flakyOpener{failures: 5, db: lazyDB(t)}
		var records []retryRecord
		svc, err := Establish(context.Background(), fastConfig(10),
			WithOpener(opener.open),
			WithRetryObserver(func(attempt int, delay time.Duration, err error) {
				assert.Error(t, err)
				records = append(records, retryRecord{attempt: attempt, delay: delay})
			}),
		)
		require.NoError(t, err)
		require.NotNil(t, svc)
		t.Cleanup(func() { _ = svc.Close() })

		assert.Equal(t, 6, opener.calls)
		require.Len(t, records, 5)
		for i, rec := range records {
			assert.Equal(t, i+1, rec.attempt)
			assert.LessOrEqual(t, rec.delay, 4*time.Millisecond)
			if i > 0 {
				assert.GreaterOrEqual(t, rec.delay, records[i-1].delay)
			}
		}
		assert.Equal(t, time.Millisecond, records[0].delay)
		assert.Equal(t, 2*time.Millisecond, records[1].delay)
		assert.Equal(t, 4*time.Millisecond, records[2].delay)
		assert.Equal(t, 4*time.Millisecond, records[4].delay)
	})

	t.Run("Should apply the pool bound to the established connection", func(t *testing.T) {
		opener := &flakyOpener{db: lazyDB(t)}
		cfg := fastConfig(3)
		cfg.MaxOpenConns = 7
		svc, err := Establish(context.Background(), cfg, WithOpener(opener.open))
		require.NoError(t, err)
		t.Cleanup(func() { _ = svc.Close() })

		sqlDB, err := svc.GetDB().DB()
		require.NoError(t, err)
		assert.Equal(t, 7, sqlDB.Stats().MaxOpenConnections)
		assert.Equal(t, 1, opener.calls)
	})

	t.Run("Should fail after exactly max attempts", func(t *testing.T) {
		opener := &flakyOpener{failures: 1000}
		retries := 0
		svc, err := Establish(context.Background(), fastConfig(4),
			WithOpener(opener.open),
			WithRetryObserver(func(int, time.Duration, error) { retries++ }),
		)
		require.Error(t, err)
		assert.Nil(t, svc)
		assert.Equal(t, 4, opener.calls)
		assert.Equal(t, 3, retries)

		var connErr *domain.ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, 4, connErr.Attempts)
		assert.EqualError(t, errors.Unwrap(connErr), "connection refused")
	})

	t.Run("Should try once when max attempts is one", func(t *testing.T) {
		opener := &flakyOpener{failures: 1000}
		_, err := Establish(context.Background(), fastConfig(1), WithOpener(opener.open))
		require.Error(t, err)
		assert.Equal(t, 1, opener.calls)
	})

	t.Run("Should stop waiting when the context is canceled", func(t *testing.T) {
		opener := &flakyOpener{failures: 1000}
		cfg := fastConfig(10)
		cfg.InitialBackoff = time.Hour
		cfg.MaxBackoff = time.Hour
		ctx, cancel := context.WithCancel(context.Background())
		svc, err := Establish(ctx, cfg,
			WithOpener(opener.open),
			WithRetryObserver(func(int, time.Duration, error) { cancel() }),
		)
		require.Error(t, err)
		assert.Nil(t, svc)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, opener.calls)
	})
}

func TestConfig_withDefaults(t *testing.T) {
	t.Run("Should fill the compiled-in defaults", func(t *testing.T) {
		cfg := Config{}.withDefaults()
		assert.Equal(t, 10, cfg.MaxAttempts)
		assert.Equal(t, time.Second, cfg.InitialBackoff)
		assert.Equal(t, 10*time.Second, cfg.MaxBackoff)
		assert.Equal(t, 5, cfg.MaxOpenConns)
		assert.Equal(t, 5, cfg.MaxIdleConns)
	})

	t.Run("Should never cap below the initial backoff", func(t *testing.T) {
		cfg := Config{InitialBackoff: 3 * time.Second, MaxBackoff: time.Second}.withDefaults()
		assert.Equal(t, 3*time.Second, cfg.MaxBackoff)
	})
}
