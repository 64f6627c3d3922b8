package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Tomlord1122/tasklist/internal/domain"
	"github.com/Tomlord1122/tasklist/internal/logger"
)

const (
	defaultMaxAttempts     = 10
	defaultInitialBackoff  = time.Second
	defaultMaxBackoff      = 10 * time.Second
	defaultMaxOpenConns    = 5
	defaultConnMaxLifetime = time.Hour
	defaultPingTimeout     = 3 * time.Second
	slowQueryThreshold     = time.Second
)

// Config controls how Establish reaches the store.
type Config struct {
	DSN             string
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = defaultMaxOpenConns
	}
	if c.MaxIdleConns <= 0 || c.MaxIdleConns > c.MaxOpenConns {
		c.MaxIdleConns = c.MaxOpenConns
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = defaultConnMaxLifetime
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = defaultPingTimeout
	}
	return c
}

// Opener opens one pool and validates it with a round trip.
type Opener func(ctx context.Context, dsn string) (*gorm.DB, error)

// RetryObserver is told about every failed attempt that will be retried.
type RetryObserver func(attempt int, delay time.Duration, err error)

type Option func(*establishOptions)

type establishOptions struct {
	opener   Opener
	observer RetryObserver
}

func WithOpener(opener Opener) Option {
	return func(o *establishOptions) { o.opener = opener }
}

func WithRetryObserver(observer RetryObserver) Option {
	return func(o *establishOptions) { o.observer = observer }
}

// Establish opens the connection pool, retrying with capped exponential
// backoff. After cfg.MaxAttempts consecutive failures it returns a
// *domain.ConnectionError wrapping the last failure.
func Establish(ctx context.Context, cfg Config, opts ...Option) (Service, error) {
	cfg = cfg.withDefaults()
	o := establishOptions{opener: openPostgres(cfg.PingTimeout)}
	for _, opt := range opts {
		opt(&o)
	}
	log := logger.FromContext(ctx)

	var (
		db      *gorm.DB
		attempt int
		lastErr error
	)
	backoff := retry.NewExponential(cfg.InitialBackoff)
	backoff = retry.WithCappedDuration(cfg.MaxBackoff, backoff)
	backoff = retry.WithMaxRetries(uint64(cfg.MaxAttempts-1), backoff)
	backoff = notifyOnRetry(backoff, func(delay time.Duration) {
		log.Warn("Database connection attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"delay", delay,
			"error", lastErr)
		if o.observer != nil {
			o.observer(attempt, delay, lastErr)
		}
	})

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		opened, err := o.opener(ctx, cfg.DSN)
		if err != nil {
			lastErr = err
			return retry.RetryableError(err)
		}
		db = opened
		return nil
	})
	if err != nil {
		if lastErr != nil && !errors.Is(err, lastErr) {
			err = fmt.Errorf("%w (last attempt: %v)", err, lastErr)
		}
		log.Error("Giving up on database connection", "attempts", attempt, "error", err)
		return nil, &domain.ConnectionError{Attempts: attempt, Err: err}
	}

	if err := configurePool(db, cfg); err != nil {
		return nil, &domain.ConnectionError{Attempts: attempt, Err: err}
	}
	log.Info("Database connection established",
		"attempts", attempt,
		"max_open_conns", cfg.MaxOpenConns,
		"max_idle_conns", cfg.MaxIdleConns)
	return &service{db: db, maxOpenConns: cfg.MaxOpenConns}, nil
}

// notifyOnRetry calls fn with each delay the wrapped backoff hands out.
func notifyOnRetry(next retry.Backoff, fn func(time.Duration)) retry.Backoff {
	return retry.BackoffFunc(func() (time.Duration, bool) {
		delay, stop := next.Next()
		if !stop {
			fn(delay)
		}
		return delay, stop
	})
}

func configurePool(db *gorm.DB, cfg Config) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return nil
}

func openPostgres(pingTimeout time.Duration) Opener {
	return func(ctx context.Context, dsn string) (*gorm.DB, error) {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger:               newGormLogger(logger.FromContext(ctx)),
			DisableAutomaticPing: true,
		})
		if err != nil {
			return nil, fmt.Errorf("open: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get underlying sql.DB: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := sqlDB.PingContext(pingCtx); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("ping: %w", err)
		}
		return db, nil
	}
}

type gormWriter struct {
	log logger.Logger
}

func (w gormWriter) Printf(format string, args ...any) {
	w.log.Warn(fmt.Sprintf(format, args...))
}

func newGormLogger(log logger.Logger) gormlogger.Interface {
	return gormlogger.New(gormWriter{log: log.With("component", "gorm")}, gormlogger.Config{
		SlowThreshold:             slowQueryThreshold,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
