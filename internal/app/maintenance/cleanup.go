package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/vocabquiz/internal/auth"
	"github.com/charlesng35/vocabquiz/pkg/logger"
)

const (
	defaultSchedule = "@hourly"

	// capabilityRetention keeps expired capability tokens long enough for
	// the trailing send window to keep counting them.
	capabilityRetention = 24 * time.Hour
)

// ExpiredPurger removes expired entries from a store, such as cache.DatabaseStore.
type ExpiredPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Cleaner purges expired refresh tokens, stale capability tokens and expired
// cache rows on a cron schedule.
type Cleaner struct {
	sessions *iauth.SessionService
	ledgers  []*iauth.CapabilityLedger
	cache    ExpiredPurger
	cron     *cron.Cron
	now      func() time.Time
	log      *zap.Logger
	schedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithSchedule overrides the cron specification.
func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// WithCachePurger also purges expired cache rows on every run.
func WithCachePurger(p ExpiredPurger) Option {
	return func(cleaner *Cleaner) {
		cleaner.cache = p
	}
}

// Stats captures the number of rows removed by one run.
type Stats struct {
	RefreshTokens    int64
	CapabilityTokens int64
	CacheEntries     int64
}

// NewCleaner constructs a Cleaner. A nil sessions service skips refresh token cleanup.
func NewCleaner(sessions *iauth.SessionService, ledgers []*iauth.CapabilityLedger, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		sessions: sessions,
		ledgers:  ledgers,
		now:      func() time.Time { return time.Now().UTC() },
		schedule: defaultSchedule,
		log:      logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the cleanup job and launches the scheduler.
func (c *Cleaner) Start() error {
	if _, err := c.cron.AddFunc(c.schedule, func() {
		stats, err := c.RunOnce(context.Background())
		if err != nil {
			c.log.Warn("maintenance cleanup failed", zap.Error(err))
		}
		c.log.Debug("maintenance cleanup finished",
			zap.Int64("refresh_tokens", stats.RefreshTokens),
			zap.Int64("capability_tokens", stats.CapabilityTokens),
			zap.Int64("cache_entries", stats.CacheEntries),
		)
	}); err != nil {
		return err
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every cleanup routine. A failing step does not stop the
// others; their errors are combined.
func (c *Cleaner) RunOnce(ctx context.Context) (Stats, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		stats Stats
		errs  error
	)
	now := c.now()

	if c.sessions != nil {
		removed, err := c.sessions.CleanupExpired(ctx, now)
		errs = multierr.Append(errs, err)
		stats.RefreshTokens = removed
	}

	for _, ledger := range c.ledgers {
		if ledger == nil {
			continue
		}
		removed, err := ledger.DeleteExpired(ctx, now.Add(-capabilityRetention))
		errs = multierr.Append(errs, err)
		stats.CapabilityTokens += removed
	}

	if c.cache != nil {
		removed, err := c.cache.PurgeExpired(ctx)
		errs = multierr.Append(errs, err)
		stats.CacheEntries = removed
	}

	return stats, errs
}
