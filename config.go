package bifrost

import (
	"time"

	"github.com/aadithya-v/bifrost/store"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Config contains configuration options for a SessionStore.
type Config struct {
	// TTL is how long a session stays alive after creation or a touch.
	// Default: 3600 seconds.
	TTL time.Duration

	// Backend is the table sessions are persisted into.
	// Default: SQLite backend at DatabasePath.
	Backend store.Backend

	// DatabasePath is the path for the default SQLite database.
	// Only used if Backend is nil.
	// Default: "bifrost.db".
	DatabasePath string

	// Locker serializes Save, Touch and Delete per session key.
	// Use store.RedisLocker when several processes share one table.
	// Default: in-process store.KeyMutex.
	Locker store.Locker

	// SweepSchedule is a cron spec (e.g. "@every 10m") for reaping expired
	// rows in the background. Empty disables the background sweeper;
	// Delete still sweeps.
	SweepSchedule string

	// QueryTimeout bounds each backend call. A negative value leaves only
	// the caller's context in charge.
	// Default: 5 seconds.
	QueryTimeout time.Duration

	// Logger receives operational logs.
	// Default: no-op logger.
	Logger *zap.Logger

	// Registerer registers the store's metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TTL:          DefaultTTL,
		DatabasePath: "bifrost.db",
		QueryTimeout: 5 * time.Second,
	}
}

// applyDefaults fills in default values for zero-value fields.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.TTL <= 0 {
		c.TTL = defaults.TTL
	}
	if c.DatabasePath == "" {
		c.DatabasePath = defaults.DatabasePath
	}
	if c.QueryTimeout < 0 {
		c.QueryTimeout = 0
	} else if c.QueryTimeout == 0 {
		c.QueryTimeout = defaults.QueryTimeout
	}
	if c.Locker == nil {
		c.Locker = store.NewKeyMutex()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}
