package config

import "time"

// BookingConfig carries the reservation rules that differ between
// deployments.
type BookingConfig struct {
	PerUserLimit    int           // seats an ordinary user may hold per event
	CodeLength      int           // characters in a booking code
	CodeMaxAttempts int           // draws before giving up on a free code
	LockTimeout     time.Duration // bound on row lock waits
	NotifyTimeout   time.Duration // bound on a single post-commit notification
}

// LoadBookingConfig reads BOOKING_* variables, falling back to defaults and
// clamping nonsensical values.
func LoadBookingConfig() BookingConfig {
	cfg := BookingConfig{
		PerUserLimit:    envInt("BOOKING_PER_USER_LIMIT", 2),
		CodeLength:      envInt("BOOKING_CODE_LENGTH", 3),
		CodeMaxAttempts: envInt("BOOKING_CODE_MAX_ATTEMPTS", 64),
		LockTimeout:     envDur("BOOKING_LOCK_TIMEOUT", 5*time.Second),
		NotifyTimeout:   envDur("BOOKING_NOTIFY_TIMEOUT", 5*time.Second),
	}
	if cfg.PerUserLimit < 0 {
		cfg.PerUserLimit = 0
	}
	if cfg.CodeLength < 1 {
		cfg.CodeLength = 1
	}
	if cfg.CodeMaxAttempts < 1 {
		cfg.CodeMaxAttempts = 1
	}
	// innodb_lock_wait_timeout has a one second resolution
	if cfg.LockTimeout < time.Second {
		cfg.LockTimeout = time.Second
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 5 * time.Second
	}
	return cfg
}

// WatcherConfig controls the reservation window watcher.
type WatcherConfig struct {
	Enabled  bool
	Interval time.Duration // how often to scan
	Lookback time.Duration // how far back a closed window is still reported
	Prefix   string        // redis key prefix for de-duplication
	// DedupeTTL is how long a sent notification is remembered.
	DedupeTTL time.Duration
}

// LoadWatcherConfig reads WINDOW_WATCH_* variables.
func LoadWatcherConfig() WatcherConfig {
	cfg := WatcherConfig{
		Enabled:  envBool("WINDOW_WATCH_ENABLED", true),
		Interval: envDur("WINDOW_WATCH_INTERVAL", time.Minute),
		Lookback: envDur("WINDOW_WATCH_LOOKBACK", 10*time.Minute),
		Prefix:   envStr("WINDOW_WATCH_PREFIX", "notified"),

		DedupeTTL: envDur("NOTIFY_DEDUPE_TTL", 30*24*time.Hour),
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Lookback < cfg.Interval {
		cfg.Lookback = cfg.Interval
	}
	if cfg.DedupeTTL < cfg.Lookback {
		cfg.DedupeTTL = cfg.Lookback
	}
	return cfg
}
