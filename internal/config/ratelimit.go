package config

import "time"

// RateLimitConfig drives the Redis token bucket in front of the API.  Write
// endpoints that take row locks get their own, smaller bucket.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
	Debug          bool
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables.
func LoadRateLimitConfig() RateLimitConfig {
	return loadRateLimit("RATE_LIMIT", 60, "ip_user_route", "rl")
}

// LoadBookingRateLimitConfig reads BOOKING_RATE_LIMIT_* variables for the
// reservation write endpoints.
func LoadBookingRateLimitConfig() RateLimitConfig {
	return loadRateLimit("BOOKING_RATE_LIMIT", 10, "user_route", "rl:booking")
}

func loadRateLimit(ns string, capacity int, strategy, prefix string) RateLimitConfig {
	def := RateLimitConfig{
		Enabled:        envBool(ns+"_ENABLED", true),
		Capacity:       envInt(ns+"_CAPACITY", capacity),
		RefillTokens:   envInt(ns+"_REFILL_TOKENS", 1),
		RefillInterval: envDur(ns+"_REFILL_INTERVAL", time.Second),
		TTL:            envDur(ns+"_TTL", 10*time.Minute),
		KeyStrategy:    envStr(ns+"_KEY_STRATEGY", strategy),
		Prefix:         envStr(ns+"_PREFIX", prefix),
		Debug:          envBool(ns+"_DEBUG", false),
	}
	if b := envInt(ns+"_BURST", -1); b > 0 {
		def.Capacity = b
	}
	if every := envDur(ns+"_REFILL_EVERY", 0); every > 0 {
		def.RefillTokens = 1
		def.RefillInterval = every
	}
	if def.Capacity < 1 {
		def.Capacity = 1
	}
	if def.RefillTokens < 1 {
		def.RefillTokens = 1
	}
	if def.RefillInterval <= 0 {
		def.RefillInterval = time.Second
	}
	if minTTL := 5 * def.RefillInterval; def.TTL < minTTL {
		def.TTL = minTTL
	}
	return def
}
