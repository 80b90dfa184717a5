package limiter

import (
	"sync"
	"time"

	"github.com/planline/planline/internal/logger"
	"go.uber.org/zap"
)

// Limit is a windowed attempt budget with an escalation to temporary bans.
type Limit struct {
	MaxAttempts  int           // attempts allowed per window
	Window       time.Duration // window size
	BanThreshold int           // violated windows before a ban
	BanDuration  time.Duration // how long a ban lasts
}

// DefaultLoginLimit guards credential endpoints against brute force.
var DefaultLoginLimit = Limit{
	MaxAttempts:  10,
	Window:       time.Minute,
	BanThreshold: 3,
	BanDuration:  15 * time.Minute,
}

type counter struct {
	count       int
	windowStart time.Time
	violations  int
	bannedUntil time.Time
}

// KeyLimiter tracks attempts per key (typically a client IP). Stale entries
// are pruned in the background.
type KeyLimiter struct {
	limit  Limit
	counts map[string]*counter
	mu     sync.Mutex
	log    *zap.Logger
}

func New(limit Limit) *KeyLimiter {
	l := &KeyLimiter{
		limit:  limit,
		counts: make(map[string]*counter),
		log:    logger.New("limiter"),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether the key may make another attempt now.
func (l *KeyLimiter) Allow(key string) bool {
	if key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	c, ok := l.counts[key]
	if !ok {
		c = &counter{windowStart: now}
		l.counts[key] = c
	}

	if now.Before(c.bannedUntil) {
		return false
	}

	if now.Sub(c.windowStart) >= l.limit.Window {
		c.count = 0
		c.windowStart = now
	}

	c.count++
	if c.count > l.limit.MaxAttempts {
		c.violations++
		if c.violations >= l.limit.BanThreshold {
			c.bannedUntil = now.Add(l.limit.BanDuration)
			c.violations = 0
			l.log.Warn("key temporarily banned",
				zap.String("key", key),
				zap.Duration("duration", l.limit.BanDuration))
		}
		return false
	}
	return true
}

// cleanupLoop prunes keys idle for several windows.
func (l *KeyLimiter) cleanupLoop() {
	interval := l.limit.Window * 10
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-interval)
		l.mu.Lock()
		for key, c := range l.counts {
			if c.windowStart.Before(cutoff) && c.bannedUntil.Before(time.Now()) {
				delete(l.counts, key)
			}
		}
		l.mu.Unlock()
	}
}
