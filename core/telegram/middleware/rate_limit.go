package middleware

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/m3rciful/onboardbot/core/logger"
	tghelpers "github.com/m3rciful/onboardbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
// Every user gets a token bucket refilled once per Interval holding Burst tokens.
type RateLimitOptions struct {
	Interval  time.Duration
	Burst     int
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
}

// UserLimiter keeps one token bucket per user id.
type UserLimiter struct {
	mu     sync.RWMutex
	limits map[int64]*rate.Limiter
	r      rate.Limit
	b      int
}

// NewUserLimiter creates a limiter refilling one token per interval.
func NewUserLimiter(interval time.Duration, burst int) *UserLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &UserLimiter{
		limits: make(map[int64]*rate.Limiter),
		r:      rate.Every(interval),
		b:      burst,
	}
}

// Get returns the bucket of userID, creating it on first use.
func (l *UserLimiter) Get(userID int64) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.limits[userID]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok = l.limits[userID]; !ok {
		lim = rate.NewLimiter(l.r, l.b)
		l.limits[userID] = lim
	}
	return lim
}

// Allow consumes a token for userID at now.
func (l *UserLimiter) Allow(userID int64, now time.Time) bool {
	return l.Get(userID).AllowN(now, 1)
}

// Sweep drops buckets that are full again at now and returns how many were removed.
func (l *UserLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for id, lim := range l.limits {
		if lim.TokensAt(now) >= float64(lim.Burst()) {
			delete(l.limits, id)
			n++
		}
	}
	return n
}

// Len reports the number of tracked users.
func (l *UserLimiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limits)
}

const sweepEvery = 3 * time.Minute

// RateLimitMiddleware returns a middleware that throttles updates per user.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	limiter := NewUserLimiter(opts.Interval, opts.Burst)
	var (
		sweepMu   sync.Mutex
		lastSweep = time.Now()
	)
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}

			kind := "other"
			switch upd := c.Update(); {
			case upd.Callback != nil:
				kind = "callback"
			case upd.Message != nil:
				kind = "message"
			}
			if _, skip := opts.Exclude[kind]; skip {
				return next(c)
			}

			now := time.Now()
			sweepMu.Lock()
			if now.Sub(lastSweep) >= sweepEvery {
				lastSweep = now
				removed := limiter.Sweep(now)
				logger.Debug(logger.Background(), "tg", "rate_limit.sweep",
					slog.Int("removed", removed),
					slog.Int("active", limiter.Len()),
				)
			}
			sweepMu.Unlock()

			if limiter.Allow(user.ID, now) {
				return next(c)
			}

			logger.Warn(tghelpers.BuildContext(c), "tg", "tg.rate_limit",
				slog.String("status", "skip"),
				slog.String("update_kind", kind),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
