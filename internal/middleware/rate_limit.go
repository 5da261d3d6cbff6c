package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	// DefaultPaymentRateLimit is the default number of payment writes per actor per minute
	DefaultPaymentRateLimit = 30
	// DefaultBurstSize is the default burst size
	DefaultBurstSize = 10

	bucketIdleTTL = 10 * time.Minute
	sweepInterval = 5 * time.Minute
)

// Decision is the outcome of one rate limit check
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	Reset      time.Time // when the bucket is full again
}

// RateLimiter keeps one token bucket per acting user. Idle buckets are swept lazily
// on later calls.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[uuid.UUID]*bucket
	perMinute int
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewRateLimiter creates a RateLimiter with default settings
func NewRateLimiter() *RateLimiter {
	return NewRateLimiterWithConfig(DefaultPaymentRateLimit, DefaultBurstSize)
}

// NewRateLimiterWithConfig creates a RateLimiter allowing perMinute requests with the
// given burst. Non-positive values fall back to the defaults.
func NewRateLimiterWithConfig(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = DefaultPaymentRateLimit
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		buckets:   make(map[uuid.UUID]*bucket),
		perMinute: perMinute,
		burst:     burst,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// Limit returns the configured requests per minute
func (r *RateLimiter) Limit() int {
	return r.perMinute
}

func (r *RateLimiter) perSecond() rate.Limit {
	return rate.Limit(float64(r.perMinute) / 60)
}

// Take spends one token from the actor's bucket if one is available
func (r *RateLimiter) Take(actorID uuid.UUID) Decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweep(now)

	b, ok := r.buckets[actorID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(r.perSecond(), r.burst)}
		r.buckets[actorID] = b
	}
	b.seen = now

	reservation := b.limiter.ReserveN(now, 1)
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return Decision{RetryAfter: delay, Reset: now.Add(delay)}
	}

	tokens := math.Max(b.limiter.TokensAt(now), 0)
	refill := time.Duration((float64(r.burst) - tokens) / float64(r.perSecond()) * float64(time.Second))
	return Decision{
		Allowed:   true,
		Remaining: int(tokens),
		Reset:     now.Add(refill),
	}
}

// Tracked returns the number of buckets currently held
func (r *RateLimiter) Tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}

func (r *RateLimiter) sweep(now time.Time) {
	if now.Sub(r.lastSweep) < sweepInterval {
		return
	}
	r.lastSweep = now
	for actorID, b := range r.buckets {
		if now.Sub(b.seen) > bucketIdleTTL {
			delete(r.buckets, actorID)
		}
	}
}

// RateLimitMiddleware limits requests per acting user. Requests without an actor pass
// through; Authenticate runs first on every limited route.
func RateLimitMiddleware(rl *RateLimiter) echo.MiddlewareFunc {
	limit := strconv.Itoa(rl.Limit())
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor := GetActor(c)
			if actor == nil {
				return next(c)
			}

			d := rl.Take(actor.ID)
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))

			if !d.Allowed {
				retryAfter := int(math.Ceil(d.RetryAfter.Seconds()))
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				log.Warn().
					Str("user_id", actor.ID.String()).
					Int("retry_after", retryAfter).
					Msg("Payment rate limit exceeded")
				return rateLimitError(c, "Too many requests. Please retry after "+strconv.Itoa(retryAfter)+" seconds.")
			}
			return next(c)
		}
	}
}
