package api

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// JWTAuth validates a Bearer token and injects the subject and role claims
// into the request context. The engine itself never sees the token, only
// the resolved owner id.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}

			if sub, _ := claims["sub"].(string); sub != "" {
				c.Set("owner_id", sub)
			}
			c.Set("role", claims["role"])
			return next(c)
		}
	}
}

// ownerID returns the authenticated owner from the request context.
func ownerID(c echo.Context) string {
	id, _ := c.Get("owner_id").(string)
	return id
}

const (
	limiterMaxKeys = 4096
	limiterIdleTTL = 10 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterPool hands out one token bucket per key and evicts idle entries so
// the map stays bounded under churning client populations.
type limiterPool struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	maxKeys int
	idleTTL time.Duration
	entries map[string]*limiterEntry
}

func newLimiterPool(rps float64, burst, maxKeys int, idleTTL time.Duration) *limiterPool {
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 20
	}
	return &limiterPool{
		rps:     rate.Limit(rps),
		burst:   burst,
		maxKeys: maxKeys,
		idleTTL: idleTTL,
		entries: make(map[string]*limiterEntry),
	}
}

func (p *limiterPool) get(key string, now time.Time) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[key]
	if !ok {
		if len(p.entries) >= p.maxKeys {
			p.evict(now)
		}
		e = &limiterEntry{limiter: rate.NewLimiter(p.rps, p.burst)}
		p.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// evict drops entries idle past the TTL; if everything is hot it drops the
// stalest entry so a new key can always be admitted.
func (p *limiterPool) evict(now time.Time) {
	for k, e := range p.entries {
		if now.Sub(e.lastSeen) > p.idleTTL {
			delete(p.entries, k)
		}
	}
	if len(p.entries) < p.maxKeys {
		return
	}
	var stalest string
	var stalestSeen time.Time
	for k, e := range p.entries {
		if stalest == "" || e.lastSeen.Before(stalestSeen) {
			stalest, stalestSeen = k, e.lastSeen
		}
	}
	delete(p.entries, stalest)
}

func (p *limiterPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// RateLimit applies a token-bucket limit per authenticated owner, falling
// back to the client IP when no owner is set. Install it after JWTAuth on
// protected groups so the owner key is populated.
func RateLimit(rps float64, burst int) echo.MiddlewareFunc {
	pool := newLimiterPool(rps, burst, limiterMaxKeys, limiterIdleTTL)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := ownerID(c)
			if key == "" {
				key = fmt.Sprintf("ip:%s", c.RealIP())
			}
			if !pool.get(key, time.Now()).Allow() {
				return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "rate limit exceeded"})
			}
			return next(c)
		}
	}
}
