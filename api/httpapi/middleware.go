package httpapi

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"skillup/core"
)

const (
	learnerKey      = "learner_id"
	requestIDHeader = "X-Request-ID"
)

// ErrUnauthenticated is returned by a LearnerResolver that cannot identify the caller.
var ErrUnauthenticated = errors.New("unauthenticated")

// LearnerResolver identifies the learner behind a request.
type LearnerResolver interface {
	CurrentLearnerID(r *http.Request) (core.LearnerID, error)
}

// HeaderResolver trusts a learner id set by an upstream authenticating proxy.
type HeaderResolver struct {
	// Header defaults to X-Learner-ID.
	Header string
}

func (h HeaderResolver) CurrentLearnerID(r *http.Request) (core.LearnerID, error) {
	name := h.Header
	if name == "" {
		name = "X-Learner-ID"
	}
	raw := strings.TrimSpace(r.Header.Get(name))
	if raw == "" {
		return 0, ErrUnauthenticated
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrUnauthenticated
	}
	return core.LearnerID(id), nil
}

func resolveLearner(resolver LearnerResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := resolver.CurrentLearnerID(c.Request)
		if err != nil {
			writeError(c, http.StatusUnauthorized, "unauthenticated", "learner identity required", nil)
			return
		}
		c.Set(learnerKey, id)
		c.Next()
	}
}

func currentLearner(c *gin.Context) core.LearnerID {
	return c.MustGet(learnerKey).(core.LearnerID)
}

// requestLogger tags each request with an id and logs it once it completes.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Next()

		attrs := []any{
			"request_id", id,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		}
		if learner, ok := c.Get(learnerKey); ok {
			attrs = append(attrs, "learner_id", learner)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
			logger.Error("http request", attrs...)
			return
		}
		logger.Info("http request", attrs...)
	}
}

// cors applies a minimal CORS policy.
func cors(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Vary", "Origin")
		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type,Authorization,X-API-Key,X-Learner-ID")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// apiKeyAuth enforces a shared API key list. Plain keys are compared in
// constant time; "$2" prefixed entries are checked with bcrypt.
func apiKeyAuth(apiKeys []string) gin.HandlerFunc {
	var plain [][]byte
	var hashed [][]byte
	for _, k := range apiKeys {
		k = strings.TrimSpace(k)
		switch {
		case k == "":
		case strings.HasPrefix(k, "$2"):
			hashed = append(hashed, []byte(k))
		default:
			plain = append(plain, []byte(k))
		}
	}
	return func(c *gin.Context) {
		key := extractAPIKey(c.Request)
		if key == "" {
			writeError(c, http.StatusUnauthorized, "unauthorized", "missing API key", nil)
			return
		}
		if !keyAllowed([]byte(key), plain, hashed) {
			writeError(c, http.StatusUnauthorized, "unauthorized", "invalid API key", nil)
			return
		}
		c.Next()
	}
}

func keyAllowed(key []byte, plain, hashed [][]byte) bool {
	for _, p := range plain {
		if subtle.ConstantTimeCompare(key, p) == 1 {
			return true
		}
	}
	for _, h := range hashed {
		if bcrypt.CompareHashAndPassword(h, key) == nil {
			return true
		}
	}
	return false
}

// rateLimit applies a token-bucket limiter per client key.
func rateLimit(rpm, burst int, cleanup time.Duration) gin.HandlerFunc {
	limiter := newRateLimiter(rpm, burst, cleanup)
	return func(c *gin.Context) {
		key := extractAPIKey(c.Request)
		if key == "" {
			key = c.ClientIP()
		}
		if !limiter.allow(key) {
			writeError(c, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
			return
		}
		c.Next()
	}
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

type rateLimiter struct {
	rpm     float64
	burst   float64
	cleanup time.Duration
	mu      sync.Mutex
	b       map[string]*bucket
	swept   time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// newRateLimiter builds a per-key token bucket. With cleanup > 0, buckets idle
// for at least cleanup and long enough to have refilled are dropped.
func newRateLimiter(rpm, burst int, cleanup time.Duration) *rateLimiter {
	return &rateLimiter{
		rpm:     float64(rpm),
		burst:   float64(burst),
		cleanup: cleanup,
		b:       make(map[string]*bucket),
		swept:   time.Now(),
	}
}

func (l *rateLimiter) allow(key string) bool { return l.allowAt(key, time.Now()) }

func (l *rateLimiter) allowAt(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)

	b, ok := l.b[key]
	if !ok {
		l.b[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}

	b.tokens += now.Sub(b.last).Minutes() * l.rpm
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// sweep runs at most once per cleanup interval; l.mu must be held.
func (l *rateLimiter) sweep(now time.Time) {
	if l.cleanup <= 0 || now.Sub(l.swept) < l.cleanup {
		return
	}
	l.swept = now
	idle := l.cleanup
	if refill := time.Duration(l.burst / l.rpm * float64(time.Minute)); refill > idle {
		idle = refill
	}
	for k, b := range l.b {
		if now.Sub(b.last) >= idle {
			delete(l.b, k)
		}
	}
}
