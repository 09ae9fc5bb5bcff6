package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"skillup/analytics"
	"skillup/core"
	"skillup/engine"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, guard the admin routes via Authorization: Bearer or X-API-Key.
	// Entries starting with "$2" are bcrypt hashes.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
	// RateLimitCleanup is how often idle client buckets are evicted; zero keeps them.
	RateLimitCleanup time.Duration
	// Logger receives one line per request. Defaults to slog.Default().
	Logger *slog.Logger
}

// BadgeAdmin is the administrator view of the badge catalog.
type BadgeAdmin interface {
	ListBadgeDefinitions(ctx context.Context) ([]core.BadgeDefinition, error)
	Get(ctx context.Context, id core.BadgeID) (core.BadgeDefinition, error)
	Create(ctx context.Context, def core.BadgeDefinition) (core.BadgeDefinition, error)
	Update(ctx context.Context, def core.BadgeDefinition) (core.BadgeDefinition, error)
	Delete(ctx context.Context, id core.BadgeID) error
}

// CourseLister lists published courses.
type CourseLister interface {
	ListCourses(ctx context.Context) ([]core.Course, error)
}

// Deps are the collaborators behind the routes. Service is required; a nil
// Badges, Courses or Stats disables the routes that need it.
type Deps struct {
	Service  *engine.ProgressService
	Badges   BadgeAdmin
	Courses  CourseLister
	Stats    *analytics.Metrics
	Resolver LearnerResolver
}

// NewRouter builds the gin engine exposing the progress API.
// Learner routes (identity from the LearnerResolver):
//   - POST {prefix}/me/courses/{course}/enroll
//   - GET  {prefix}/me/courses/{course}/progress
//   - GET  {prefix}/me/courses/{course}/lessons
//   - POST {prefix}/me/lessons/{lesson}/complete
//   - GET  {prefix}/me/lessons/{lesson}
//   - POST {prefix}/me/tests/{test}/submissions, GET {prefix}/me/tests
//   - GET  {prefix}/me/summary, /me/points, /me/badges, /me/report.xlsx
//
// Admin routes (API key):
//   - GET|POST {prefix}/admin/badges, GET|PUT|DELETE {prefix}/admin/badges/{badge}
//   - POST {prefix}/admin/learners/{learner}/evaluate
//   - GET  {prefix}/admin/stats, /admin/stats/daily?from=YYYY-MM-DD&to=YYYY-MM-DD[&format=export]
func NewRouter(deps Deps, opts Options) *gin.Engine {
	if deps.Service == nil {
		panic("httpapi: Service is required")
	}
	if deps.Resolver == nil {
		deps.Resolver = HeaderResolver{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	if opts.AllowCORSOrigin != "" {
		r.Use(cors(opts.AllowCORSOrigin))
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		r.Use(rateLimit(opts.RateLimitRPM, opts.RateLimitBurst, opts.RateLimitCleanup))
	}
	r.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "not_found", "route not found", nil)
	})

	h := &handlers{deps: deps}
	root := r.Group(prefix(opts.PathPrefix))
	root.GET("/healthz", h.health)
	if deps.Courses != nil {
		root.GET("/courses", h.listCourses)
	}

	me := root.Group("/me", resolveLearner(deps.Resolver))
	{
		me.POST("/courses/:course/enroll", h.enroll)
		me.GET("/courses/:course/progress", h.courseProgress)
		me.GET("/courses/:course/lessons", h.completedLessons)
		me.POST("/lessons/:lesson/complete", h.completeLesson)
		me.GET("/lessons/:lesson", h.lessonStatus)
		me.POST("/tests/:test/submissions", h.submitTest)
		me.GET("/tests", h.submissions)
		me.GET("/summary", h.summary)
		me.GET("/points", h.points)
		me.GET("/badges", h.badges)
		me.GET("/report.xlsx", h.report)
	}

	admin := root.Group("/admin")
	if len(opts.APIKeys) > 0 {
		admin.Use(apiKeyAuth(opts.APIKeys))
	}
	{
		admin.POST("/learners/:learner/evaluate", h.evaluate)
		if deps.Badges != nil {
			admin.GET("/badges", h.listBadges)
			admin.POST("/badges", h.createBadge)
			admin.GET("/badges/:badge", h.getBadge)
			admin.PUT("/badges/:badge", h.updateBadge)
			admin.DELETE("/badges/:badge", h.deleteBadge)
		}
		if deps.Stats != nil {
			admin.GET("/stats", h.stats)
			admin.GET("/stats/daily", h.dailyStats)
		}
	}
	return r
}

func prefix(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
