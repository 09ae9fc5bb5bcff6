package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"skillup/adapters/jsonfile"
	mem "skillup/adapters/memory"
	redisAdapter "skillup/adapters/redis"
	sqlxAdapter "skillup/adapters/sqlx"
	"skillup/analytics"
	"skillup/api/httpapi"
	"skillup/badges"
	"skillup/config"
	"skillup/courses"
	"skillup/engine"
	"skillup/skillup"
)

// App aggregates the assembled server components.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Storage    engine.Storage
	Courses    *courses.Repository
	Catalog    *badges.Catalog
	Stats      *analytics.Metrics
	Service    *engine.ProgressService
	Reconciler *engine.Reconciler
	Handler    http.Handler
	Server     *http.Server
}

// provideConfig loads SKILLUP_CONFIG_FILE when set, else SKILLUP_PROFILE, else
// the defaults; environment variables override all three.
func provideConfig(ctx context.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case os.Getenv("SKILLUP_CONFIG_FILE") != "":
		cfg, err = config.LoadFromFile(os.Getenv("SKILLUP_CONFIG_FILE"))
	case os.Getenv("SKILLUP_PROFILE") != "":
		cfg, err = config.LoadProfile(os.Getenv("SKILLUP_PROFILE"))
	default:
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if cfg.Environment != config.EnvDevelopment {
		cfg.LoadSecrets(ctx, config.NewEnvironmentSecretStore())
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

// provideStorage opens the progress store; the cleanup closes it when the
// adapter holds connections or files.
func provideStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engine.Storage, func(), error) {
	storage, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if c, ok := storage.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.Error("close progress store", "error", err)
			}
		}
	}
	return storage, cleanup, nil
}

func provideCourses(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*courses.Repository, func(), error) {
	if cfg.Courses.Driver != "postgres" {
		if err := ensureParentDir(sqliteFile(cfg.Courses.DSN)); err != nil {
			return nil, nil, err
		}
	}
	repo, err := courses.Open(cfg.Courses)
	if err != nil {
		return nil, nil, fmt.Errorf("open course repository: %w", err)
	}
	cleanup := func() {
		if err := repo.Close(); err != nil {
			logger.Error("close course repository", "error", err)
		}
	}
	if cfg.Environment == config.EnvDevelopment {
		n, err := repo.Seed(ctx, courses.DemoCourses())
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("seed courses: %w", err)
		}
		if n > 0 {
			logger.Info("seeded demo courses", "courses", n)
		}
	}
	return repo, cleanup, nil
}

func provideCatalog(cfg *config.Config, storage engine.Storage) (*badges.Catalog, error) {
	if err := ensureParentDir(cfg.Badges.CatalogPath); err != nil {
		return nil, err
	}
	return badges.New(cfg.Badges.CatalogPath, storage)
}

func provideStats() *analytics.Metrics {
	return analytics.NewMetrics()
}

// provideService builds the engine; the cleanup delivers queued events and
// stops the bus workers.
func provideService(cfg *config.Config, logger *slog.Logger, storage engine.Storage, repo *courses.Repository, catalog *badges.Catalog, stats *analytics.Metrics) (*engine.ProgressService, func(), error) {
	mode, err := engine.ParseDispatchMode(cfg.Engine.DispatchMode)
	if err != nil {
		return nil, nil, err
	}
	svc, err := skillup.New(
		skillup.WithStorage(storage),
		skillup.WithCourses(repo),
		skillup.WithCatalog(catalog),
		skillup.WithDispatchMode(mode),
		skillup.WithPointsPolicy(engine.PointsPolicy{
			LessonCompletion: cfg.Engine.LessonCompletionPoints,
			Enrollment:       cfg.Engine.EnrollmentPoints,
		}),
		skillup.WithLogger(logger),
		skillup.WithHooks(stats),
	)
	if err != nil {
		return nil, nil, err
	}
	return svc, svc.Close, nil
}

func provideReconciler(cfg *config.Config, storage engine.Storage, svc *engine.ProgressService) *engine.Reconciler {
	return engine.NewReconciler(storage, svc.Evaluator(), cfg.Engine.ReconcileInterval)
}

func provideHandler(cfg *config.Config, logger *slog.Logger, svc *engine.ProgressService, repo *courses.Repository, catalog *badges.Catalog, stats *analytics.Metrics) http.Handler {
	return httpapi.NewRouter(httpapi.Deps{
		Service: svc,
		Badges:  catalog,
		Courses: repo,
		Stats:   stats,
	}, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
		RateLimitCleanup: cfg.Security.RateLimit.CleanupInterval,
		Logger:           logger,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// sqliteFile extracts the file path of a sqlite DSN; in-memory DSNs yield "".
func sqliteFile(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	return path
}

func ensureParentDir(path string) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	var out io.Writer = os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	var result []slog.Attr
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupStorage creates the storage adapter named by the configuration.
func setupStorage(_ context.Context, cfg *config.Config) (engine.Storage, error) {
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.New(), nil
	case "redis":
		return redisAdapter.New(cfg.Storage.Redis)
	case "sql":
		return sqlxAdapter.New(cfg.Storage.SQL)
	case "file":
		return jsonfile.New(cfg.Storage.File.Path)
	default:
		return nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}
