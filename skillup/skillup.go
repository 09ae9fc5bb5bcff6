// Package skillup assembles a ProgressService from options.
package skillup

import (
	"fmt"
	"log/slog"

	mem "skillup/adapters/memory"
	"skillup/analytics"
	"skillup/badges"
	"skillup/engine"
)

// Option configures the service builder.
type Option func(*config)

type config struct {
	storage engine.Storage
	courses engine.CourseReader
	catalog engine.BadgeCatalog
	tests   engine.TestCollaborator
	mode    engine.DispatchMode
	points  engine.PointsPolicy
	logger  *slog.Logger
	hooks   []analytics.Hook
}

// WithStorage sets the persistence adapter.
func WithStorage(s engine.Storage) Option { return func(c *config) { c.storage = s } }

// WithCourses sets the course and lesson read model.
func WithCourses(r engine.CourseReader) Option { return func(c *config) { c.courses = r } }

// WithCatalog sets the badge catalog.
func WithCatalog(b engine.BadgeCatalog) Option { return func(c *config) { c.catalog = b } }

// WithTestCollaborator replaces the default test recorder.
func WithTestCollaborator(t engine.TestCollaborator) Option { return func(c *config) { c.tests = t } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithPointsPolicy overrides the lesson and enrollment point values.
func WithPointsPolicy(p engine.PointsPolicy) Option { return func(c *config) { c.points = p } }

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// WithHooks attaches analytics hooks to every engine event.
func WithHooks(h ...analytics.Hook) Option { return func(c *config) { c.hooks = append(c.hooks, h...) } }

// New builds a configured ProgressService. If not provided, defaults are used:
//   - storage: in-memory
//   - courses: empty in-memory read model
//   - catalog: empty in-memory catalog backed by the storage award counts
//   - dispatch: async
func New(opts ...Option) (*engine.ProgressService, error) {
	cfg := &config{mode: engine.DispatchAsync, points: engine.DefaultPointsPolicy()}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.storage == nil {
		cfg.storage = mem.New()
	}
	if cfg.courses == nil {
		cfg.courses = mem.NewCourses()
	}
	if cfg.catalog == nil {
		catalog, err := badges.NewInMemory(cfg.storage)
		if err != nil {
			return nil, fmt.Errorf("default badge catalog: %w", err)
		}
		cfg.catalog = catalog
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	svcOpts := []engine.ServiceOption{
		engine.WithPointsPolicy(cfg.points),
		engine.WithLogger(cfg.logger),
	}
	if cfg.tests != nil {
		svcOpts = append(svcOpts, engine.WithTestCollaborator(cfg.tests))
	}
	svc := engine.NewProgressService(cfg.storage, cfg.courses, cfg.catalog, engine.NewEventBus(cfg.mode), svcOpts...)
	if len(cfg.hooks) > 0 {
		analytics.Attach(svc, analytics.NewBridge(cfg.hooks...))
	}
	return svc, nil
}
