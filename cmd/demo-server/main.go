package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	mem "skillup/adapters/memory"
	"skillup/analytics"
	"skillup/api/httpapi"
	"skillup/badges"
	"skillup/core"
	"skillup/courses"
	"skillup/engine"
	"skillup/skillup"
)

// demoBadges mirrors the badges shipped with a fresh installation.
var demoBadges = []core.BadgeDefinition{
	{ID: 1, Name: "Rookie", Description: "Earn 100 points", Condition: core.Condition{Kind: core.PointsThreshold, Threshold: 100}},
	{ID: 2, Name: "Test Taker", Description: "Complete 3 different tests", Condition: core.Condition{Kind: core.TestsCompletedThreshold, Threshold: 3}},
	{ID: 3, Name: "Graduate", Description: "Finish a course", Condition: core.Condition{Kind: core.CoursesCompletedThreshold, Threshold: 1}},
}

func main() {
	// Use readable text logging for development/demo
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(textHandler))

	ctx := context.Background()
	store := mem.New()

	repo, err := courses.Open(courses.Config{Driver: "sqlite", DSN: ":memory:", AutoMigrate: true})
	if err != nil {
		slog.Error("open courses", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	if _, err := repo.Seed(ctx, courses.DemoCourses()); err != nil {
		slog.Error("seed courses", "error", err)
		os.Exit(1)
	}

	catalog, err := badges.NewInMemory(store, demoBadges...)
	if err != nil {
		slog.Error("load demo badges", "error", err)
		os.Exit(1)
	}

	stats := analytics.NewMetrics()
	svc, err := skillup.New(
		skillup.WithStorage(store),
		skillup.WithCourses(repo),
		skillup.WithCatalog(catalog),
		skillup.WithDispatchMode(engine.DispatchAsync),
		skillup.WithHooks(stats),
	)
	if err != nil {
		slog.Error("build service", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	svc.Subscribe(core.EventBadgeAwarded, func(_ context.Context, e core.Event) {
		slog.Info("badge awarded", "learner_id", e.LearnerID, "badge_id", e.BadgeID, "name", e.Metadata["name"])
	})

	handler := httpapi.NewRouter(httpapi.Deps{
		Service: svc,
		Badges:  catalog,
		Courses: repo,
		Stats:   stats,
	}, httpapi.Options{AllowCORSOrigin: "*"})

	slog.Info("starting demo server on :8080",
		"try", "curl -X POST -H 'X-Learner-ID: 1' localhost:8080/me/lessons/101/complete")

	if err := http.ListenAndServe(":8080", handler); err != nil {
		slog.Error("demo server crashed", "error", err)
		os.Exit(1)
	}
}
