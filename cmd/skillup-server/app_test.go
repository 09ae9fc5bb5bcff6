package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skillup/config"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}

func TestSqliteFile(t *testing.T) {
	assert.Equal(t, "./data/courses.db", sqliteFile("file:./data/courses.db?_pragma=busy_timeout(5000)"))
	assert.Equal(t, "", sqliteFile(":memory:"))
	assert.Equal(t, "", sqliteFile(""))
}

func TestSetupStorage(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Adapter = "file"
	cfg.Storage.File.Path = filepath.Join(t.TempDir(), "progress.json")

	store, err := setupStorage(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, store)

	cfg.Storage.Adapter = "etcd"
	_, err = setupStorage(context.Background(), cfg)
	assert.Error(t, err)
}

func TestBuildApp(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SKILLUP_PROFILE", "testing")
	t.Setenv("SKILLUP_BADGE_CATALOG", filepath.Join(dir, "badges", "catalog.yaml"))
	t.Setenv("SKILLUP_COURSES_DSN", "file:"+filepath.Join(dir, "db", "courses.db"))
	t.Setenv("SKILLUP_ENV", "development")

	app, cleanup, err := BuildApp(context.Background())
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, "memory", app.Config.Storage.Adapter)

	courses, err := app.Courses.ListCourses(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, courses, "development seeds the demo courses")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/me/lessons/101/complete", nil)
	req.Header.Set("X-Learner-ID", "5")
	app.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	created, err := app.Reconciler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestBuildApp_ReleasesStorageWhenLaterProviderFails(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()
	blocker := filepath.Join(dir, "db")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	t.Setenv("SKILLUP_PROFILE", "testing")
	t.Setenv("SKILLUP_ENV", "development")
	t.Setenv("SKILLUP_STORAGE_ADAPTER", "redis")
	t.Setenv("SKILLUP_STORAGE_REDIS_ADDR", mr.Addr())
	t.Setenv("SKILLUP_BADGE_CATALOG", filepath.Join(dir, "badges", "catalog.yaml"))
	t.Setenv("SKILLUP_COURSES_DSN", "file:"+filepath.Join(blocker, "courses.db"))

	app, cleanup, err := BuildApp(context.Background())
	require.Error(t, err)
	assert.Nil(t, app)
	assert.Nil(t, cleanup)
	assert.Eventually(t, func() bool { return mr.CurrentConnectionCount() == 0 },
		2*time.Second, 10*time.Millisecond, "redis connections are closed")
}

func TestProvideStorageCleanup(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.DefaultConfig()
	cfg.Storage.Adapter = "redis"
	cfg.Storage.Redis.Addr = mr.Addr()

	store, cleanup, err := provideStorage(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	_, err = store.AddPoints(context.Background(), 1, 5)
	require.NoError(t, err)

	cleanup()
	_, err = store.GetPoints(context.Background(), 1)
	assert.Error(t, err, "the store is closed")
}
