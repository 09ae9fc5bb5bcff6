package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	mem "skillup/adapters/memory"
	"skillup/analytics"
	"skillup/badges"
	"skillup/core"
	"skillup/engine"
	"skillup/report"
)

func init() { gin.SetMode(gin.TestMode) }

type testServer struct {
	store   *mem.Store
	catalog *badges.Catalog
	stats   *analytics.Metrics
	handler http.Handler
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	store := mem.New()
	courses := mem.NewCourses()
	courses.PutCourse(core.Course{ID: 1, Title: "Go Fundamentals", TeacherID: 99})
	for i := 1; i <= 2; i++ {
		courses.PutLesson(core.Lesson{ID: core.LessonID(100 + i), CourseID: 1, OrderIndex: i})
	}

	catalog, err := badges.NewInMemory(store, core.BadgeDefinition{
		ID:        1,
		Name:      "First Steps",
		Condition: core.Condition{Kind: core.PointsThreshold, Threshold: 5},
	})
	require.NoError(t, err)

	bus := engine.NewEventBus(engine.DispatchSync)
	svc := engine.NewProgressService(store, courses, catalog, bus)
	t.Cleanup(svc.Close)

	stats := analytics.NewMetrics()
	analytics.Attach(svc, stats)

	return &testServer{
		store:   store,
		catalog: catalog,
		stats:   stats,
		handler: NewRouter(Deps{Service: svc, Badges: catalog, Stats: stats}, opts),
	}
}

func (s *testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func as(learner string) map[string]string { return map[string]string{"X-Learner-ID": learner} }

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, Options{PathPrefix: "/api"})
	rec := srv.do(http.MethodGet, "/api/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Contains(t, body, "events")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestLearnerRoutesRequireIdentity(t *testing.T) {
	srv := newTestServer(t, Options{})
	for _, learner := range []string{"", "abc", "-3"} {
		rec := srv.do(http.MethodGet, "/me/points", "", as(learner))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "learner %q", learner)
	}
}

func TestCompleteLesson(t *testing.T) {
	srv := newTestServer(t, Options{PathPrefix: "/api/"})

	rec := srv.do(http.MethodPost, "/api/me/lessons/101/complete", "", as("7"))
	require.Equal(t, http.StatusOK, rec.Code)
	var res engine.CompletionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Accepted)
	assert.True(t, res.NewlyCompleted)
	require.NotNil(t, res.NextLesson)
	assert.Equal(t, core.LessonID(102), res.NextLesson.ID)
	require.Len(t, res.Awards, 1)
	assert.Equal(t, core.BadgeID(1), res.Awards[0].BadgeID)

	rec = srv.do(http.MethodPost, "/api/me/lessons/101/complete", "", as("7"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.NewlyCompleted)
	assert.Empty(t, res.Awards)

	rec = srv.do(http.MethodGet, "/api/me/points", "", as("7"))
	assert.Equal(t, float64(5), decode(t, rec)["points"])

	rec = srv.do(http.MethodGet, "/api/me/lessons/101", "", as("7"))
	assert.Equal(t, true, decode(t, rec)["completed"])

	rec = srv.do(http.MethodGet, "/api/me/courses/1/progress", "", as("7"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(50), decode(t, rec)["percent_completed"])

	rec = srv.do(http.MethodGet, "/api/me/courses/1/lessons", "", as("7"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["completed"], 1)
}

func TestCompleteLessonErrors(t *testing.T) {
	srv := newTestServer(t, Options{})

	rec := srv.do(http.MethodPost, "/me/lessons/999/complete", "", as("7"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "lesson_not_found", decode(t, rec)["code"])

	rec = srv.do(http.MethodPost, "/me/lessons/x/complete", "", as("7"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_lesson", decode(t, rec)["code"])
}

func TestEnroll(t *testing.T) {
	srv := newTestServer(t, Options{})

	rec := srv.do(http.MethodPost, "/me/courses/1/enroll", "", as("7"))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, decode(t, rec)["newly_enrolled"])

	rec = srv.do(http.MethodPost, "/me/courses/1/enroll", "", as("7"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["newly_enrolled"])

	rec = srv.do(http.MethodPost, "/me/courses/1/enroll", "", as("99"))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "teachers cannot enroll in their own course")

	rec = srv.do(http.MethodPost, "/me/courses/42/enroll", "", as("7"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitTest(t *testing.T) {
	srv := newTestServer(t, Options{})

	rec := srv.do(http.MethodPost, "/me/tests/3/submissions", `{"score": 40}`, as("7"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["awards"], 1)

	rec = srv.do(http.MethodPost, "/me/tests/3/submissions", `{}`, as("7"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(http.MethodPost, "/me/tests/3/submissions", `{"score": -1}`, as("7"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", decode(t, rec)["code"])

	rec = srv.do(http.MethodGet, "/me/tests", "", as("7"))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Submissions []core.TestSubmission `json:"submissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Submissions, 1, "rejected submissions are not recorded")
	assert.Equal(t, core.TestID(3), body.Submissions[0].TestID)
	assert.Equal(t, int64(40), body.Submissions[0].Score)
}

func TestSummaryAndReport(t *testing.T) {
	srv := newTestServer(t, Options{})
	srv.do(http.MethodPost, "/me/courses/1/enroll", "", as("7"))

	rec := srv.do(http.MethodGet, "/me/summary", "", as("7"))
	require.Equal(t, http.StatusOK, rec.Code)
	var summary engine.LearnerSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, int64(10), summary.Points)
	require.Len(t, summary.Badges, 1)
	assert.Equal(t, "First Steps", summary.Badges[0].Name)
	require.Len(t, summary.Courses, 1)
	assert.Equal(t, "Go Fundamentals", summary.Courses[0].Title)

	rec = srv.do(http.MethodGet, "/me/badges", "", as("7"))
	assert.Len(t, decode(t, rec)["badges"], 1)

	rec = srv.do(http.MethodGet, "/me/report.xlsx", "", as("7"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, report.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "learner-7.xlsx")
	assert.NotZero(t, rec.Body.Len())
}

func TestAdminAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-key"), bcrypt.MinCost)
	require.NoError(t, err)
	srv := newTestServer(t, Options{APIKeys: []string{"plain-key", string(hash)}})

	rec := srv.do(http.MethodGet, "/admin/badges", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(http.MethodGet, "/admin/badges", "", map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(http.MethodGet, "/admin/badges", "", map[string]string{"X-API-Key": "plain-key"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(http.MethodGet, "/admin/badges", "", map[string]string{"Authorization": "Bearer hashed-key"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminBadgeCRUD(t *testing.T) {
	srv := newTestServer(t, Options{})

	rec := srv.do(http.MethodPost, "/admin/badges",
		`{"name":"Scholar","condition":{"kind":"tests_completed_threshold","threshold":3}}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, float64(2), decode(t, rec)["id"])

	rec = srv.do(http.MethodPost, "/admin/badges",
		`{"name":"scholar","condition":{"kind":"points_threshold","threshold":1}}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "names are unique ignoring case")

	rec = srv.do(http.MethodPost, "/admin/badges", `{"name":"Bad","condition":{"kind":"nope"}}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(http.MethodPut, "/admin/badges/2",
		`{"name":"Scholar","icon_url":"https://cdn.example/scholar.png","condition":{"kind":"tests_completed_threshold","threshold":2}}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(http.MethodGet, "/admin/badges/2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://cdn.example/scholar.png", decode(t, rec)["icon_url"])

	rec = srv.do(http.MethodGet, "/admin/badges/77", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(http.MethodDelete, "/admin/badges/2", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAdminDeleteAwardedBadgeConflicts(t *testing.T) {
	srv := newTestServer(t, Options{})
	srv.do(http.MethodPost, "/me/lessons/101/complete", "", as("7"))

	rec := srv.do(http.MethodDelete, "/admin/badges/1", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdminEvaluateAndStats(t *testing.T) {
	srv := newTestServer(t, Options{})
	_, err := srv.store.AddPoints(context.Background(), 8, 50)
	require.NoError(t, err)

	rec := srv.do(http.MethodPost, "/admin/learners/8/evaluate", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["awards"], 1)

	rec = srv.do(http.MethodPost, "/admin/learners/8/evaluate", "", nil)
	assert.Empty(t, decode(t, rec)["awards"])

	rec = srv.do(http.MethodGet, "/admin/stats?top=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary analytics.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, int64(1), summary.BadgesAwarded)
	assert.Equal(t, int64(1), summary.BadgesToday)
	assert.Equal(t, 1, summary.ActiveThisWeek)
	require.Len(t, summary.TopBadges, 1)

	rec = srv.do(http.MethodGet, "/admin/stats/daily", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["days"], 7)

	rec = srv.do(http.MethodGet, "/admin/stats/daily?from=2024-02-01&to=2024-02-03&format=export", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "daily-2024-02-01-2024-02-03.json")
	var exported []analytics.AggregatedData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exported))
	require.Len(t, exported, 3)
	assert.Equal(t, "2024-02-01", exported[0].Day)

	rec = srv.do(http.MethodGet, "/admin/stats/daily?from=2024-02-10&to=2024-02-01", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(http.MethodGet, "/admin/stats/daily?from=yesterday", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, Options{RateLimitEnabled: true, RateLimitRPM: 1, RateLimitBurst: 1})

	rec := srv.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = srv.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimiterEvictsIdleBuckets(t *testing.T) {
	limiter := newRateLimiter(60, 2, time.Minute)
	start := time.Now()

	for i := 0; i < 50; i++ {
		assert.True(t, limiter.allowAt(fmt.Sprintf("10.0.0.%d", i), start))
	}
	assert.True(t, limiter.allowAt("busy", start.Add(30*time.Second)))
	assert.Len(t, limiter.b, 51)

	// the sweep runs on the first call after the interval and keeps recent keys
	assert.True(t, limiter.allowAt("busy", start.Add(70*time.Second)))
	assert.Len(t, limiter.b, 1)
	assert.Contains(t, limiter.b, "busy")
}

func TestRateLimiterKeepsUnrefilledBuckets(t *testing.T) {
	// one token per minute with a burst of 5 refills in five minutes
	limiter := newRateLimiter(1, 5, time.Minute)
	start := time.Now()
	for i := 0; i < 5; i++ {
		assert.True(t, limiter.allowAt("k", start))
	}
	assert.False(t, limiter.allowAt("k", start))

	assert.True(t, limiter.allowAt("other", start.Add(2*time.Minute)))
	assert.Contains(t, limiter.b, "k", "a drained bucket survives until it could have refilled")

	assert.True(t, limiter.allowAt("other", start.Add(6*time.Minute)))
	assert.NotContains(t, limiter.b, "k")
	assert.Contains(t, limiter.b, "other")
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, Options{AllowCORSOrigin: "*"})
	rec := srv.do(http.MethodOptions, "/me/points", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t, Options{})
	rec := srv.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode(t, rec)["code"])
}

func TestHeaderResolver(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User", "12")
	id, err := HeaderResolver{Header: "X-User"}.CurrentLearnerID(req)
	require.NoError(t, err)
	assert.Equal(t, core.LearnerID(12), id)

	_, err = HeaderResolver{}.CurrentLearnerID(req)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
