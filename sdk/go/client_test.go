package sdk

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	mem "skillup/adapters/memory"
	"skillup/api/httpapi"
	"skillup/badges"
	"skillup/core"
	"skillup/engine"
)

func TestClient_LearnerFlow(t *testing.T) {
	srv := newTestServer(t)

	client, err := NewClient(srv.URL+"/api/", WithLearner(7))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	hs, err := client.Health(ctx)
	if err != nil || hs.Status != "healthy" {
		t.Fatalf("health status=%q err=%v", hs.Status, err)
	}

	enr, err := client.Enroll(ctx, 1)
	if err != nil || !enr.NewlyEnrolled {
		t.Fatalf("enroll got %+v err=%v", enr, err)
	}

	res, err := client.CompleteLesson(ctx, 11)
	if err != nil {
		t.Fatalf("complete lesson: %v", err)
	}
	if !res.NewlyCompleted || len(res.Awards) != 1 {
		t.Fatalf("expected a new completion with one award, got %+v", res)
	}

	done, err := client.IsLessonCompleted(ctx, 11)
	if err != nil || !done {
		t.Fatalf("lesson status done=%v err=%v", done, err)
	}

	p, err := client.CourseProgress(ctx, 1)
	if err != nil || p.Percent != 100 {
		t.Fatalf("progress got %+v err=%v", p, err)
	}

	if _, err := client.SubmitTest(ctx, 4, 20); err != nil {
		t.Fatalf("submit test: %v", err)
	}

	subs, err := client.Submissions(ctx)
	if err != nil || len(subs) != 1 || subs[0].TestID != 4 || subs[0].Score != 20 {
		t.Fatalf("submissions got %+v err=%v", subs, err)
	}

	points, err := client.Points(ctx)
	if err != nil || points != 35 {
		t.Fatalf("expected 35 points, got %d err=%v", points, err)
	}

	views, err := client.Badges(ctx)
	if err != nil || len(views) != 1 || views[0].Name != "Graduate" {
		t.Fatalf("badges got %+v err=%v", views, err)
	}

	summary, err := client.Summary(ctx)
	if err != nil || summary.Points != 35 || len(summary.Courses) != 1 {
		t.Fatalf("summary got %+v err=%v", summary, err)
	}
}

func TestClient_Errors(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	anon, _ := NewClient(srv.URL + "/api")
	if _, err := anon.Points(ctx); err == nil {
		t.Fatal("expected an error without a learner id")
	}

	client, _ := NewClient(srv.URL+"/api", WithLearner(7))
	_, err := client.Enroll(ctx, 404)
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "not_found" {
		t.Fatalf("expected APIError with code, got %v", err)
	}

	if _, err := client.SubmitTest(ctx, 1, -5); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestClient_Admin(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	noKey, _ := NewClient(srv.URL + "/api")
	if _, err := noKey.Evaluate(ctx, 7); err == nil {
		t.Fatal("expected unauthorized without an API key")
	}

	admin, _ := NewClient(srv.URL+"/api", WithAPIKey("k1"))
	def, err := admin.CreateBadge(ctx, core.BadgeDefinition{
		Name:      "Centurion",
		Condition: core.Condition{Kind: core.PointsThreshold, Threshold: 100},
	})
	if err != nil || def.ID == 0 {
		t.Fatalf("create badge got %+v err=%v", def, err)
	}
	if _, err := admin.CreateBadge(ctx, core.BadgeDefinition{
		Name:      "CENTURION",
		Condition: core.Condition{Kind: core.PointsThreshold, Threshold: 1},
	}); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	awards, err := admin.Evaluate(ctx, 7)
	if err != nil || len(awards) != 0 {
		t.Fatalf("evaluate got %v err=%v", awards, err)
	}

	if err := admin.DeleteBadge(ctx, def.ID); err != nil {
		t.Fatalf("delete badge: %v", err)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient("  "); err == nil {
		t.Fatal("expected error for empty base url")
	}
}

// newTestServer serves the real API over in-memory stores with one single-lesson course.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := mem.New()
	courses := mem.NewCourses()
	courses.PutCourse(core.Course{ID: 1, Title: "Intro"})
	courses.PutLesson(core.Lesson{ID: 11, CourseID: 1, OrderIndex: 1})

	catalog, err := badges.NewInMemory(store, core.BadgeDefinition{
		ID: 1, Name: "Graduate", Condition: core.Condition{Kind: core.CoursesCompletedThreshold, Threshold: 1},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	svc := engine.NewProgressService(store, courses, catalog, engine.NewEventBus(engine.DispatchSync))
	t.Cleanup(svc.Close)

	router := httpapi.NewRouter(httpapi.Deps{Service: svc, Badges: catalog}, httpapi.Options{
		PathPrefix: "/api",
		APIKeys:    []string{"k1"},
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}
