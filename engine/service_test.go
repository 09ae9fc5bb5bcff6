package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mem "skillup/adapters/memory"
	"skillup/core"
)

func TestMarkCompletedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	lessons := seedCourse(f.courses, 1, 3)

	res, err := f.svc.OnLessonCompletionRequested(ctx, 1, lessons[0])
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.True(t, res.NewlyCompleted)

	res, err = f.svc.OnLessonCompletionRequested(ctx, 1, lessons[0])
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.False(t, res.NewlyCompleted)

	records, err := f.store.ListCompletions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	pts, err := f.svc.GetPoints(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, core.LessonCompletionPoints, pts)
}

func TestCompletionReturnsNextLesson(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	lessons := seedCourse(f.courses, 1, 2)

	res, err := f.svc.OnLessonCompletionRequested(ctx, 1, lessons[0])
	require.NoError(t, err)
	require.NotNil(t, res.NextLesson)
	assert.Equal(t, lessons[1], res.NextLesson.ID)

	res, err = f.svc.OnLessonCompletionRequested(ctx, 1, lessons[1])
	require.NoError(t, err)
	assert.Nil(t, res.NextLesson)
}

func TestUnknownLessonNotAccepted(t *testing.T) {
	f := newFixture()
	res, err := f.svc.OnLessonCompletionRequested(context.Background(), 1, 404)
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.False(t, res.NewlyCompleted)
}

func TestInvalidLearnerRejected(t *testing.T) {
	f := newFixture()
	_, err := f.svc.OnLessonCompletionRequested(context.Background(), 0, 1)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = f.svc.OnTestSubmitted(context.Background(), 1, 1, -5)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

// Rookie needs 100 points: the 20th completion at 5 points earns it.
func TestRookieAwardedWhenBalanceFirstReachesThreshold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(badge(1, "Rookie", core.PointsThreshold, 100))
	lessons := seedCourse(f.courses, 1, 25)

	for i := 0; i < 20; i++ {
		res, err := f.svc.OnLessonCompletionRequested(ctx, 7, lessons[i])
		require.NoError(t, err)
		if i < 19 {
			assert.Empty(t, res.Awards, "completion %d", i+1)
			continue
		}
		require.Len(t, res.Awards, 1)
		assert.Equal(t, core.BadgeID(1), res.Awards[0].BadgeID)
	}

	res, err := f.svc.OnLessonCompletionRequested(ctx, 7, lessons[20])
	require.NoError(t, err)
	assert.Empty(t, res.Awards)
}

func TestCourseFullyCompletedOnlyAfterDistinctLessons(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	lessons := seedCourse(f.courses, 3, 2)
	agg := NewProgressAggregator(f.store, f.courses)

	for i := 0; i < 2; i++ {
		_, err := f.svc.OnLessonCompletionRequested(ctx, 1, lessons[0])
		require.NoError(t, err)
		done, err := agg.IsCourseFullyCompleted(ctx, 1, 3)
		require.NoError(t, err)
		assert.False(t, done)
	}

	_, err := f.svc.OnLessonCompletionRequested(ctx, 1, lessons[1])
	require.NoError(t, err)
	done, err := agg.IsCourseFullyCompleted(ctx, 1, 3)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestConcurrentCompletionRequests(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	lessons := seedCourse(f.courses, 1, 1)

	const n = 16
	var newly int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.OnLessonCompletionRequested(ctx, 5, lessons[0])
			assert.NoError(t, err)
			if res.NewlyCompleted {
				atomic.AddInt32(&newly, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), newly)
	records, err := f.store.ListCompletions(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	pts, err := f.svc.GetPoints(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, core.LessonCompletionPoints, pts)
}

func TestProgressMonotonicAndBounded(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	lessons := seedCourse(f.courses, 2, 3)

	last := -1.0
	for _, id := range append(lessons, lessons[0]) {
		_, err := f.svc.OnLessonCompletionRequested(ctx, 1, id)
		require.NoError(t, err)
		p, err := f.svc.GetCourseProgress(ctx, 1, 2)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p.Percent, last)
		assert.LessOrEqual(t, p.Percent, 100.0)
		last = p.Percent
	}
	assert.Equal(t, 100.0, last)
}

func TestProgressEmptyCourse(t *testing.T) {
	f := newFixture()
	seedCourse(f.courses, 9, 0)
	p, err := f.svc.GetCourseProgress(context.Background(), 1, 9)
	require.NoError(t, err)
	assert.Zero(t, p.Percent)
	assert.Zero(t, p.Total)

	_, err = f.svc.GetCourseProgress(context.Background(), 1, 10)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestEnrollmentBonusOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(badge(1, "Joiner", core.PointsThreshold, 10))
	seedCourse(f.courses, 1, 1)

	res, err := f.svc.OnEnrollment(ctx, 2, 1)
	require.NoError(t, err)
	assert.True(t, res.NewlyEnrolled)
	require.Len(t, res.Awards, 1)

	res, err = f.svc.OnEnrollment(ctx, 2, 1)
	require.NoError(t, err)
	assert.False(t, res.NewlyEnrolled)
	assert.Empty(t, res.Awards)

	pts, err := f.svc.GetPoints(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, core.EnrollmentPoints, pts)
}

func TestEnrollmentRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.courses.PutCourse(core.Course{ID: 1, Title: "Own", TeacherID: 8})

	_, err := f.svc.OnEnrollment(ctx, 8, 1)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = f.svc.OnEnrollment(ctx, 8, 2)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestTestSubmissionAwardsByDistinctTests(t *testing.T) {
	ctx := context.Background()
	f := newFixture(badge(1, "Examiner", core.TestsCompletedThreshold, 2))

	awards, err := f.svc.OnTestSubmitted(ctx, 3, 1, 40)
	require.NoError(t, err)
	assert.Empty(t, awards)
	awards, err = f.svc.OnTestSubmitted(ctx, 3, 1, 50)
	require.NoError(t, err)
	assert.Empty(t, awards, "resubmitting the same test does not count twice")
	awards, err = f.svc.OnTestSubmitted(ctx, 3, 2, 10)
	require.NoError(t, err)
	require.Len(t, awards, 1)

	pts, err := f.svc.GetPoints(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(100), pts)
}

func TestListTestSubmissions(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.svc.OnTestSubmitted(ctx, 3, 1, 40)
	require.NoError(t, err)
	_, err = f.svc.OnTestSubmitted(ctx, 3, 2, 70)
	require.NoError(t, err)

	subs, err := f.svc.ListTestSubmissions(ctx, 3)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, core.TestID(1), subs[0].TestID)
	assert.Equal(t, int64(70), subs[1].Score)

	subs, err = f.svc.ListTestSubmissions(ctx, 4)
	require.NoError(t, err)
	assert.Empty(t, subs)

	_, err = f.svc.ListTestSubmissions(ctx, 0)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestListTestSubmissionsWithoutHistory(t *testing.T) {
	svc := NewProgressService(mem.New(), mem.NewCourses(), &staticCatalog{}, nil, WithTestCollaborator(&countingTests{}))
	subs, err := svc.ListTestSubmissions(context.Background(), 1)
	require.NoError(t, err)
	assert.NotNil(t, subs)
	assert.Empty(t, subs)
}

func TestCoursesCompletedBadge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(badge(4, "Graduate", core.CoursesCompletedThreshold, 1))
	lessons := seedCourse(f.courses, 1, 2)
	seedCourse(f.courses, 2, 0)

	res, err := f.svc.OnLessonCompletionRequested(ctx, 1, lessons[0])
	require.NoError(t, err)
	assert.Empty(t, res.Awards)
	res, err = f.svc.OnLessonCompletionRequested(ctx, 1, lessons[1])
	require.NoError(t, err)
	require.Len(t, res.Awards, 1)
	assert.Equal(t, core.BadgeID(4), res.Awards[0].BadgeID)
}

func TestLearnerSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(badge(1, "Starter", core.PointsThreshold, 5))
	a := seedCourse(f.courses, 1, 2)
	seedCourse(f.courses, 2, 4)

	_, err := f.svc.OnEnrollment(ctx, 1, 2)
	require.NoError(t, err)
	_, err = f.svc.OnLessonCompletionRequested(ctx, 1, a[0])
	require.NoError(t, err)

	sum, err := f.svc.GetLearnerSummary(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(15), sum.Points)
	require.Len(t, sum.Badges, 1)
	assert.Equal(t, "Starter", sum.Badges[0].Name)
	require.Len(t, sum.Courses, 2)
	assert.Equal(t, core.CourseID(1), sum.Courses[0].CourseID)
	assert.Equal(t, 50.0, sum.Courses[0].Percent)
	assert.Equal(t, core.CourseID(2), sum.Courses[1].CourseID)
	assert.Zero(t, sum.Courses[1].Percent)
}

func TestEventsPublished(t *testing.T) {
	ctx := context.Background()
	f := newFixture(badge(1, "Starter", core.PointsThreshold, 5))
	lessons := seedCourse(f.courses, 1, 1)

	seen := map[core.EventType]int{}
	for _, typ := range core.EventTypes {
		typ := typ
		f.svc.Subscribe(typ, func(context.Context, core.Event) { seen[typ]++ })
	}

	_, err := f.svc.OnLessonCompletionRequested(ctx, 1, lessons[0])
	require.NoError(t, err)
	_, err = f.svc.OnLessonCompletionRequested(ctx, 1, lessons[0])
	require.NoError(t, err)

	assert.Equal(t, 1, seen[core.EventLessonCompleted])
	assert.Equal(t, 1, seen[core.EventPointsAdded])
	assert.Equal(t, 1, seen[core.EventBadgeAwarded])
}
