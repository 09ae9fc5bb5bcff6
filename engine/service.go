package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"skillup/core"
)

// PointsPolicy holds the fixed accrual amounts for trigger events.
type PointsPolicy struct {
	LessonCompletion int64
	Enrollment       int64
}

// DefaultPointsPolicy returns the standard accrual amounts.
func DefaultPointsPolicy() PointsPolicy {
	return PointsPolicy{LessonCompletion: core.LessonCompletionPoints, Enrollment: core.EnrollmentPoints}
}

// ServiceOption customizes a ProgressService.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	points PointsPolicy
	tests  TestCollaborator
	logger *slog.Logger
}

// WithPointsPolicy overrides the accrual amounts.
func WithPointsPolicy(p PointsPolicy) ServiceOption {
	return func(o *serviceOptions) { o.points = p }
}

// WithTestCollaborator replaces the default TestRecorder.
func WithTestCollaborator(t TestCollaborator) ServiceOption {
	return func(o *serviceOptions) { o.tests = t }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(o *serviceOptions) { o.logger = l }
}

// ProgressService orchestrates the ledger, tracker, aggregator and evaluator in
// response to trigger events and serves the learner read queries.
type ProgressService struct {
	storage    Storage
	courses    CourseReader
	catalog    BadgeCatalog
	bus        *EventBus
	ledger     *Ledger
	tracker    *CompletionTracker
	aggregator *ProgressAggregator
	evaluator  *BadgeEvaluator
	tests      TestCollaborator
	points     PointsPolicy
	log        *slog.Logger
	now        func() time.Time
}

func NewProgressService(storage Storage, courses CourseReader, catalog BadgeCatalog, bus *EventBus, opts ...ServiceOption) *ProgressService {
	if storage == nil || courses == nil || catalog == nil {
		panic("NewProgressService requires non-nil storage, courses, and catalog")
	}
	o := serviceOptions{points: DefaultPointsPolicy()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	bus.SetLogger(o.logger)
	ledger := NewLedger(storage, bus)
	if o.tests == nil {
		o.tests = NewTestRecorder(storage, ledger, bus)
	}
	aggregator := NewProgressAggregator(storage, courses)
	return &ProgressService{
		storage:    storage,
		courses:    courses,
		catalog:    catalog,
		bus:        bus,
		ledger:     ledger,
		tracker:    NewCompletionTracker(storage, courses, ledger, bus, o.points.LessonCompletion),
		aggregator: aggregator,
		evaluator:  NewBadgeEvaluator(catalog, storage, ledger, o.tests, aggregator, bus),
		tests:      o.tests,
		points:     o.points,
		log:        o.logger.With("component", "progress_service"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// EnrollmentResult is returned by OnEnrollment.
type EnrollmentResult struct {
	CourseID      core.CourseID     `json:"course_id"`
	NewlyEnrolled bool              `json:"newly_enrolled"`
	Awards        []core.BadgeAward `json:"awards"`
}

// CompletionResult is returned by OnLessonCompletionRequested.
type CompletionResult struct {
	Accepted       bool              `json:"accepted"`
	NewlyCompleted bool              `json:"newly_completed"`
	NextLesson     *core.Lesson      `json:"next_lesson,omitempty"`
	Awards         []core.BadgeAward `json:"awards"`
}

// BadgeView is an owned badge with its catalog definition.
type BadgeView struct {
	core.BadgeDefinition
	AwardedAt time.Time `json:"awarded_at"`
}

// LearnerSummary is the dashboard read model of one learner.
type LearnerSummary struct {
	LearnerID core.LearnerID        `json:"learner_id"`
	Points    int64                 `json:"points"`
	Badges    []BadgeView           `json:"badges"`
	Courses   []core.CourseProgress `json:"courses"`
}

// Ledger exposes the point ledger.
func (s *ProgressService) Ledger() *Ledger { return s.ledger }

// Evaluator exposes the badge evaluator, e.g. for a Reconciler.
func (s *ProgressService) Evaluator() *BadgeEvaluator { return s.evaluator }

// Storage exposes the underlying store.
func (s *ProgressService) Storage() Storage { return s.storage }

// Subscribe registers a handler on the service's event bus.
func (s *ProgressService) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	if s.bus == nil {
		return func() {}
	}
	return s.bus.Subscribe(typ, handler)
}

// EventStats reports event bus delivery counters.
func (s *ProgressService) EventStats() BusStats { return s.bus.Stats() }

// Close delivers queued events and stops the event bus workers.
func (s *ProgressService) Close() { s.bus.Close() }

// OnEnrollment records the enrollment, accrues the enrollment bonus for a new
// enrollment and re-evaluates badges. Fails with core.ErrNotFound for an
// unknown course.
func (s *ProgressService) OnEnrollment(ctx context.Context, learner core.LearnerID, courseID core.CourseID) (EnrollmentResult, error) {
	if err := validLearner(learner); err != nil {
		return EnrollmentResult{}, err
	}
	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		return EnrollmentResult{}, err
	}
	if course.TeacherID != 0 && course.TeacherID == learner {
		return EnrollmentResult{}, fmt.Errorf("%w: teachers cannot enroll in their own course", core.ErrInvalidInput)
	}
	res := EnrollmentResult{CourseID: courseID}
	e := core.Enrollment{LearnerID: learner, CourseID: courseID, EnrolledAt: s.now()}
	inserted, total, err := s.storage.InsertEnrollment(ctx, e, s.points.Enrollment)
	if err != nil {
		return res, err
	}
	if inserted {
		res.NewlyEnrolled = true
		s.ledger.accrued(ctx, learner, s.points.Enrollment, total)
		s.bus.Publish(ctx, core.NewEnrolled(learner, courseID))
	}
	res.Awards, err = s.evaluator.EvaluateAndAward(ctx, learner)
	return res, err
}

// OnLessonCompletionRequested marks the lesson complete and, when the
// completion is new, re-evaluates badges. Accepted is false only when the
// lesson does not exist.
func (s *ProgressService) OnLessonCompletionRequested(ctx context.Context, learner core.LearnerID, lessonID core.LessonID) (CompletionResult, error) {
	if err := validLearner(learner); err != nil {
		return CompletionResult{}, err
	}
	lesson, err := s.courses.GetLesson(ctx, lessonID)
	if err != nil {
		if isNotFound(err) {
			return CompletionResult{Accepted: false}, nil
		}
		return CompletionResult{}, err
	}
	res := CompletionResult{Accepted: true}
	res.NewlyCompleted, err = s.tracker.MarkCompleted(ctx, learner, lesson)
	if err != nil {
		return res, err
	}
	if next, ok, err := s.courses.NextLesson(ctx, lesson); err != nil {
		s.log.Warn("next lesson lookup failed", "lesson_id", lesson.ID, "error", err)
	} else if ok {
		res.NextLesson = &next
	}
	if !res.NewlyCompleted {
		return res, nil
	}
	res.Awards, err = s.evaluator.EvaluateAndAward(ctx, learner)
	return res, err
}

// OnTestSubmitted hands the scored submission to the test collaborator and,
// once it is committed, re-evaluates badges.
func (s *ProgressService) OnTestSubmitted(ctx context.Context, learner core.LearnerID, test core.TestID, score int64) ([]core.BadgeAward, error) {
	if err := validLearner(learner); err != nil {
		return nil, err
	}
	if score < 0 {
		return nil, fmt.Errorf("%w: score must be >= 0", core.ErrInvalidInput)
	}
	if err := s.tests.RecordSubmission(ctx, learner, test, score); err != nil {
		return nil, err
	}
	return s.evaluator.EvaluateAndAward(ctx, learner)
}

// ListTestSubmissions returns the learner's scored submissions. A test
// collaborator that keeps no history yields an empty list.
func (s *ProgressService) ListTestSubmissions(ctx context.Context, learner core.LearnerID) ([]core.TestSubmission, error) {
	if err := validLearner(learner); err != nil {
		return nil, err
	}
	lister, ok := s.tests.(SubmissionLister)
	if !ok {
		return []core.TestSubmission{}, nil
	}
	subs, err := lister.ListSubmissions(ctx, learner)
	if err != nil {
		return nil, err
	}
	if subs == nil {
		subs = []core.TestSubmission{}
	}
	return subs, nil
}

// EvaluateAndAward re-runs badge evaluation for the learner.
func (s *ProgressService) EvaluateAndAward(ctx context.Context, learner core.LearnerID) ([]core.BadgeAward, error) {
	return s.evaluator.EvaluateAndAward(ctx, learner)
}

// GetPoints returns the learner's balance.
func (s *ProgressService) GetPoints(ctx context.Context, learner core.LearnerID) (int64, error) {
	return s.ledger.GetPoints(ctx, learner)
}

// GetBadges returns the learner's badges, oldest first.
func (s *ProgressService) GetBadges(ctx context.Context, learner core.LearnerID) ([]BadgeView, error) {
	awards, err := s.storage.ListAwards(ctx, learner)
	if err != nil {
		return nil, err
	}
	defs, err := s.catalog.ListBadgeDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[core.BadgeID]core.BadgeDefinition, len(defs))
	for _, d := range defs {
		byID[d.ID] = d
	}
	out := make([]BadgeView, 0, len(awards))
	for _, a := range awards {
		def, ok := byID[a.BadgeID]
		if !ok {
			def = core.BadgeDefinition{ID: a.BadgeID}
		}
		out = append(out, BadgeView{BadgeDefinition: def, AwardedAt: a.AwardedAt})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AwardedAt.Equal(out[j].AwardedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].AwardedAt.Before(out[j].AwardedAt)
	})
	return out, nil
}

// GetCourseProgress returns the learner's progress in one course.
func (s *ProgressService) GetCourseProgress(ctx context.Context, learner core.LearnerID, course core.CourseID) (core.CourseProgress, error) {
	return s.aggregator.GetCourseProgress(ctx, learner, course)
}

// IsLessonCompleted reports the completion status of one lesson.
func (s *ProgressService) IsLessonCompleted(ctx context.Context, learner core.LearnerID, lesson core.LessonID) (bool, error) {
	return s.tracker.IsCompleted(ctx, learner, lesson)
}

// ListCompletedLessons returns the learner's completion records in a course.
func (s *ProgressService) ListCompletedLessons(ctx context.Context, learner core.LearnerID, course core.CourseID) ([]core.CompletionRecord, error) {
	return s.tracker.ListCompleted(ctx, learner, course)
}

// GetLearnerSummary returns points, badges and per-course progress for every
// course the learner is enrolled in or has completion activity in.
func (s *ProgressService) GetLearnerSummary(ctx context.Context, learner core.LearnerID) (LearnerSummary, error) {
	sum := LearnerSummary{LearnerID: learner}
	var err error
	if sum.Points, err = s.ledger.GetPoints(ctx, learner); err != nil {
		return sum, err
	}
	if sum.Badges, err = s.GetBadges(ctx, learner); err != nil {
		return sum, err
	}

	enrollments, err := s.storage.ListEnrollments(ctx, learner)
	if err != nil {
		return sum, err
	}
	active, err := s.aggregator.ActiveCourses(ctx, learner)
	if err != nil {
		return sum, err
	}
	seen := make(map[core.CourseID]struct{})
	ids := make([]core.CourseID, 0, len(enrollments)+len(active))
	for _, e := range enrollments {
		ids = append(ids, e.CourseID)
	}
	ids = append(ids, active...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	sum.Courses = make([]core.CourseProgress, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		p, err := s.aggregator.GetCourseProgress(ctx, learner, id)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return sum, err
		}
		if course, err := s.courses.GetCourse(ctx, id); err == nil {
			p.Title = course.Title
		}
		sum.Courses = append(sum.Courses, p)
	}
	return sum, nil
}

func validLearner(id core.LearnerID) error {
	if err := core.ValidateLearnerID(id); err != nil {
		return errors.Join(core.ErrInvalidInput, err)
	}
	return nil
}
