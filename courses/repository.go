// Package courses is the gorm-backed read model of courses and lessons the
// progress engine consumes. Authoring lives elsewhere; the write helpers here
// exist for seeding and tests.
package courses

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"skillup/core"
)

// Config selects the course database.
type Config struct {
	Driver      string `mapstructure:"driver"` // postgres or sqlite
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// Repository implements engine.CourseReader over gorm.
type Repository struct {
	db *gorm.DB
}

// Open connects to the configured database.
func Open(cfg Config) (*Repository, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported course database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open course database: %w", err)
	}
	if cfg.Driver != "postgres" {
		// each sqlite connection to :memory: is a separate database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	r := NewRepository(db)
	if cfg.AutoMigrate {
		if err := r.Migrate(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func NewRepository(db *gorm.DB) *Repository { return &Repository{db: db} }

// Migrate creates or updates the course tables.
func (r *Repository) Migrate() error {
	if err := r.db.AutoMigrate(&CourseModel{}, &LessonModel{}); err != nil {
		return fmt.Errorf("migrate courses: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error, what string, id int64) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %d: %w", what, id, core.ErrNotFound)
	}
	return fmt.Errorf("get %s %d: %w", what, id, err)
}

func (r *Repository) GetCourse(ctx context.Context, id core.CourseID) (core.Course, error) {
	var m CourseModel
	if err := r.db.WithContext(ctx).First(&m, int64(id)).Error; err != nil {
		return core.Course{}, notFound(err, "course", int64(id))
	}
	return m.toCore(), nil
}

func (r *Repository) GetLesson(ctx context.Context, id core.LessonID) (core.Lesson, error) {
	var m LessonModel
	if err := r.db.WithContext(ctx).First(&m, int64(id)).Error; err != nil {
		return core.Lesson{}, notFound(err, "lesson", int64(id))
	}
	return m.toCore(), nil
}

func (r *Repository) GetLessons(ctx context.Context, ids []core.LessonID) ([]core.Lesson, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]int64, len(ids))
	for i, id := range ids {
		raw[i] = int64(id)
	}
	var rows []LessonModel
	if err := r.db.WithContext(ctx).Where("id IN ?", raw).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get lessons: %w", err)
	}
	out := make([]core.Lesson, len(rows))
	for i, m := range rows {
		out[i] = m.toCore()
	}
	return out, nil
}

func (r *Repository) GetCourseLessonIDs(ctx context.Context, course core.CourseID) ([]core.LessonID, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&CourseModel{}).Where("id = ?", int64(course)).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("get course %d: %w", course, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("course %d: %w", course, core.ErrNotFound)
	}
	var raw []int64
	err := r.db.WithContext(ctx).Model(&LessonModel{}).
		Where("course_id = ?", int64(course)).
		Order("order_index, id").
		Pluck("id", &raw).Error
	if err != nil {
		return nil, fmt.Errorf("list lessons of course %d: %w", course, err)
	}
	out := make([]core.LessonID, len(raw))
	for i, id := range raw {
		out[i] = core.LessonID(id)
	}
	return out, nil
}

// NextLesson returns the lesson following after in its course by order index.
func (r *Repository) NextLesson(ctx context.Context, after core.Lesson) (core.Lesson, bool, error) {
	var m LessonModel
	err := r.db.WithContext(ctx).
		Where("course_id = ? AND order_index > ?", int64(after.CourseID), after.OrderIndex).
		Order("order_index, id").
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.Lesson{}, false, nil
	}
	if err != nil {
		return core.Lesson{}, false, fmt.Errorf("next lesson after %d: %w", after.ID, err)
	}
	return m.toCore(), true, nil
}

// ListCourses returns every course ordered by id.
func (r *Repository) ListCourses(ctx context.Context) ([]core.Course, error) {
	var rows []CourseModel
	if err := r.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	out := make([]core.Course, len(rows))
	for i, m := range rows {
		out[i] = m.toCore()
	}
	return out, nil
}

// CreateCourse inserts a course with its lessons in one transaction. Zero ids
// are assigned by the database.
func (r *Repository) CreateCourse(ctx context.Context, course CourseModel) (CourseModel, error) {
	if course.Title == "" {
		return CourseModel{}, fmt.Errorf("%w: course title is required", core.ErrInvalidInput)
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&course).Error
	})
	if err != nil {
		return CourseModel{}, fmt.Errorf("create course: %w", err)
	}
	return course, nil
}
