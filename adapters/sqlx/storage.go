package sqlx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"skillup/core"
)

// Driver names a supported database/sql driver.
type Driver string

const (
	DriverPostgres Driver = "postgres" // lib/pq
	DriverPgx      Driver = "pgx"      // jackc/pgx stdlib
	DriverMySQL    Driver = "mysql"
)

// Config holds SQL connection settings.
type Config struct {
	Driver          Driver        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DefaultConfig returns pool defaults for the driver.
func DefaultConfig(driver Driver) Config {
	return Config{
		Driver:          driver,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		AutoMigrate:     true,
	}
}

// Store implements engine.Storage on PostgreSQL or MySQL. Completion, award
// and enrollment uniqueness is enforced by primary keys; each insert-or-ignore
// and its point accrual share one transaction.
type Store struct {
	db     *sqlx.DB
	driver Driver
}

// New opens and pings the database and applies the schema when AutoMigrate is set.
func New(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("sql dsn is required")
	}
	if !cfg.Driver.valid() {
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}
	db, err := sqlx.Open(string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}

	s := NewWithDB(db, cfg.Driver)
	if cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewWithDB wraps an existing handle (useful for testing).
func NewWithDB(db *sqlx.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver}
}

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for health checks.
func (s *Store) DB() *sqlx.DB { return s.db }

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schemaFor(s.driver) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return classify("migrate", err)
		}
	}
	return nil
}

func (d Driver) valid() bool {
	switch d {
	case DriverPostgres, DriverPgx, DriverMySQL:
		return true
	}
	return false
}

func (s *Store) q(query string) string { return s.db.Rebind(query) }

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// accrue upserts the balance row and returns the new total; tx must be open.
func (s *Store) accrue(ctx context.Context, tx *sqlx.Tx, learner core.LearnerID, delta int64) (int64, error) {
	now := time.Now().UTC()
	var total int64
	if s.driver == DriverMySQL {
		if _, err := tx.ExecContext(ctx, mysqlUpsertPoints, learner, delta, now); err != nil {
			return 0, err
		}
		err := tx.GetContext(ctx, &total, selectPoints, learner)
		return total, err
	}
	err := tx.GetContext(ctx, &total, s.q(postgresUpsertPoints), learner, delta, now)
	return total, err
}

func (s *Store) currentPoints(ctx context.Context, tx *sqlx.Tx, learner core.LearnerID) (int64, error) {
	var total int64
	err := tx.GetContext(ctx, &total, s.q(selectPoints), learner)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return total, err
}

// insertOnce runs an insert-or-ignore and, when a row was written, accrues points.
func (s *Store) insertOnce(ctx context.Context, op, insert string, learner core.LearnerID, points int64, args ...any) (bool, int64, error) {
	var (
		inserted bool
		total    int64
	)
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(insert), args...)
		if err != nil {
			if isUniqueViolation(err) {
				return errLostRace
			}
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			total, err = s.currentPoints(ctx, tx, learner)
			return err
		}
		inserted = true
		total, err = s.accrue(ctx, tx, learner, points)
		return err
	})
	if errors.Is(err, errLostRace) {
		total, err = s.GetPoints(ctx, learner)
		return false, total, err
	}
	if err != nil {
		return false, 0, classify(op, err)
	}
	return inserted, total, nil
}

var errLostRace = errors.New("lost uniqueness race")

func (s *Store) AddPoints(ctx context.Context, learner core.LearnerID, delta int64) (int64, error) {
	var total int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		total, err = s.accrue(ctx, tx, learner, delta)
		return err
	})
	if err != nil {
		return 0, classify("add points", err)
	}
	return total, nil
}

func (s *Store) GetPoints(ctx context.Context, learner core.LearnerID) (int64, error) {
	var total int64
	err := s.db.GetContext(ctx, &total, s.q(selectPoints), learner)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, classify("get points", err)
	}
	return total, nil
}

func (s *Store) InsertCompletion(ctx context.Context, rec core.CompletionRecord, points int64) (bool, int64, error) {
	return s.insertOnce(ctx, "insert completion", s.ignoring(insertCompletion, "learner_id, lesson_id"),
		rec.LearnerID, points, rec.LearnerID, rec.LessonID, rec.CompletedAt)
}

func (s *Store) HasCompletion(ctx context.Context, learner core.LearnerID, lesson core.LessonID) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.q(`SELECT COUNT(*) FROM lesson_completions WHERE learner_id = ? AND lesson_id = ?`), learner, lesson)
	if err != nil {
		return false, classify("has completion", err)
	}
	return n > 0, nil
}

func (s *Store) ListCompletions(ctx context.Context, learner core.LearnerID) ([]core.CompletionRecord, error) {
	var rows []struct {
		LessonID    int64     `db:"lesson_id"`
		CompletedAt time.Time `db:"completed_at"`
	}
	err := s.db.SelectContext(ctx, &rows, s.q(`SELECT lesson_id, completed_at FROM lesson_completions WHERE learner_id = ? ORDER BY lesson_id`), learner)
	if err != nil {
		return nil, classify("list completions", err)
	}
	out := make([]core.CompletionRecord, len(rows))
	for i, r := range rows {
		out[i] = core.CompletionRecord{LearnerID: learner, LessonID: core.LessonID(r.LessonID), CompletedAt: r.CompletedAt.UTC()}
	}
	return out, nil
}

func (s *Store) InsertAward(ctx context.Context, award core.BadgeAward) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(s.ignoring(insertAward, "learner_id, badge_id")), award.LearnerID, award.BadgeID, award.AwardedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, classify("insert award", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify("insert award", err)
	}
	return n > 0, nil
}

func (s *Store) ListAwards(ctx context.Context, learner core.LearnerID) ([]core.BadgeAward, error) {
	var rows []struct {
		BadgeID   int64     `db:"badge_id"`
		AwardedAt time.Time `db:"awarded_at"`
	}
	err := s.db.SelectContext(ctx, &rows, s.q(`SELECT badge_id, awarded_at FROM user_badges WHERE learner_id = ? ORDER BY badge_id`), learner)
	if err != nil {
		return nil, classify("list awards", err)
	}
	out := make([]core.BadgeAward, len(rows))
	for i, r := range rows {
		out[i] = core.BadgeAward{LearnerID: learner, BadgeID: core.BadgeID(r.BadgeID), AwardedAt: r.AwardedAt.UTC()}
	}
	return out, nil
}

func (s *Store) CountAwards(ctx context.Context, badge core.BadgeID) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, s.q(`SELECT COUNT(*) FROM user_badges WHERE badge_id = ?`), badge); err != nil {
		return 0, classify("count awards", err)
	}
	return n, nil
}

func (s *Store) InsertEnrollment(ctx context.Context, e core.Enrollment, points int64) (bool, int64, error) {
	return s.insertOnce(ctx, "insert enrollment", s.ignoring(insertEnrollment, "learner_id, course_id"),
		e.LearnerID, points, e.LearnerID, e.CourseID, e.EnrolledAt)
}

func (s *Store) ListEnrollments(ctx context.Context, learner core.LearnerID) ([]core.Enrollment, error) {
	var rows []struct {
		CourseID   int64     `db:"course_id"`
		EnrolledAt time.Time `db:"enrolled_at"`
	}
	err := s.db.SelectContext(ctx, &rows, s.q(`SELECT course_id, enrolled_at FROM enrollments WHERE learner_id = ? ORDER BY course_id`), learner)
	if err != nil {
		return nil, classify("list enrollments", err)
	}
	out := make([]core.Enrollment, len(rows))
	for i, r := range rows {
		out[i] = core.Enrollment{LearnerID: learner, CourseID: core.CourseID(r.CourseID), EnrolledAt: r.EnrolledAt.UTC()}
	}
	return out, nil
}

func (s *Store) InsertSubmission(ctx context.Context, sub core.TestSubmission) (int64, error) {
	var total int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(insertSubmission), sub.LearnerID, sub.TestID, sub.Score, sub.SubmittedAt); err != nil {
			return err
		}
		var err error
		total, err = s.accrue(ctx, tx, sub.LearnerID, sub.Score)
		return err
	})
	if err != nil {
		return 0, classify("insert submission", err)
	}
	return total, nil
}

func (s *Store) CountDistinctTests(ctx context.Context, learner core.LearnerID) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, s.q(`SELECT COUNT(DISTINCT test_id) FROM test_submissions WHERE learner_id = ?`), learner); err != nil {
		return 0, classify("count tests", err)
	}
	return n, nil
}

// ListSubmissions returns the learner's submissions in arrival order.
func (s *Store) ListSubmissions(ctx context.Context, learner core.LearnerID) ([]core.TestSubmission, error) {
	var rows []struct {
		TestID      int64     `db:"test_id"`
		Score       int64     `db:"score"`
		SubmittedAt time.Time `db:"submitted_at"`
	}
	err := s.db.SelectContext(ctx, &rows, s.q(`SELECT test_id, score, submitted_at FROM test_submissions WHERE learner_id = ? ORDER BY id`), learner)
	if err != nil {
		return nil, classify("list submissions", err)
	}
	out := make([]core.TestSubmission, len(rows))
	for i, r := range rows {
		out[i] = core.TestSubmission{LearnerID: learner, TestID: core.TestID(r.TestID), Score: r.Score, SubmittedAt: r.SubmittedAt.UTC()}
	}
	return out, nil
}

func (s *Store) ListActiveLearners(ctx context.Context) ([]core.LearnerID, error) {
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, `SELECT learner_id FROM learner_points ORDER BY learner_id`); err != nil {
		return nil, classify("list active learners", err)
	}
	out := make([]core.LearnerID, len(ids))
	for i, id := range ids {
		out[i] = core.LearnerID(id)
	}
	return out, nil
}
