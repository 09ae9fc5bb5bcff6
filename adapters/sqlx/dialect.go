package sqlx

import "strings"

const (
	selectPoints = `SELECT points FROM learner_points WHERE learner_id = ?`

	postgresUpsertPoints = `INSERT INTO learner_points (learner_id, points, updated_at) VALUES (?, ?, ?)
ON CONFLICT (learner_id) DO UPDATE SET points = learner_points.points + EXCLUDED.points, updated_at = EXCLUDED.updated_at
RETURNING points`

	mysqlUpsertPoints = `INSERT INTO learner_points (learner_id, points, updated_at) VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE points = points + VALUES(points), updated_at = VALUES(updated_at)`

	insertCompletion = `INSERT INTO lesson_completions (learner_id, lesson_id, completed_at) VALUES (?, ?, ?)`
	insertAward      = `INSERT INTO user_badges (learner_id, badge_id, awarded_at) VALUES (?, ?, ?)`
	insertEnrollment = `INSERT INTO enrollments (learner_id, course_id, enrolled_at) VALUES (?, ?, ?)`
	insertSubmission = `INSERT INTO test_submissions (learner_id, test_id, score, submitted_at) VALUES (?, ?, ?, ?)`
)

// ignoring turns a plain INSERT into the driver's insert-or-ignore form keyed
// on the given conflict columns.
func (s *Store) ignoring(insert, conflict string) string {
	if s.driver == DriverMySQL {
		return strings.Replace(insert, "INSERT INTO", "INSERT IGNORE INTO", 1)
	}
	return insert + " ON CONFLICT (" + conflict + ") DO NOTHING"
}

func schemaFor(d Driver) []string {
	if d == DriverMySQL {
		return mysqlSchema
	}
	return postgresSchema
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS learner_points (
	learner_id BIGINT PRIMARY KEY,
	points BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS lesson_completions (
	learner_id BIGINT NOT NULL,
	lesson_id BIGINT NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (learner_id, lesson_id)
)`,
	`CREATE TABLE IF NOT EXISTS user_badges (
	learner_id BIGINT NOT NULL,
	badge_id BIGINT NOT NULL,
	awarded_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (learner_id, badge_id)
)`,
	`CREATE INDEX IF NOT EXISTS idx_user_badges_badge ON user_badges (badge_id)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
	learner_id BIGINT NOT NULL,
	course_id BIGINT NOT NULL,
	enrolled_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (learner_id, course_id)
)`,
	`CREATE TABLE IF NOT EXISTS test_submissions (
	id BIGSERIAL PRIMARY KEY,
	learner_id BIGINT NOT NULL,
	test_id BIGINT NOT NULL,
	score BIGINT NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_test_submissions_learner ON test_submissions (learner_id, test_id)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS learner_points (
	learner_id BIGINT PRIMARY KEY,
	points BIGINT NOT NULL DEFAULT 0,
	updated_at DATETIME(6) NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS lesson_completions (
	learner_id BIGINT NOT NULL,
	lesson_id BIGINT NOT NULL,
	completed_at DATETIME(6) NOT NULL,
	PRIMARY KEY (learner_id, lesson_id)
)`,
	`CREATE TABLE IF NOT EXISTS user_badges (
	learner_id BIGINT NOT NULL,
	badge_id BIGINT NOT NULL,
	awarded_at DATETIME(6) NOT NULL,
	PRIMARY KEY (learner_id, badge_id),
	INDEX idx_user_badges_badge (badge_id)
)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
	learner_id BIGINT NOT NULL,
	course_id BIGINT NOT NULL,
	enrolled_at DATETIME(6) NOT NULL,
	PRIMARY KEY (learner_id, course_id)
)`,
	`CREATE TABLE IF NOT EXISTS test_submissions (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	learner_id BIGINT NOT NULL,
	test_id BIGINT NOT NULL,
	score BIGINT NOT NULL,
	submitted_at DATETIME(6) NOT NULL,
	INDEX idx_test_submissions_learner (learner_id, test_id)
)`,
}
