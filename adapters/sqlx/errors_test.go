package sqlx

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"skillup/core"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"pq unique", &pq.Error{Code: "23505"}, core.ErrConflict},
		{"pgx unique", &pgconn.PgError{Code: "23505"}, core.ErrConflict},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, core.ErrConflict},
		{"pq connection failure", &pq.Error{Code: "08006"}, core.ErrStoreUnavailable},
		{"pgx connection failure", &pgconn.PgError{Code: "08001"}, core.ErrStoreUnavailable},
		{"mysql invalid conn", fmt.Errorf("exec: %w", mysql.ErrInvalidConn), core.ErrStoreUnavailable},
		{"deadline", context.DeadlineExceeded, core.ErrStoreUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify("op", tt.err), tt.want)
		})
	}
}

func TestClassifyPlainError(t *testing.T) {
	err := classify("op", &pq.Error{Code: "22003"})
	assert.False(t, errors.Is(err, core.ErrStoreUnavailable))
	assert.False(t, errors.Is(err, core.ErrConflict))
	assert.Nil(t, classify("op", nil))
}

func TestIgnoring(t *testing.T) {
	pg := &Store{driver: DriverPgx}
	assert.Equal(t, insertAward+" ON CONFLICT (learner_id, badge_id) DO NOTHING", pg.ignoring(insertAward, "learner_id, badge_id"))

	my := &Store{driver: DriverMySQL}
	assert.Contains(t, my.ignoring(insertAward, "learner_id, badge_id"), "INSERT IGNORE INTO user_badges")
}
