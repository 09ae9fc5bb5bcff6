package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"skillup/core"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Store implements engine.Storage on Redis. Every write that must be
// insert-or-ignore runs as a Lua script so it is atomic across instances.
// Data structure:
//   - learner:{id}:points -> int64 balance
//   - learner:{id}:lessons -> hash lesson id -> completion unix nanos
//   - learner:{id}:badges -> hash badge id -> award unix nanos
//   - learner:{id}:courses -> hash course id -> enrollment unix nanos
//   - learner:{id}:tests -> set of submitted test ids
//   - learner:{id}:submissions -> list of JSON submissions
//   - badge:{id}:holders -> set of learner ids
//   - learners:active -> set of learner ids with any activity
type Store struct {
	client *redis.Client
}

// New creates a new Redis-backed storage with the provided configuration
func New(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

const activeLearnersKey = "learners:active"

func learnerKey(id core.LearnerID, suffix string) string {
	return fmt.Sprintf("learner:%d:%s", id, suffix)
}

func badgeHoldersKey(id core.BadgeID) string {
	return fmt.Sprintf("badge:%d:holders", id)
}

// insertOnceScript sets a hash field only if absent and, when it was set,
// accrues ARGV[3] points and marks the learner active.
// Returns {inserted, total}.
var insertOnceScript = redis.NewScript(`
	if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 0 then
		return {0, tonumber(redis.call('GET', KEYS[2]) or '0')}
	end
	local total = redis.call('INCRBY', KEYS[2], ARGV[3])
	redis.call('SADD', KEYS[3], ARGV[4])
	return {1, total}
`)

// awardOnceScript records a badge award if absent and indexes the holder.
var awardOnceScript = redis.NewScript(`
	if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 0 then
		return 0
	end
	redis.call('SADD', KEYS[2], ARGV[3])
	redis.call('SADD', KEYS[3], ARGV[3])
	return 1
`)

// wrap marks transport failures as core.ErrStoreUnavailable. Server replies
// such as an INCRBY overflow are returned as plain errors.
func wrap(op string, err error) error {
	var replyErr redis.Error
	if errors.As(err, &replyErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, core.ErrStoreUnavailable, err)
}

func (s *Store) AddPoints(ctx context.Context, learner core.LearnerID, delta int64) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.IncrBy(ctx, learnerKey(learner, "points"), delta)
		p.SAdd(ctx, activeLearnersKey, int64(learner))
		return nil
	})
	if err != nil {
		return 0, wrap("add points", err)
	}
	return incr.Val(), nil
}

func (s *Store) GetPoints(ctx context.Context, learner core.LearnerID) (int64, error) {
	v, err := s.client.Get(ctx, learnerKey(learner, "points")).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, wrap("get points", err)
	}
	return v, nil
}

func (s *Store) insertOnce(ctx context.Context, learner core.LearnerID, hash string, field int64, at time.Time, points int64) (bool, int64, error) {
	keys := []string{learnerKey(learner, hash), learnerKey(learner, "points"), activeLearnersKey}
	res, err := insertOnceScript.Run(ctx, s.client, keys, field, at.UnixNano(), points, int64(learner)).Int64Slice()
	if err != nil {
		return false, 0, err
	}
	if len(res) != 2 {
		return false, 0, errors.New("unexpected result from insert script")
	}
	return res[0] == 1, res[1], nil
}

func (s *Store) InsertCompletion(ctx context.Context, rec core.CompletionRecord, points int64) (bool, int64, error) {
	inserted, total, err := s.insertOnce(ctx, rec.LearnerID, "lessons", int64(rec.LessonID), rec.CompletedAt, points)
	if err != nil {
		return false, 0, wrap("insert completion", err)
	}
	return inserted, total, nil
}

func (s *Store) HasCompletion(ctx context.Context, learner core.LearnerID, lesson core.LessonID) (bool, error) {
	ok, err := s.client.HExists(ctx, learnerKey(learner, "lessons"), strconv.FormatInt(int64(lesson), 10)).Result()
	if err != nil {
		return false, wrap("has completion", err)
	}
	return ok, nil
}

func (s *Store) ListCompletions(ctx context.Context, learner core.LearnerID) ([]core.CompletionRecord, error) {
	entries, err := s.hashEntries(ctx, learnerKey(learner, "lessons"))
	if err != nil {
		return nil, wrap("list completions", err)
	}
	out := make([]core.CompletionRecord, len(entries))
	for i, e := range entries {
		out[i] = core.CompletionRecord{LearnerID: learner, LessonID: core.LessonID(e.id), CompletedAt: e.at}
	}
	return out, nil
}

func (s *Store) InsertAward(ctx context.Context, award core.BadgeAward) (bool, error) {
	keys := []string{learnerKey(award.LearnerID, "badges"), badgeHoldersKey(award.BadgeID), activeLearnersKey}
	n, err := awardOnceScript.Run(ctx, s.client, keys, int64(award.BadgeID), award.AwardedAt.UnixNano(), int64(award.LearnerID)).Int64()
	if err != nil {
		return false, wrap("insert award", err)
	}
	return n == 1, nil
}

func (s *Store) ListAwards(ctx context.Context, learner core.LearnerID) ([]core.BadgeAward, error) {
	entries, err := s.hashEntries(ctx, learnerKey(learner, "badges"))
	if err != nil {
		return nil, wrap("list awards", err)
	}
	out := make([]core.BadgeAward, len(entries))
	for i, e := range entries {
		out[i] = core.BadgeAward{LearnerID: learner, BadgeID: core.BadgeID(e.id), AwardedAt: e.at}
	}
	return out, nil
}

func (s *Store) CountAwards(ctx context.Context, badge core.BadgeID) (int64, error) {
	n, err := s.client.SCard(ctx, badgeHoldersKey(badge)).Result()
	if err != nil {
		return 0, wrap("count awards", err)
	}
	return n, nil
}

func (s *Store) InsertEnrollment(ctx context.Context, e core.Enrollment, points int64) (bool, int64, error) {
	inserted, total, err := s.insertOnce(ctx, e.LearnerID, "courses", int64(e.CourseID), e.EnrolledAt, points)
	if err != nil {
		return false, 0, wrap("insert enrollment", err)
	}
	return inserted, total, nil
}

func (s *Store) ListEnrollments(ctx context.Context, learner core.LearnerID) ([]core.Enrollment, error) {
	entries, err := s.hashEntries(ctx, learnerKey(learner, "courses"))
	if err != nil {
		return nil, wrap("list enrollments", err)
	}
	out := make([]core.Enrollment, len(entries))
	for i, e := range entries {
		out[i] = core.Enrollment{LearnerID: learner, CourseID: core.CourseID(e.id), EnrolledAt: e.at}
	}
	return out, nil
}

// InsertSubmission appends the submission and accrues its score in one MULTI block.
func (s *Store) InsertSubmission(ctx context.Context, sub core.TestSubmission) (int64, error) {
	data, err := json.Marshal(sub)
	if err != nil {
		return 0, err
	}
	var incr *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.IncrBy(ctx, learnerKey(sub.LearnerID, "points"), sub.Score)
		p.SAdd(ctx, learnerKey(sub.LearnerID, "tests"), int64(sub.TestID))
		p.RPush(ctx, learnerKey(sub.LearnerID, "submissions"), data)
		p.SAdd(ctx, activeLearnersKey, int64(sub.LearnerID))
		return nil
	})
	if err != nil {
		return 0, wrap("insert submission", err)
	}
	return incr.Val(), nil
}

func (s *Store) CountDistinctTests(ctx context.Context, learner core.LearnerID) (int64, error) {
	n, err := s.client.SCard(ctx, learnerKey(learner, "tests")).Result()
	if err != nil {
		return 0, wrap("count tests", err)
	}
	return n, nil
}

// ListSubmissions returns the learner's submissions in arrival order.
func (s *Store) ListSubmissions(ctx context.Context, learner core.LearnerID) ([]core.TestSubmission, error) {
	raw, err := s.client.LRange(ctx, learnerKey(learner, "submissions"), 0, -1).Result()
	if err != nil {
		return nil, wrap("list submissions", err)
	}
	out := make([]core.TestSubmission, 0, len(raw))
	for _, r := range raw {
		var sub core.TestSubmission
		if err := json.Unmarshal([]byte(r), &sub); err != nil {
			continue // skip corrupt entries
		}
		out = append(out, sub)
	}
	return out, nil
}

func (s *Store) ListActiveLearners(ctx context.Context) ([]core.LearnerID, error) {
	members, err := s.client.SMembers(ctx, activeLearnersKey).Result()
	if err != nil {
		return nil, wrap("list active learners", err)
	}
	out := make([]core.LearnerID, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, core.LearnerID(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

type hashEntry struct {
	id int64
	at time.Time
}

// hashEntries reads an id -> unix nanos hash sorted by id.
func (s *Store) hashEntries(ctx context.Context, key string) ([]hashEntry, error) {
	m, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make([]hashEntry, 0, len(m))
	for k, v := range m {
		id, err := strconv.ParseInt(strings.TrimSpace(k), 10, 64)
		if err != nil {
			continue
		}
		nanos, _ := strconv.ParseInt(v, 10, 64)
		out = append(out, hashEntry{id: id, at: time.Unix(0, nanos).UTC()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out, nil
}
