package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"skillup/core"
	"skillup/engine"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the SkillUp progress HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithLearner acts as the given learner on the /me routes.
func WithLearner(id core.LearnerID) Option {
	return WithHeader("X-Learner-ID", strconv.FormatInt(int64(id), 10))
}

// WithAPIKey adds an X-API-Key header for the admin routes.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to every call.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// Health probes /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	err := c.do(ctx, http.MethodGet, "/healthz", nil, &hs)
	return hs, err
}

// Enroll enrolls the learner in a course.
func (c *Client) Enroll(ctx context.Context, course core.CourseID) (engine.EnrollmentResult, error) {
	var res engine.EnrollmentResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/me/courses/%d/enroll", course), nil, &res)
	return res, err
}

// CompleteLesson marks a lesson complete. Completing a lesson twice is not an error.
func (c *Client) CompleteLesson(ctx context.Context, lesson core.LessonID) (engine.CompletionResult, error) {
	var res engine.CompletionResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/me/lessons/%d/complete", lesson), nil, &res)
	return res, err
}

// IsLessonCompleted reports whether the learner finished a lesson.
func (c *Client) IsLessonCompleted(ctx context.Context, lesson core.LessonID) (bool, error) {
	var body struct {
		Completed bool `json:"completed"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/me/lessons/%d", lesson), nil, &body)
	return body.Completed, err
}

// SubmitTest records a scored test attempt and returns any badges it earned.
func (c *Client) SubmitTest(ctx context.Context, test core.TestID, score int64) ([]core.BadgeAward, error) {
	var body struct {
		Awards []core.BadgeAward `json:"awards"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/me/tests/%d/submissions", test), map[string]int64{"score": score}, &body)
	return body.Awards, err
}

// CourseProgress returns the learner's progress in one course.
func (c *Client) CourseProgress(ctx context.Context, course core.CourseID) (core.CourseProgress, error) {
	var p core.CourseProgress
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/me/courses/%d/progress", course), nil, &p)
	return p, err
}

// Summary returns points, badges and course progress of the learner.
func (c *Client) Summary(ctx context.Context) (engine.LearnerSummary, error) {
	var s engine.LearnerSummary
	err := c.do(ctx, http.MethodGet, "/me/summary", nil, &s)
	return s, err
}

// Points returns the learner's balance.
func (c *Client) Points(ctx context.Context) (int64, error) {
	var body struct {
		Points int64 `json:"points"`
	}
	err := c.do(ctx, http.MethodGet, "/me/points", nil, &body)
	return body.Points, err
}

// Badges lists the learner's badges, oldest first.
func (c *Client) Badges(ctx context.Context) ([]engine.BadgeView, error) {
	var body struct {
		Badges []engine.BadgeView `json:"badges"`
	}
	err := c.do(ctx, http.MethodGet, "/me/badges", nil, &body)
	return body.Badges, err
}

// Submissions lists the learner's test submissions in arrival order.
func (c *Client) Submissions(ctx context.Context) ([]core.TestSubmission, error) {
	var body struct {
		Submissions []core.TestSubmission `json:"submissions"`
	}
	err := c.do(ctx, http.MethodGet, "/me/tests", nil, &body)
	return body.Submissions, err
}

// CreateBadge adds a badge definition. Requires an admin API key.
func (c *Client) CreateBadge(ctx context.Context, def core.BadgeDefinition) (core.BadgeDefinition, error) {
	var out core.BadgeDefinition
	err := c.do(ctx, http.MethodPost, "/admin/badges", def, &out)
	return out, err
}

// DeleteBadge removes a badge nobody holds. Requires an admin API key.
func (c *Client) DeleteBadge(ctx context.Context, id core.BadgeID) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/admin/badges/%d", id), nil, nil)
}

// Evaluate re-runs badge evaluation for any learner. Requires an admin API key.
func (c *Client) Evaluate(ctx context.Context, learner core.LearnerID) ([]core.BadgeAward, error) {
	var body struct {
		Awards []core.BadgeAward `json:"awards"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/admin/learners/%d/evaluate", learner), nil, &body)
	return body.Awards, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	c.applyHeaders(req)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, out)
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}
