package core

import (
	"errors"
	"fmt"
	"strings"
)

// ConditionKind enumerates the closed set of badge conditions.
type ConditionKind string

const (
	PointsThreshold           ConditionKind = "points_threshold"
	TestsCompletedThreshold   ConditionKind = "tests_completed_threshold"
	CoursesCompletedThreshold ConditionKind = "courses_completed_threshold"
)

// ConditionKinds lists every supported kind.
var ConditionKinds = []ConditionKind{PointsThreshold, TestsCompletedThreshold, CoursesCompletedThreshold}

// ParseConditionKind accepts the canonical names and the legacy enum spellings
// (TotalPoints, TestsCompleted, CourseCompleted) stored by older catalogs.
func ParseConditionKind(s string) (ConditionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(PointsThreshold), "points", "totalpoints":
		return PointsThreshold, nil
	case string(TestsCompletedThreshold), "testscompleted":
		return TestsCompletedThreshold, nil
	case string(CoursesCompletedThreshold), "coursecompleted", "coursescompleted":
		return CoursesCompletedThreshold, nil
	}
	return "", fmt.Errorf("unknown badge condition %q", s)
}

// Aggregates are the learner figures badge conditions are evaluated against.
// They are recomputed from facts on every evaluation.
type Aggregates struct {
	Points           int64 `json:"points"`
	TestsCompleted   int64 `json:"tests_completed"`
	CoursesCompleted int64 `json:"courses_completed"`
}

// Condition is a threshold over one aggregate.
type Condition struct {
	Kind      ConditionKind `json:"kind" yaml:"kind"`
	Threshold int64         `json:"threshold" yaml:"threshold"`
}

// Validate checks the kind is known and the threshold non-negative.
func (c Condition) Validate() error {
	if _, err := ParseConditionKind(string(c.Kind)); err != nil {
		return err
	}
	if c.Threshold < 0 {
		return errors.New("threshold must be >= 0")
	}
	return nil
}

// Met is a pure function of the aggregates.
func (c Condition) Met(a Aggregates) bool {
	switch c.Kind {
	case PointsThreshold:
		return a.Points >= c.Threshold
	case TestsCompletedThreshold:
		return a.TestsCompleted >= c.Threshold
	case CoursesCompletedThreshold:
		return a.CoursesCompleted >= c.Threshold
	}
	return false
}

// BadgeDefinition is a catalog entry. Immutable while an evaluation runs.
type BadgeDefinition struct {
	ID          BadgeID   `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IconURL     string    `json:"icon_url,omitempty"`
	Condition   Condition `json:"condition"`
}

// Validate checks the definition is usable by the evaluator.
func (d BadgeDefinition) Validate() error {
	var errs []string
	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, "name cannot be empty")
	}
	if err := d.Condition.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(errs, "; "))
	}
	return nil
}
