package badges

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skillup/core"
	"skillup/engine"
)

var _ engine.BadgeCatalog = (*Catalog)(nil)

type fakeCounter map[core.BadgeID]int64

func (f fakeCounter) CountAwards(_ context.Context, id core.BadgeID) (int64, error) { return f[id], nil }

const sampleCatalog = `badges:
  - id: 1
    name: Rookie
    description: Earn 100 points
    condition:
      kind: points_threshold
      threshold: 100
  - id: 2
    name: Examiner
    condition:
      kind: TestsCompleted
      threshold: 3
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "badges.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCatalog_LoadFile(t *testing.T) {
	c, err := New(writeCatalog(t, sampleCatalog), nil)
	require.NoError(t, err)

	defs, err := c.ListBadgeDefinitions(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "Rookie", defs[0].Name)
	assert.Equal(t, core.TestsCompletedThreshold, defs[1].Condition.Kind, "legacy kind names are accepted")
}

func TestCatalog_SchemaRejectsInvalidFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"negative threshold", "badges:\n  - id: 1\n    name: X\n    condition: {kind: points_threshold, threshold: -1}\n"},
		{"missing name", "badges:\n  - id: 1\n    condition: {kind: points_threshold, threshold: 1}\n"},
		{"unknown field", "badges:\n  - id: 1\n    name: X\n    color: red\n    condition: {kind: points_threshold, threshold: 1}\n"},
		{"unknown kind", "badges:\n  - id: 1\n    name: X\n    condition: {kind: streak, threshold: 1}\n"},
		{"duplicate name", "badges:\n  - id: 1\n    name: Star\n    condition: {kind: points_threshold, threshold: 1}\n  - id: 2\n    name: STAR\n    condition: {kind: points_threshold, threshold: 2}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(writeCatalog(t, tt.content), nil)
			assert.Error(t, err)
		})
	}
}

func TestCatalog_MissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "badges.yaml")
	c, err := New(path, nil)
	require.NoError(t, err)

	_, err = c.Create(context.Background(), core.BadgeDefinition{Name: "First", Condition: core.Condition{Kind: core.PointsThreshold, Threshold: 1}})
	require.NoError(t, err)

	reloaded, err := New(path, nil)
	require.NoError(t, err)
	defs, _ := reloaded.ListBadgeDefinitions(context.Background())
	require.Len(t, defs, 1)
	assert.Equal(t, core.BadgeID(1), defs[0].ID)
}

func TestCatalog_CreateEnforcesCaseInsensitiveNames(t *testing.T) {
	ctx := context.Background()
	c, err := NewInMemory(nil, core.BadgeDefinition{Name: "Rookie", Condition: core.Condition{Kind: core.PointsThreshold, Threshold: 100}})
	require.NoError(t, err)

	_, err = c.Create(ctx, core.BadgeDefinition{Name: "  rookie ", Condition: core.Condition{Kind: core.PointsThreshold, Threshold: 5}})
	assert.ErrorIs(t, err, core.ErrConflict)

	def, err := c.Create(ctx, core.BadgeDefinition{Name: "Scholar", Condition: core.Condition{Kind: core.CoursesCompletedThreshold, Threshold: 1}})
	require.NoError(t, err)
	assert.Equal(t, core.BadgeID(2), def.ID)

	_, err = c.Create(ctx, core.BadgeDefinition{Name: "", Condition: core.Condition{Kind: core.PointsThreshold}})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestCatalog_Update(t *testing.T) {
	ctx := context.Background()
	c, err := NewInMemory(nil,
		core.BadgeDefinition{Name: "A", Condition: core.Condition{Kind: core.PointsThreshold, Threshold: 1}},
		core.BadgeDefinition{Name: "B", Condition: core.Condition{Kind: core.PointsThreshold, Threshold: 2}},
	)
	require.NoError(t, err)

	_, err = c.Update(ctx, core.BadgeDefinition{ID: 2, Name: "a", Condition: core.Condition{Kind: core.PointsThreshold, Threshold: 2}})
	assert.ErrorIs(t, err, core.ErrConflict)

	updated, err := c.Update(ctx, core.BadgeDefinition{ID: 2, Name: "b", IconURL: "/b.png", Condition: core.Condition{Kind: core.PointsThreshold, Threshold: 20}})
	require.NoError(t, err)
	assert.Equal(t, int64(20), updated.Condition.Threshold)

	_, err = c.Update(ctx, core.BadgeDefinition{ID: 9, Name: "Z", Condition: core.Condition{Kind: core.PointsThreshold}})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCatalog_DeleteRefusedWhenAwarded(t *testing.T) {
	ctx := context.Background()
	c, err := NewInMemory(fakeCounter{1: 3},
		core.BadgeDefinition{Name: "Held", Condition: core.Condition{Kind: core.PointsThreshold, Threshold: 1}},
		core.BadgeDefinition{Name: "Unheld", Condition: core.Condition{Kind: core.PointsThreshold, Threshold: 1}},
	)
	require.NoError(t, err)

	assert.ErrorIs(t, c.Delete(ctx, 1), core.ErrConflict)
	require.NoError(t, c.Delete(ctx, 2))
	assert.ErrorIs(t, c.Delete(ctx, 2), core.ErrNotFound)

	_, err = c.Get(ctx, 1)
	require.NoError(t, err)
}

func TestCatalog_WatchReloadsOnWrite(t *testing.T) {
	path := writeCatalog(t, sampleCatalog)
	c, err := New(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Watch(ctx))

	updated := sampleCatalog + "  - id: 3\n    name: Graduate\n    condition: {kind: courses_completed_threshold, threshold: 1}\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	assert.Eventually(t, func() bool {
		defs, _ := c.ListBadgeDefinitions(context.Background())
		return len(defs) == 3
	}, 2*time.Second, 20*time.Millisecond)
}

func TestCatalog_WatchKeepsDefinitionsOnBadFile(t *testing.T) {
	path := writeCatalog(t, sampleCatalog)
	c, err := New(path, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("badges: [{id: 0}]"), 0o644))
	assert.Error(t, c.Reload())

	defs, _ := c.ListBadgeDefinitions(context.Background())
	assert.Len(t, defs, 2)
}
