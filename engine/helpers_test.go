package engine

import (
	"context"
	"sync"

	mem "skillup/adapters/memory"
	"skillup/core"
)

type staticCatalog struct {
	mu   sync.Mutex
	defs []core.BadgeDefinition
}

func (c *staticCatalog) ListBadgeDefinitions(context.Context) ([]core.BadgeDefinition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.BadgeDefinition(nil), c.defs...), nil
}

func (c *staticCatalog) add(d core.BadgeDefinition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defs = append(c.defs, d)
}

func badge(id core.BadgeID, name string, kind core.ConditionKind, threshold int64) core.BadgeDefinition {
	return core.BadgeDefinition{ID: id, Name: name, Condition: core.Condition{Kind: kind, Threshold: threshold}}
}

// seedCourse registers a course with n lessons numbered course*100+1.. in order.
func seedCourse(c *mem.Courses, course core.CourseID, n int) []core.LessonID {
	c.PutCourse(core.Course{ID: course, Title: "course"})
	ids := make([]core.LessonID, n)
	for i := 0; i < n; i++ {
		id := core.LessonID(int64(course)*100 + int64(i) + 1)
		c.PutLesson(core.Lesson{ID: id, CourseID: course, OrderIndex: i + 1})
		ids[i] = id
	}
	return ids
}

type fixture struct {
	store   *mem.Store
	courses *mem.Courses
	catalog *staticCatalog
	bus     *EventBus
	svc     *ProgressService
}

func newFixture(defs ...core.BadgeDefinition) *fixture {
	f := &fixture{
		store:   mem.New(),
		courses: mem.NewCourses(),
		catalog: &staticCatalog{defs: defs},
		bus:     NewEventBus(DispatchSync),
	}
	f.svc = NewProgressService(f.store, f.courses, f.catalog, f.bus)
	return f
}
