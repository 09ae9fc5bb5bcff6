package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"skillup/analytics"
	"skillup/core"
	"skillup/report"
)

type handlers struct {
	deps Deps
}

// healthProbe is never assigned to a learner; reading it exercises the store.
const healthProbe core.LearnerID = 0

func (h *handlers) health(c *gin.Context) {
	status := gin.H{"status": "healthy", "checks": gin.H{"storage": "ok"}}
	if _, err := h.deps.Service.Storage().GetPoints(c.Request.Context(), healthProbe); err != nil {
		status = gin.H{"status": "unhealthy", "checks": gin.H{"storage": "failed"}}
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	status["events"] = h.deps.Service.EventStats()
	c.JSON(http.StatusOK, status)
}

func (h *handlers) listCourses(c *gin.Context) {
	courses, err := h.deps.Courses.ListCourses(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}

// idParam parses a positive integer path parameter.
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "invalid_"+name, name+" must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

func (h *handlers) enroll(c *gin.Context) {
	course, ok := idParam(c, "course")
	if !ok {
		return
	}
	res, err := h.deps.Service.OnEnrollment(c.Request.Context(), currentLearner(c), core.CourseID(course))
	if err != nil {
		fail(c, err)
		return
	}
	status := http.StatusOK
	if res.NewlyEnrolled {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

func (h *handlers) courseProgress(c *gin.Context) {
	course, ok := idParam(c, "course")
	if !ok {
		return
	}
	p, err := h.deps.Service.GetCourseProgress(c.Request.Context(), currentLearner(c), core.CourseID(course))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handlers) completedLessons(c *gin.Context) {
	course, ok := idParam(c, "course")
	if !ok {
		return
	}
	recs, err := h.deps.Service.ListCompletedLessons(c.Request.Context(), currentLearner(c), core.CourseID(course))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"course_id": course, "completed": recs})
}

func (h *handlers) completeLesson(c *gin.Context) {
	lesson, ok := idParam(c, "lesson")
	if !ok {
		return
	}
	res, err := h.deps.Service.OnLessonCompletionRequested(c.Request.Context(), currentLearner(c), core.LessonID(lesson))
	if err != nil {
		fail(c, err)
		return
	}
	if !res.Accepted {
		writeError(c, http.StatusNotFound, "lesson_not_found", fmt.Sprintf("lesson %d does not exist", lesson), nil)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) lessonStatus(c *gin.Context) {
	lesson, ok := idParam(c, "lesson")
	if !ok {
		return
	}
	done, err := h.deps.Service.IsLessonCompleted(c.Request.Context(), currentLearner(c), core.LessonID(lesson))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lesson_id": lesson, "completed": done})
}

type submissionRequest struct {
	Score *int64 `json:"score" binding:"required"`
}

func (h *handlers) submitTest(c *gin.Context) {
	test, ok := idParam(c, "test")
	if !ok {
		return
	}
	var req submissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}
	awards, err := h.deps.Service.OnTestSubmitted(c.Request.Context(), currentLearner(c), core.TestID(test), *req.Score)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"test_id": test, "awards": awards})
}

func (h *handlers) submissions(c *gin.Context) {
	learner := currentLearner(c)
	subs, err := h.deps.Service.ListTestSubmissions(c.Request.Context(), learner)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"learner_id": learner, "submissions": subs})
}

func (h *handlers) summary(c *gin.Context) {
	s, err := h.deps.Service.GetLearnerSummary(c.Request.Context(), currentLearner(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handlers) points(c *gin.Context) {
	learner := currentLearner(c)
	total, err := h.deps.Service.GetPoints(c.Request.Context(), learner)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"learner_id": learner, "points": total})
}

func (h *handlers) badges(c *gin.Context) {
	views, err := h.deps.Service.GetBadges(c.Request.Context(), currentLearner(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"badges": views})
}

func (h *handlers) report(c *gin.Context) {
	learner := currentLearner(c)
	s, err := h.deps.Service.GetLearnerSummary(c.Request.Context(), learner)
	if err != nil {
		fail(c, err)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteLearnerReport(&buf, s, time.Now()); err != nil {
		fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="learner-%d.xlsx"`, learner))
	c.Data(http.StatusOK, report.ContentType, buf.Bytes())
}

func (h *handlers) evaluate(c *gin.Context) {
	learner, ok := idParam(c, "learner")
	if !ok {
		return
	}
	awards, err := h.deps.Service.EvaluateAndAward(c.Request.Context(), core.LearnerID(learner))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"learner_id": learner, "awards": awards})
}

func (h *handlers) listBadges(c *gin.Context) {
	defs, err := h.deps.Badges.ListBadgeDefinitions(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"badges": defs})
}

func (h *handlers) getBadge(c *gin.Context) {
	id, ok := idParam(c, "badge")
	if !ok {
		return
	}
	def, err := h.deps.Badges.Get(c.Request.Context(), core.BadgeID(id))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

func (h *handlers) createBadge(c *gin.Context) {
	var def core.BadgeDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}
	created, err := h.deps.Badges.Create(c.Request.Context(), def)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *handlers) updateBadge(c *gin.Context) {
	id, ok := idParam(c, "badge")
	if !ok {
		return
	}
	var def core.BadgeDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}
	def.ID = core.BadgeID(id)
	updated, err := h.deps.Badges.Update(c.Request.Context(), def)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *handlers) deleteBadge(c *gin.Context) {
	id, ok := idParam(c, "badge")
	if !ok {
		return
	}
	if err := h.deps.Badges.Delete(c.Request.Context(), core.BadgeID(id)); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) stats(c *gin.Context) {
	limit := 10
	if raw := c.Query("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(c, http.StatusBadRequest, "invalid_top", "top must be a non-negative integer", nil)
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, h.deps.Stats.Summary(time.Now(), limit))
}

func (h *handlers) dailyStats(c *gin.Context) {
	now := time.Now().UTC()
	from, to := now.AddDate(0, 0, -6), now
	var err error
	if raw := c.Query("from"); raw != "" {
		if from, err = time.Parse(time.DateOnly, raw); err != nil {
			writeError(c, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD", nil)
			return
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = time.Parse(time.DateOnly, raw); err != nil {
			writeError(c, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD", nil)
			return
		}
	}
	days, err := h.deps.Stats.Rollups(from, to)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_range", err.Error(), nil)
		return
	}
	if c.Query("format") != "export" {
		c.JSON(http.StatusOK, gin.H{"days": days})
		return
	}
	c.Header("Content-Type", "application/json; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="daily-%s-%s.json"`,
		from.Format(time.DateOnly), to.Format(time.DateOnly)))
	c.Status(http.StatusOK)
	if err := analytics.ExportData(c.Writer, days); err != nil {
		_ = c.Error(err)
	}
}
