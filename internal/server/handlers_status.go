package server

import (
	"net/http"

	"github.com/ashita-ai/manabi/internal/ctxutil"
	"github.com/ashita-ai/manabi/internal/model"
)

// HandleCourseStatuses handles GET /v1/courses/{course_id}/statuses.
// Instructor or above; returns one aggregated status per learner with any
// event in the course, recomputed from the recent event window on every call.
func (h *Handlers) HandleCourseStatuses(w http.ResponseWriter, r *http.Request) {
	courseID := r.PathValue("course_id")
	if courseID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "course_id is required")
		return
	}
	if len(courseID) > model.MaxCourseIDLen {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "course_id too long")
		return
	}

	resp, err := h.engagementSvc.CourseStatuses(r.Context(), courseID)
	if err != nil {
		h.writeInternalError(w, r, "failed to compute course statuses", err)
		return
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// HandleLearnerHistory handles GET /v1/learners/{user_id}/history.
// Learners may read their own history; instructors and admins may read
// anyone's. course_id is a required query parameter; limit and before
// (RFC3339) page through results newest first.
func (h *Handlers) HandleLearnerHistory(w http.ResponseWriter, r *http.Request) {
	claims := ctxutil.ClaimsFromContext(r.Context())

	userID := r.PathValue("user_id")
	if err := model.ValidateUserID(userID); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if userID != claims.UserID && !model.RoleAtLeast(claims.Role, model.RoleInstructor) {
		writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden,
			"learners may only read their own history")
		return
	}

	courseID := r.URL.Query().Get("course_id")
	if courseID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "course_id query parameter is required")
		return
	}

	before, err := queryTime(r, "before")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	limit := queryLimit(r, 50)

	resp, err := h.engagementSvc.History(r.Context(), userID, courseID, limit, before)
	if err != nil {
		h.writeInternalError(w, r, "failed to load learner history", err)
		return
	}

	writeJSON(w, r, http.StatusOK, resp)
}
