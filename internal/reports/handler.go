package reports

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"eventtrack/internal/auth"
	"eventtrack/internal/httpapi"
)

// Handler exposes the attendance report routes.
type Handler struct {
	repo *Repository
}

// NewHandler creates a handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// RegisterAdminRoutes mounts the admin reports and manual inserts.
func (h *Handler) RegisterAdminRoutes(r gin.IRouter) {
	r.GET("/student-attendance", h.adminStudentAttendance)
	r.POST("/student-attendance", h.adminRecordStudent)
	r.GET("/volunteer-attendance", h.adminVolunteerAttendance)
	r.POST("/volunteer-attendance", h.adminRecordVolunteer)
}

// RegisterVolunteerRoutes mounts the volunteer's combined view.
func (h *Handler) RegisterVolunteerRoutes(r gin.IRouter) {
	r.GET("/attendance", h.volunteerOverview)
}

// RegisterStudentRoutes mounts the student's own history.
func (h *Handler) RegisterStudentRoutes(r gin.IRouter) {
	r.GET("/attendance", h.studentHistory)
}

func (h *Handler) adminStudentAttendance(c *gin.Context) {
	rows, err := h.repo.AllStudentRows(c.Request.Context())
	if err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
		return
	}
	httpapi.Respond(c, http.StatusOK, "student attendance retrieved", rows)
}

func (h *Handler) adminVolunteerAttendance(c *gin.Context) {
	rows, err := h.repo.AllVolunteerRows(c.Request.Context())
	if err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
		return
	}
	httpapi.Respond(c, http.StatusOK, "volunteer attendance retrieved", rows)
}

type recordStudentRequest struct {
	Email   string `json:"email" binding:"required,email"`
	EventID int64  `json:"event_id" binding:"required"`
}

func (h *Handler) adminRecordStudent(c *gin.Context) {
	var req recordStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Respond(c, http.StatusBadRequest, "email and event_id are required", nil)
		return
	}
	err := h.repo.RecordStudentPresence(c.Request.Context(), req.Email, req.EventID)
	if errors.Is(err, ErrUnknownAccount) {
		httpapi.Respond(c, http.StatusNotFound, "student not found", nil)
		return
	}
	if err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
		return
	}
	httpapi.Respond(c, http.StatusOK, "attendance recorded", nil)
}

type recordVolunteerRequest struct {
	Email     string     `json:"email" binding:"required,email"`
	EventID   int64      `json:"event_id" binding:"required"`
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Latitude  *float64   `json:"location_latitude"`
	Longitude *float64   `json:"location_longitude"`
}

func (h *Handler) adminRecordVolunteer(c *gin.Context) {
	var req recordVolunteerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Respond(c, http.StatusBadRequest, "email and event_id are required", nil)
		return
	}
	err := h.repo.RecordVolunteerSession(c.Request.Context(), req.Email, req.EventID, req.StartTime, req.EndTime, req.Latitude, req.Longitude)
	if errors.Is(err, ErrUnknownAccount) {
		httpapi.Respond(c, http.StatusNotFound, "volunteer not found", nil)
		return
	}
	if err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
		return
	}
	httpapi.Respond(c, http.StatusOK, "attendance updated", nil)
}

func (h *Handler) volunteerOverview(c *gin.Context) {
	id, ok := auth.SubjectID(c)
	if !ok {
		httpapi.Respond(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	ctx := c.Request.Context()
	sessions, err := h.repo.VolunteerRowsFor(ctx, id)
	if err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
		return
	}
	students, err := h.repo.StudentRowsForVolunteer(ctx, id)
	if err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
		return
	}
	if sessions == nil {
		sessions = []VolunteerRow{}
	}
	if students == nil {
		students = []StudentRow{}
	}
	httpapi.Respond(c, http.StatusOK, "attendance records retrieved", Overview{
		VolunteerAttendance: sessions,
		StudentAttendance:   students,
	})
}

func (h *Handler) studentHistory(c *gin.Context) {
	id, ok := auth.SubjectID(c)
	if !ok {
		httpapi.Respond(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	rows, err := h.repo.HistoryForStudent(c.Request.Context(), id)
	if err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
		return
	}
	if rows == nil {
		rows = []HistoryRow{}
	}
	httpapi.Respond(c, http.StatusOK, "attendance records retrieved", rows)
}
