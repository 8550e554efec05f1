package events

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"eventtrack/internal/auth"
	"eventtrack/internal/httpapi"
)

// Handler exposes event CRUD and the role-filtered listings.
type Handler struct {
	repo *Repository
}

// NewHandler creates a handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// RegisterAdminRoutes wires event CRUD for administrators.
func (h *Handler) RegisterAdminRoutes(r gin.IRouter) {
	r.GET("/events", h.list)
	r.POST("/events", h.create)
	r.PUT("/events/:id", h.update)
	r.DELETE("/events/:id", h.remove)
}

// RegisterVolunteerRoutes wires the volunteer's event listing.
func (h *Handler) RegisterVolunteerRoutes(r gin.IRouter) {
	r.GET("/upcoming-events", h.volunteerUpcoming)
}

// RegisterStudentRoutes wires the student's event listings. /events is
// the check-in list (running events only); /upcoming-events is the full
// schedule.
func (h *Handler) RegisterStudentRoutes(r gin.IRouter) {
	r.GET("/events", h.studentActive)
	r.GET("/upcoming-events", h.studentUpcoming)
}

func (h *Handler) list(c *gin.Context) {
	out, err := h.repo.List(c.Request.Context())
	if err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
		return
	}
	httpapi.Respond(c, http.StatusOK, "events retrieved", out)
}

func (h *Handler) create(c *gin.Context) {
	var req UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Respond(c, http.StatusBadRequest, "event name and date are required", nil)
		return
	}
	id, err := h.repo.Insert(c.Request.Context(), req)
	if err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
		return
	}
	httpapi.Respond(c, http.StatusCreated, "event created", gin.H{"event_id": id})
}

func (h *Handler) update(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		httpapi.Respond(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	var req UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Respond(c, http.StatusBadRequest, "event name and date are required", nil)
		return
	}
	ok, err := h.repo.Update(c.Request.Context(), id, req)
	if err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
		return
	}
	if !ok {
		httpapi.Respond(c, http.StatusNotFound, "event not found", nil)
		return
	}
	httpapi.Respond(c, http.StatusOK, "event updated", nil)
}

func (h *Handler) remove(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		httpapi.Respond(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	deleted, err := h.repo.Delete(c.Request.Context(), id)
	if err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
		return
	}
	if !deleted {
		httpapi.Respond(c, http.StatusNotFound, "event not found", nil)
		return
	}
	httpapi.Respond(c, http.StatusOK, "event deleted", nil)
}

func (h *Handler) volunteerUpcoming(c *gin.Context) {
	id, ok := auth.SubjectID(c)
	if !ok {
		httpapi.Respond(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	out, err := h.repo.UpcomingForVolunteer(c.Request.Context(), id)
	if err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
		return
	}
	httpapi.Respond(c, http.StatusOK, "upcoming events retrieved", out)
}

func (h *Handler) studentActive(c *gin.Context) {
	h.studentEvents(c, h.repo.ActiveForVolunteer)
}

func (h *Handler) studentUpcoming(c *gin.Context) {
	h.studentEvents(c, h.repo.UpcomingForVolunteer)
}

func (h *Handler) studentEvents(c *gin.Context, list func(ctx context.Context, volunteerID int64) ([]Event, error)) {
	id, ok := auth.SubjectID(c)
	if !ok {
		httpapi.Respond(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	volunteerID, found, err := h.repo.StudentVolunteer(c.Request.Context(), id)
	if err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
		return
	}
	if !found {
		httpapi.Respond(c, http.StatusNotFound, "student not found", nil)
		return
	}
	if volunteerID == nil {
		httpapi.Respond(c, http.StatusOK, "no volunteer assigned, no events available", []Event{})
		return
	}
	out, err := list(c.Request.Context(), *volunteerID)
	if err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
		return
	}
	httpapi.Respond(c, http.StatusOK, "upcoming events retrieved", out)
}
