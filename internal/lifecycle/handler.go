package lifecycle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"eventtrack/internal/auth"
	"eventtrack/internal/httpapi"
)

// attendanceRequest is the shared body for volunteer and student
// transitions. Coordinates are pointers so zero values still bind.
type attendanceRequest struct {
	EventID   int64    `json:"event_id" binding:"required"`
	Action    string   `json:"attendance_action" binding:"required,oneof=start end"`
	Latitude  *float64 `json:"location_latitude" binding:"required"`
	Longitude *float64 `json:"location_longitude" binding:"required"`
}

// RegisterRoutes wires the lifecycle transitions under the role-gated
// volunteer and student groups.
func RegisterRoutes(volunteer, student gin.IRouter, e *Engine) {
	volunteer.POST("/attendance", volunteerAttendance(e))
	student.POST("/attendance", studentAttendance(e))
}

func volunteerAttendance(e *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		volunteerID, ok := auth.SubjectID(c)
		if !ok {
			httpapi.Respond(c, http.StatusUnauthorized, "unauthorized", nil)
			return
		}
		var req attendanceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpapi.Respond(c, http.StatusBadRequest, "event_id, attendance_action, latitude, and longitude are required", nil)
			return
		}

		switch req.Action {
		case "start":
			res, err := e.StartEvent(c.Request.Context(), volunteerID, req.EventID, *req.Latitude, *req.Longitude)
			if err != nil {
				writeError(c, err)
				return
			}
			httpapi.Respond(c, http.StatusOK, "event started", res)
		case "end":
			res, err := e.EndEvent(c.Request.Context(), volunteerID, req.EventID, *req.Latitude, *req.Longitude)
			if err != nil {
				writeError(c, err)
				return
			}
			httpapi.Respond(c, http.StatusOK, "event ended and completed", res)
		}
	}
}

func studentAttendance(e *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		studentID, ok := auth.SubjectID(c)
		if !ok {
			httpapi.Respond(c, http.StatusUnauthorized, "unauthorized", nil)
			return
		}
		var req attendanceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpapi.Respond(c, http.StatusBadRequest, "event_id, attendance_action, latitude, and longitude are required", nil)
			return
		}

		switch req.Action {
		case "start":
			res, err := e.CheckInStudent(c.Request.Context(), studentID, req.EventID, *req.Latitude, *req.Longitude)
			if err != nil {
				writeError(c, err)
				return
			}
			httpapi.Respond(c, http.StatusOK, "attendance marked as present", res)
		case "end":
			res, err := e.CheckOutStudent(c.Request.Context(), studentID, req.EventID, *req.Latitude, *req.Longitude)
			if err != nil {
				writeError(c, err)
				return
			}
			httpapi.Respond(c, http.StatusOK, "attendance ended", res)
		}
	}
}

func writeError(c *gin.Context, err error) {
	if de, ok := AsError(err); ok {
		httpapi.Respond(c, de.HTTPStatus(), de.Message, nil)
		return
	}
	httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
}
