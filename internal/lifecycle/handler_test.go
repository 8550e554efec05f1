package lifecycle

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventtrack/internal/auth"
)

// asRole injects verified claims the way the auth middleware would.
func asRole(role string, id string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("claims", auth.Claims{Subject: id, Role: role})
		c.Next()
	}
}

func newTestAPI(t *testing.T) (*gin.Engine, *fixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	fx := newFixture(t)

	r := gin.New()
	volunteer := r.Group("/volunteer", asRole(auth.RoleVolunteer, "1"))
	student := r.Group("/student", asRole(auth.RoleStudent, "10"))
	RegisterRoutes(volunteer, student, fx.engine)
	return r, fx
}

func post(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func attendanceBody(eventID int64, action string) map[string]any {
	return map[string]any{
		"event_id":           eventID,
		"attendance_action":  action,
		"location_latitude":  12.97,
		"location_longitude": 77.59,
	}
}

func TestVolunteerAttendanceHTTP(t *testing.T) {
	r, _ := newTestAPI(t)

	w := post(t, r, "/volunteer/attendance", attendanceBody(eventA, "start"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"success"`)
	assert.Contains(t, w.Body.String(), "event started")
	assert.Contains(t, w.Body.String(), "start_time")

	// Second start is a state conflict.
	w = post(t, r, "/volunteer/attendance", attendanceBody(eventA, "start"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "event already started")

	w = post(t, r, "/volunteer/attendance", attendanceBody(eventA, "end"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "duration_minutes")
}

func TestAttendanceHTTPValidation(t *testing.T) {
	r, _ := newTestAPI(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing action", map[string]any{"event_id": eventA, "location_latitude": 1.0, "location_longitude": 1.0}},
		{"bad action", attendanceBody(eventA, "pause")},
		{"missing coordinates", map[string]any{"event_id": eventA, "attendance_action": "start"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, r, "/volunteer/attendance", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestStudentAttendanceHTTP(t *testing.T) {
	r, _ := newTestAPI(t)

	// No pending row before the volunteer starts the event.
	w := post(t, r, "/student/attendance", attendanceBody(eventA, "start"))
	assert.Equal(t, http.StatusBadRequest, w.Code) // event has not started

	w = post(t, r, "/volunteer/attendance", attendanceBody(eventA, "start"))
	require.Equal(t, http.StatusOK, w.Code)

	w = post(t, r, "/student/attendance", attendanceBody(eventA, "start"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "attendance marked as present")

	w = post(t, r, "/student/attendance", attendanceBody(eventA, "end"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "attendance ended")
}

func TestStudentWindowExpiredHTTP(t *testing.T) {
	r, fx := newTestAPI(t)

	w := post(t, r, "/volunteer/attendance", attendanceBody(eventA, "start"))
	require.Equal(t, http.StatusOK, w.Code)

	fx.advance(61 * time.Minute)
	w = post(t, r, "/student/attendance", attendanceBody(eventA, "start"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "attendance window has expired")

	// Absence was committed: a retry reports the missing pending row.
	w = post(t, r, "/student/attendance", attendanceBody(eventA, "start"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
