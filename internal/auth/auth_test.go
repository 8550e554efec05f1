package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "eventtrack-test"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("42", RoleVolunteer, testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	claims, err := Parse(pair.AccessToken, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, RoleVolunteer, claims.Role)
}

func TestParseRejectsWrongKey(t *testing.T) {
	pair, err := Issue("42", RoleStudent, testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, "other-key", testIssuer)
	assert.Error(t, err)
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	pair, err := Issue("42", RoleStudent, "someone-else", testKey, time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, testKey, testIssuer)
	assert.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	pair, err := Issue("42", RoleStudent, testIssuer, testKey, -time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, testKey, testIssuer)
	assert.Error(t, err)
}

func newTestRouter(roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/guarded", RequireRole(testKey, testIssuer, roles...), func(c *gin.Context) {
		id, ok := SubjectID(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id})
	})
	return r
}

func TestRequireRole(t *testing.T) {
	r := newTestRouter(RoleVolunteer)

	pair, err := Issue("7", RoleVolunteer, testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"malformed header", "Token abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid token", "Bearer " + pair.AccessToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequireRoleRejectsOtherRole(t *testing.T) {
	r := newTestRouter(RoleAdmin)

	pair, err := Issue("7", RoleStudent, testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "hunter2"))
	assert.False(t, CheckPassword(hash, "hunter3"))
}
