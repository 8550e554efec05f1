package accounts

import (
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"eventtrack/internal/auth"
	"eventtrack/internal/config"
	"eventtrack/internal/httpapi"
)

// Handler exposes the account endpoints.
type Handler struct {
	svc  *Service
	repo *Repository
	cfg  config.App
}

// NewHandler creates a handler.
func NewHandler(svc *Service, repo *Repository, cfg config.App) *Handler {
	return &Handler{svc: svc, repo: repo, cfg: cfg}
}

// RegisterPublicRoutes wires registration, login, and the open lookups.
func (h *Handler) RegisterPublicRoutes(r gin.IRouter) {
	r.POST("/student/register", h.registerStudent)
	r.POST("/student/login", h.loginStudent)
	r.GET("/student/email-check", h.emailCheck)
	r.GET("/student/volunteers", h.directory)
	r.POST("/volunteer/register", h.registerVolunteer)
	r.POST("/volunteer/login", h.loginVolunteer)
	r.POST("/admin/login", h.loginAdmin)
	r.POST("/token/refresh", h.refreshToken)
	r.POST("/logout", h.logout)
}

// RegisterStudentRoutes wires the student self-service endpoints.
func (h *Handler) RegisterStudentRoutes(r gin.IRouter) {
	r.GET("/profile", h.studentProfile)
	r.PUT("/update-profile", h.updateStudentProfile)
}

// RegisterVolunteerRoutes wires the volunteer self-service endpoints.
func (h *Handler) RegisterVolunteerRoutes(r gin.IRouter) {
	r.GET("/profile", h.volunteerProfile)
	r.PUT("/update-profile", h.updateVolunteerProfile)
}

// RegisterAdminRoutes wires the account CRUD for administrators.
func (h *Handler) RegisterAdminRoutes(r gin.IRouter) {
	r.GET("/students", h.listStudents)
	r.POST("/students", h.adminCreateStudent)
	r.PUT("/students/:id", h.adminUpdateStudent)
	r.DELETE("/students/:id", h.adminDeleteStudent)
	r.GET("/volunteers", h.listVolunteers)
	r.POST("/volunteers", h.adminCreateVolunteer)
	r.PUT("/volunteers/:id", h.adminUpdateVolunteer)
	r.DELETE("/volunteers/:id", h.adminDeleteVolunteer)
}

func (h *Handler) registerStudent(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Respond(c, http.StatusBadRequest, "first name, email, and password are required", nil)
		return
	}
	id, err := h.svc.RegisterStudent(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	httpapi.Respond(c, http.StatusCreated, "registration successful", gin.H{"student_id": id})
}

func (h *Handler) registerVolunteer(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Respond(c, http.StatusBadRequest, "first name, email, and password are required", nil)
		return
	}
	id, err := h.svc.RegisterVolunteer(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	httpapi.Respond(c, http.StatusCreated, "volunteer registered", gin.H{"volunteer_id": id})
}

func (h *Handler) loginStudent(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Respond(c, http.StatusBadRequest, "email and password are required", nil)
		return
	}
	id, err := h.svc.LoginStudent(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	h.issueTokens(c, id, auth.RoleStudent, req.Email)
}

func (h *Handler) loginVolunteer(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Respond(c, http.StatusBadRequest, "email and password are required", nil)
		return
	}
	id, err := h.svc.LoginVolunteer(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	h.issueTokens(c, id, auth.RoleVolunteer, req.Email)
}

// loginAdmin checks the configured admin credentials. There is exactly one
// admin account and it lives in config, not the database.
func (h *Handler) loginAdmin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Respond(c, http.StatusBadRequest, "email and password are required", nil)
		return
	}
	emailOK := subtle.ConstantTimeCompare([]byte(req.Email), []byte(h.cfg.AdminEmail)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.cfg.AdminPassword)) == 1
	if !emailOK || !passOK {
		httpapi.Respond(c, http.StatusUnauthorized, "invalid email or password", nil)
		return
	}
	h.issueTokens(c, 0, auth.RoleAdmin, req.Email)
}

func (h *Handler) issueTokens(c *gin.Context, id int64, role, email string) {
	subject := strconv.FormatInt(id, 10)
	pair, err := auth.Issue(subject, role, h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL, h.cfg.RefreshTTL)
	if err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "token issue failed", nil)
		return
	}
	if err := h.repo.SaveRefreshToken(c.Request.Context(), subject, role, pair.RefreshToken, pair.RefreshExp); err != nil {
		log.Printf("save refresh token failed: %v", err)
	}
	httpapi.Respond(c, http.StatusOK, "login successful", gin.H{
		"id":            id,
		"email":         email,
		"role":          role,
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.AccessExp.Unix(),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// refreshToken rotates a live refresh token into a new pair. The old
// token is revoked so replay fails.
func (h *Handler) refreshToken(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Respond(c, http.StatusBadRequest, "refresh_token is required", nil)
		return
	}
	if _, err := auth.Parse(req.RefreshToken, h.cfg.JWTSigningKey, h.cfg.JWTIssuer); err != nil {
		httpapi.Respond(c, http.StatusUnauthorized, "invalid refresh token", nil)
		return
	}
	subject, role, ok, err := h.repo.LiveRefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
		return
	}
	if !ok {
		httpapi.Respond(c, http.StatusUnauthorized, "invalid refresh token", nil)
		return
	}

	pair, err := auth.Issue(subject, role, h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL, h.cfg.RefreshTTL)
	if err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "token issue failed", nil)
		return
	}
	if err := h.repo.RevokeRefreshToken(c.Request.Context(), req.RefreshToken); err != nil {
		log.Printf("revoke refresh token failed: %v", err)
	}
	if err := h.repo.SaveRefreshToken(c.Request.Context(), subject, role, pair.RefreshToken, pair.RefreshExp); err != nil {
		log.Printf("save refresh token failed: %v", err)
	}
	httpapi.Respond(c, http.StatusOK, "token refreshed", gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.AccessExp.Unix(),
	})
}

func (h *Handler) logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Respond(c, http.StatusBadRequest, "refresh_token is required", nil)
		return
	}
	if err := h.repo.RevokeRefreshToken(c.Request.Context(), req.RefreshToken); err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
		return
	}
	httpapi.Respond(c, http.StatusOK, "logged out", nil)
}

func (h *Handler) emailCheck(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		httpapi.Respond(c, http.StatusBadRequest, "email is required", nil)
		return
	}
	exists, err := h.repo.StudentEmailExists(c.Request.Context(), email)
	if err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
		return
	}
	httpapi.Respond(c, http.StatusOK, "email check completed", gin.H{"exists": exists})
}

func (h *Handler) directory(c *gin.Context) {
	out, err := h.repo.Directory(c.Request.Context())
	if err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
		return
	}
	httpapi.Respond(c, http.StatusOK, "volunteers retrieved", out)
}

func (h *Handler) studentProfile(c *gin.Context) {
	id, ok := auth.SubjectID(c)
	if !ok {
		httpapi.Respond(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	p, err := h.repo.StudentProfile(c.Request.Context(), id)
	if err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
		return
	}
	if p == nil {
		httpapi.Respond(c, http.StatusNotFound, "profile not found", nil)
		return
	}
	httpapi.Respond(c, http.StatusOK, "profile retrieved", p)
}

func (h *Handler) volunteerProfile(c *gin.Context) {
	id, ok := auth.SubjectID(c)
	if !ok {
		httpapi.Respond(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	p, err := h.repo.VolunteerProfile(c.Request.Context(), id)
	if err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
		return
	}
	if p == nil {
		httpapi.Respond(c, http.StatusNotFound, "profile not found", nil)
		return
	}
	httpapi.Respond(c, http.StatusOK, "profile retrieved", p)
}

func (h *Handler) updateStudentProfile(c *gin.Context) {
	id, ok := auth.SubjectID(c)
	if !ok {
		httpapi.Respond(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Respond(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.svc.UpdateStudentProfile(c.Request.Context(), id, req); err != nil {
		writeServiceError(c, err)
		return
	}
	httpapi.Respond(c, http.StatusOK, "profile updated", nil)
}

func (h *Handler) updateVolunteerProfile(c *gin.Context) {
	id, ok := auth.SubjectID(c)
	if !ok {
		httpapi.Respond(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Respond(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.svc.UpdateVolunteerProfile(c.Request.Context(), id, req); err != nil {
		writeServiceError(c, err)
		return
	}
	httpapi.Respond(c, http.StatusOK, "profile updated", nil)
}

func (h *Handler) listStudents(c *gin.Context) {
	out, err := h.repo.ListStudents(c.Request.Context())
	if err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
		return
	}
	httpapi.Respond(c, http.StatusOK, "students retrieved", out)
}

func (h *Handler) listVolunteers(c *gin.Context) {
	out, err := h.repo.ListVolunteers(c.Request.Context())
	if err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
		return
	}
	httpapi.Respond(c, http.StatusOK, "volunteers retrieved", out)
}

func (h *Handler) adminCreateStudent(c *gin.Context) {
	var req AdminUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Respond(c, http.StatusBadRequest, "first name, email, and password are required", nil)
		return
	}
	id, err := h.svc.AdminCreateStudent(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	httpapi.Respond(c, http.StatusCreated, "student created", gin.H{"student_id": id})
}

func (h *Handler) adminCreateVolunteer(c *gin.Context) {
	var req AdminUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Respond(c, http.StatusBadRequest, "first name, email, and password are required", nil)
		return
	}
	id, err := h.svc.AdminCreateVolunteer(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	httpapi.Respond(c, http.StatusCreated, "volunteer created", gin.H{"volunteer_id": id})
}

func (h *Handler) adminUpdateStudent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req AdminUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Respond(c, http.StatusBadRequest, "first name, email, and password are required", nil)
		return
	}
	if err := h.svc.AdminUpdateStudent(c.Request.Context(), id, req); err != nil {
		writeServiceError(c, err)
		return
	}
	httpapi.Respond(c, http.StatusOK, "student updated", nil)
}

func (h *Handler) adminUpdateVolunteer(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req AdminUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Respond(c, http.StatusBadRequest, "first name, email, and password are required", nil)
		return
	}
	if err := h.svc.AdminUpdateVolunteer(c.Request.Context(), id, req); err != nil {
		writeServiceError(c, err)
		return
	}
	httpapi.Respond(c, http.StatusOK, "volunteer updated", nil)
}

func (h *Handler) adminDeleteStudent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	deleted, err := h.repo.DeleteStudent(c.Request.Context(), id)
	if err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
		return
	}
	if !deleted {
		httpapi.Respond(c, http.StatusNotFound, "student not found", nil)
		return
	}
	httpapi.Respond(c, http.StatusOK, "student deleted", nil)
}

func (h *Handler) adminDeleteVolunteer(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	deleted, err := h.repo.DeleteVolunteer(c.Request.Context(), id)
	if err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
		return
	}
	if !deleted {
		httpapi.Respond(c, http.StatusNotFound, "volunteer not found", nil)
		return
	}
	httpapi.Respond(c, http.StatusOK, "volunteer deleted", nil)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		httpapi.Respond(c, http.StatusBadRequest, "invalid id", nil)
		return 0, false
	}
	return id, true
}

func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrUnknownVolunteer),
		errors.Is(err, ErrNoFields), errors.Is(err, ErrCurrentRequired):
		httpapi.Respond(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrCurrentPassword):
		httpapi.Respond(c, http.StatusUnauthorized, err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		httpapi.Respond(c, http.StatusNotFound, err.Error(), nil)
	default:
		httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
	}
}
