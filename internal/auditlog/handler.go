package auditlog

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"eventtrack/internal/httpapi"
)

// Handler exposes the admin audit trail.
type Handler struct {
	store *Store
}

// NewHandler creates a handler.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// RegisterAdminRoutes mounts the audit listing.
func (h *Handler) RegisterAdminRoutes(r gin.IRouter) {
	r.GET("/audit-log", h.list)
}

func (h *Handler) list(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	recs, err := h.store.List(c.Request.Context(), limit)
	if err != nil {
		httpapi.Respond(c, http.StatusInternalServerError, "database error", nil)
		return
	}
	if recs == nil {
		recs = []Record{}
	}
	httpapi.Respond(c, http.StatusOK, "audit log retrieved", recs)
}
