package ssogin

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	examsso "github.com/pilab-dev/exam-sso"
	"github.com/pilab-dev/exam-sso/api"
	"github.com/pilab-dev/exam-sso/domain"
	apierrors "github.com/pilab-dev/exam-sso/errors"
	"github.com/pilab-dev/exam-sso/internal/auth/rbac"
	"github.com/pilab-dev/exam-sso/services"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuditReader reads back recorded audit events.
type AuditReader interface {
	ListByActor(ctx context.Context, actor string, limit int64) ([]domain.AuditEvent, error)
}

// AdminAPI exposes operator endpoints guarded by role permissions.
type AdminAPI struct {
	sessions *services.SessionService
	tokens   *examsso.TokenService
	audit    AuditReader
}

// NewAdminAPI creates a new AdminAPI. A nil audit reader leaves the audit
// endpoint unregistered.
func NewAdminAPI(sessions *services.SessionService, tokens *examsso.TokenService, audit AuditReader) *AdminAPI {
	return &AdminAPI{sessions: sessions, tokens: tokens, audit: audit}
}

// RegisterRoutes registers the admin routes.
func (a *AdminAPI) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/admin", ClientInfoMiddleware(), NoStoreMiddleware(), RequireBearer(a.tokens))
	{
		g.POST("/users/:id/revoke", RequirePermission(rbac.PermSessionsRevokeOthers), a.RevokeUserSessionsHandler)
		if a.audit != nil {
			g.GET("/audit", RequirePermission(rbac.PermAuditReadAll), a.AuditEventsHandler)
		}
	}
}

// RevokeUserSessionsHandler ends every session of a user.
func (a *AdminAPI) RevokeUserSessionsHandler(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, apierrors.NewInvalidRequest("user id must be a positive integer"))
		return
	}

	claims, _ := ClaimsFromContext(c)

	revoked, err := a.sessions.RevokeUserSessions(c.Request.Context(), claims.Subject, userID)
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, apierrors.NewNotFound("user not found"))
		return
	}
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.RevokeSessionsResponse{UserID: userID, Revoked: revoked})
}

// AuditEventsHandler lists the recent audit events of one actor.
func (a *AdminAPI) AuditEventsHandler(c *gin.Context) {
	actor := c.Query("actor")
	if actor == "" {
		c.JSON(http.StatusBadRequest, apierrors.NewInvalidRequest("actor is required"))
		return
	}

	limit := int64(defaultAuditLimit)
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, apierrors.NewInvalidRequest("limit must be a positive integer"))
			return
		}
		limit = min(n, maxAuditLimit)
	}

	events, err := a.audit.ListByActor(c.Request.Context(), actor, limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if events == nil {
		events = []domain.AuditEvent{}
	}

	c.JSON(http.StatusOK, api.AuditEventsResponse{Events: events})
}
