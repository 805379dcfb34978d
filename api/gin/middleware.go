package ssogin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	examsso "github.com/pilab-dev/exam-sso"
	"github.com/pilab-dev/exam-sso/domain"
	apierrors "github.com/pilab-dev/exam-sso/errors"
	"github.com/pilab-dev/exam-sso/internal/auth/rbac"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const claimsKey = "auth-claims"

// extractBearer extracts the token from an Authorization header.
func extractBearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)

	return token, token != ""
}

// RequireBearer rejects requests without a valid access token and stores the
// validated claims in the gin context.
func RequireBearer(tokens *examsso.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := otel.Tracer("").Start(c.Request.Context(), "RequireBearer")
		defer span.End()

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Header("WWW-Authenticate", `Bearer`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierrors.NewInvalidToken("missing Authorization header"))

			return
		}

		token, ok := extractBearer(authHeader)
		if !ok {
			span.SetStatus(codes.Error, "invalid authorization header")
			c.Header("WWW-Authenticate", `Bearer error="invalid_request"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierrors.NewInvalidToken("invalid Authorization header"))

			return
		}

		claims, err := tokens.ValidateAccessToken(token)
		if err != nil {
			log.Debug().Ctx(ctx).Err(err).Msg("rejected access token")
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid token")
			c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierrors.NewInvalidToken("access token is invalid or expired"))

			return
		}

		span.SetAttributes(attribute.String("enduser.id", claims.Subject))
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// ClaimsFromContext returns the claims stored by RequireBearer.
func ClaimsFromContext(c *gin.Context) (*examsso.AccessClaims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*examsso.AccessClaims)

	return claims, ok
}

// RequirePermission rejects callers whose roles do not grant perm. It must run
// after RequireBearer.
func RequirePermission(perm string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierrors.NewInvalidToken("missing access token"))
			return
		}

		if !rbac.HasPermission(claims.Roles, perm) {
			log.Warn().Ctx(c.Request.Context()).
				Str("sub", claims.Subject).
				Strs("roles", claims.Roles).
				Str("required_permission", perm).
				Msg("Permission denied")
			c.AbortWithStatusJSON(http.StatusForbidden, apierrors.NewAccessDenied("insufficient permissions"))

			return
		}

		c.Next()
	}
}

// ClientInfoMiddleware attaches the caller's address and user agent to the
// request context for audit events.
func ClientInfoMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := domain.WithClientInfo(c.Request.Context(), domain.ClientInfo{
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
