package ssogin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	examsso "github.com/pilab-dev/exam-sso"
	"github.com/pilab-dev/exam-sso/api"
	"github.com/pilab-dev/exam-sso/domain"
	apierrors "github.com/pilab-dev/exam-sso/errors"
	"github.com/pilab-dev/exam-sso/internal/federation"
	"github.com/pilab-dev/exam-sso/services"
	"github.com/rs/zerolog/log"
)

// SessionAPI exposes the session service over HTTP.
type SessionAPI struct {
	sessions  *services.SessionService
	tokens    *examsso.TokenService
	signer    *examsso.TokenSigner
	providers *federation.Service
}

// NewSessionAPI creates a new SessionAPI.
func NewSessionAPI(
	sessions *services.SessionService,
	tokens *examsso.TokenService,
	signer *examsso.TokenSigner,
	providers *federation.Service,
) *SessionAPI {
	return &SessionAPI{
		sessions:  sessions,
		tokens:    tokens,
		signer:    signer,
		providers: providers,
	}
}

// RegisterRoutes registers the session routes.
func (a *SessionAPI) RegisterRoutes(r gin.IRouter) {
	r.GET("/.well-known/jwks.json", a.JWKSHandler)

	g := r.Group("/auth", ClientInfoMiddleware())
	{
		tokens := g.Group("", NoStoreMiddleware())
		tokens.POST("/login", a.LoginHandler)
		tokens.POST("/refresh", a.RefreshHandler)
		tokens.GET("/sso/:provider/callback", a.SSOCallbackHandler)
		// Providers using response_mode=form_post.
		tokens.POST("/sso/:provider/callback", a.SSOCallbackHandler)

		g.POST("/logout", a.LogoutHandler)
		g.GET("/sso", a.ProvidersHandler)
		g.GET("/sso/:provider/login", a.SSOLoginHandler)
		g.GET("/session", RequireBearer(a.tokens), a.SessionHandler)
	}
}

// LoginHandler authenticates with email and password.
func (a *SessionAPI) LoginHandler(c *gin.Context) {
	var req api.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierrors.NewInvalidRequest("malformed login request"))
		return
	}

	pair, err := a.sessions.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.NewTokenResponse(pair))
}

// RefreshHandler rotates a refresh token. Clients must not retry a failed
// refresh with the same token: the second attempt is indistinguishable from a
// replay and revokes the session.
func (a *SessionAPI) RefreshHandler(c *gin.Context) {
	var req api.RefreshRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierrors.NewInvalidRequest("malformed refresh request"))
		return
	}

	pair, err := a.sessions.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.NewTokenResponse(pair))
}

// LogoutHandler revokes the session of a refresh token. It answers 204 for
// unknown and already revoked tokens too.
func (a *SessionAPI) LogoutHandler(c *gin.Context) {
	var req api.LogoutRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierrors.NewInvalidRequest("malformed logout request"))
		return
	}

	if err := a.sessions.Logout(c.Request.Context(), req.RefreshToken, req.AllSessions); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ProvidersHandler lists the configured identity providers.
func (a *SessionAPI) ProvidersHandler(c *gin.Context) {
	c.JSON(http.StatusOK, api.ProvidersResponse{Providers: a.providers.ProviderNames()})
}

// SSOLoginHandler starts an SSO login. Browsers pass redirect=true to be sent
// to the provider directly; API clients get the URL as JSON.
func (a *SessionAPI) SSOLoginHandler(c *gin.Context) {
	authURL, err := a.sessions.InitiateSSO(c.Request.Context(), c.Param("provider"), c.Query("redirect_uri"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	if redirect, _ := strconv.ParseBool(c.Query("redirect")); redirect {
		c.Redirect(http.StatusFound, authURL)
		return
	}

	c.JSON(http.StatusOK, api.SSOInitResponse{AuthorizationURL: authURL})
}

type ssoCallbackParams struct {
	Code             string `form:"code"`
	State            string `form:"state"`
	Error            string `form:"error"`
	ErrorDescription string `form:"error_description"`
	RedirectURI      string `form:"redirect_uri"`
}

// SSOCallbackHandler receives the provider's redirect and completes the login.
func (a *SessionAPI) SSOCallbackHandler(c *gin.Context) {
	var params ssoCallbackParams
	if err := c.ShouldBind(&params); err != nil {
		c.JSON(http.StatusBadRequest, apierrors.NewInvalidRequest("malformed callback"))
		return
	}

	login, err := a.sessions.HandleSSOCallback(c.Request.Context(), c.Param("provider"), domain.SSOCallbackData{
		Code:             params.Code,
		State:            params.State,
		Error:            params.Error,
		ErrorDescription: params.ErrorDescription,
		RedirectURI:      params.RedirectURI,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := api.NewTokenResponse(login.Pair)
	resp.RedirectURI = login.RedirectURI

	c.JSON(http.StatusOK, resp)
}

// SessionHandler describes the bearer of the access token.
func (a *SessionAPI) SessionHandler(c *gin.Context) {
	claims, ok := ClaimsFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, apierrors.NewInvalidToken("missing access token"))
		return
	}

	c.JSON(http.StatusOK, api.NewSessionResponse(claims))
}

// JWKSHandler publishes the RS256 verification keys.
func (a *SessionAPI) JWKSHandler(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=300")
	c.JSON(http.StatusOK, a.signer.JWKS())
}

func abortWithError(c *gin.Context, err error) {
	status, body := apierrors.FromError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Int("status", status).Msg("Request failed")
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}
