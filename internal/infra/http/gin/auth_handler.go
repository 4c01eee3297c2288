package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"nestly/internal/app/services/auth"
	domainchat "nestly/internal/domain/chat"
	domainidentity "nestly/internal/domain/identity"
)

// AuthHTTP exposes the session endpoints.
type AuthHTTP interface {
	Register(c *gin.Context)
	Login(c *gin.Context)
	Logout(c *gin.Context)
	Me(c *gin.Context)
}

type AuthHandler struct {
	Service *auth.Service
	Logger  *slog.Logger
}

type userPayload struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

func toUserPayload(u *domainidentity.User) userPayload {
	return userPayload{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      string(u.Role),
		AvatarURL: u.AvatarURL,
	}
}

func (h AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.Service.Register(c.Request.Context(), auth.RegisterParams{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     domainchat.Role(req.Role),
	})
	if err != nil {
		h.respondAuthError(c, err, "register")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": toUserPayload(result.User), "token": result.Token})
}

func (h AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.Service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondAuthError(c, err, "login")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": toUserPayload(result.User), "token": result.Token})
}

func (h AuthHandler) Logout(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing bearer token"})
		return
	}
	if err := h.Service.Logout(c.Request.Context(), token); err != nil {
		h.respondAuthError(c, err, "logout")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h AuthHandler) Me(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, userPayload{
		ID:        p.ID,
		Email:     p.Email,
		Name:      p.Name,
		Role:      string(p.Role),
		AvatarURL: p.AvatarURL,
	})
}

func (h AuthHandler) respondAuthError(c *gin.Context, err error, action string) {
	if h.Logger != nil {
		h.Logger.Warn("auth call failed", "action", action, "error", err)
	}
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, domainidentity.ErrEmailAlreadyUsed):
		c.JSON(http.StatusConflict, gin.H{"error": "email already in use"})
	case errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, domainidentity.ErrEmailRequired),
		errors.Is(err, domainidentity.ErrNameRequired),
		errors.Is(err, domainidentity.ErrTokenRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domainidentity.ErrSessionNotFound),
		errors.Is(err, domainidentity.ErrSessionExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "auth unavailable"})
	}
}

var _ AuthHTTP = (*AuthHandler)(nil)
