// Package http exposes the auth backend over HTTP.
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lwb-io/authkit/core"
	"github.com/lwb-io/authkit/service"
)

// Diagnostic headers attached to failed registrations so clients can tell an
// expired puzzle from a failed one.
const (
	HeaderAuthReason    = "X-Auth-Reason"
	HeaderAltchaExpired = "X-Altcha-Expired"
)

// AuthHandlers contains HTTP handlers for the auth endpoints.
type AuthHandlers struct {
	authService *service.AuthService
}

// NewAuthHandlers creates new auth handlers.
func NewAuthHandlers(authService *service.AuthService) *AuthHandlers {
	return &AuthHandlers{authService: authService}
}

// Challenge issues a fresh proof-of-work puzzle.
func (h *AuthHandlers) Challenge(c *gin.Context) {
	challenge, err := h.authService.IssueChallenge()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create challenge"})
		return
	}
	c.JSON(http.StatusOK, challenge)
}

// RegisterPassword handles username/password registration. A solved
// proof-of-work payload is mandatory.
func (h *AuthHandlers) RegisterPassword(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
		Altcha   string `json:"altcha" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}

	user, token, err := h.authService.Register(c.Request.Context(), req.Username, req.Password, req.Altcha)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"user": user, "token": token})
	case errors.Is(err, core.ErrAltchaExpired):
		c.Header(HeaderAuthReason, "altcha_expired")
		c.Header(HeaderAltchaExpired, "1")
		c.JSON(http.StatusBadRequest, gin.H{"error": "altcha_failed"})
	case errors.Is(err, core.ErrAltchaFailed):
		c.Header(HeaderAuthReason, "altcha_failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "altcha_failed"})
	case errors.Is(err, core.ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{"error": "user_exists"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "register_failed"})
	}
}

// Login handles username/password login. Never demands a challenge.
func (h *AuthHandlers) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}

	user, token, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, core.ErrInvalidCreds) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "token": token})
}

// RegisterIdentity exchanges a verified identity assertion token for an
// application user (upsert by email).
func (h *AuthHandlers) RegisterIdentity(c *gin.Context) {
	var req struct {
		IDToken string `json:"idToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}

	user, created, err := h.authService.ExchangeIdentityToken(c.Request.Context(), req.IDToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_identity_token"})
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"user": user})
}

// ValidateSession confirms a password-issued session token.
func (h *AuthHandlers) ValidateSession(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}

	if _, err := h.authService.ValidateSession(c.Request.Context(), req.Token); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// ValidateIdentity confirms a federated identity token.
func (h *AuthHandlers) ValidateIdentity(c *gin.Context) {
	var req struct {
		IDToken string `json:"idToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}

	if err := h.authService.ValidateIdentityToken(c.Request.Context(), req.IDToken); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// Refresh rotates a session token.
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}

	token, session, err := h.authService.Refresh(c.Request.Context(), req.Token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expiresAt": session.ExpiresAt.Unix()})
}

// Revoke adds a token to the revocation set. Best-effort from the caller's
// point of view: sign-out never blocks on this.
func (h *AuthHandlers) Revoke(c *gin.Context) {
	var req struct {
		Token   string `json:"token"`
		IDToken string `json:"idToken"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	token := req.Token
	if token == "" {
		token = req.IDToken
	}
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}

	if err := h.authService.Revoke(c.Request.Context(), token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "revoke_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": true})
}

// Me returns the authenticated user's subject (set by the middleware).
func (h *AuthHandlers) Me(c *gin.Context) {
	userID, exists := c.Get(userIDKey)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user not found in context"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": userID})
}
