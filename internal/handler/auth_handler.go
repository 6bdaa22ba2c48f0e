package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/trannm/healthpulse/internal/config"
	"github.com/trannm/healthpulse/internal/model"
	"github.com/trannm/healthpulse/pkg/auth"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler issues and revokes operator tokens for the admin surface
type AuthHandler struct {
	jwtManager *auth.JWTManager
	rdb        *redis.Client
	admin      config.AdminConfig
	log        *zap.Logger
}

func NewAuthHandler(jwtManager *auth.JWTManager, rdb *redis.Client, admin config.AdminConfig, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		jwtManager: jwtManager,
		rdb:        rdb,
		admin:      admin,
		log:        log,
	}
}

// Login exchanges operator credentials for a JWT
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	if h.admin.PasswordHash == "" {
		c.JSON(http.StatusServiceUnavailable, model.ErrorResponse{Error: "Admin access not configured"})
		return
	}
	if req.Username != h.admin.Username ||
		bcrypt.CompareHashAndPassword([]byte(h.admin.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Invalid credentials"})
		return
	}

	token, err := h.jwtManager.GenerateToken(req.Username)
	if err != nil {
		h.log.Error("token generation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Could not issue token"})
		return
	}

	c.JSON(http.StatusOK, model.LoginResponse{Token: token})
}

// Logout revokes the presented token by blacklisting it until it would have
// expired anyway.
func (h *AuthHandler) Logout(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "No token to revoke"})
		return
	}

	token := parts[1]
	if err := h.rdb.Set(context.Background(), "blacklist:"+token, "1", h.jwtManager.Expiry()).Err(); err != nil {
		h.log.Error("token blacklist failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Could not revoke token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}
