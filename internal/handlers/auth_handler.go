package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/farellandr/lunchticket/internal/helpers"
)

const tokenTTL = 24 * time.Hour

type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

type AuthConfig struct {
	JWTSecret         string
	AdminPasswordHash string
}

// Login exchanges the admin password for a bearer token.
func Login(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
			return
		}

		if cfg.JWTSecret == "" || cfg.AdminPasswordHash == "" {
			helpers.RespondWithError(c, http.StatusServiceUnavailable, "Admin login is not configured.")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(cfg.AdminPasswordHash), []byte(req.Password)); err != nil {
			helpers.RespondWithError(c, http.StatusUnauthorized, "Invalid credentials.")
			return
		}

		now := time.Now()
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":  "admin",
			"jti":  uuid.New().String(),
			"role": "admin",
			"iat":  now.Unix(),
			"exp":  now.Add(tokenTTL).Unix(),
		})

		tokenString, err := token.SignedString([]byte(cfg.JWTSecret))
		if err != nil {
			helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to generate token.")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":      tokenString,
			"expires_at": now.Add(tokenTTL).UTC(),
		})
	}
}
