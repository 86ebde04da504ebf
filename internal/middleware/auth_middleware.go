package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/farellandr/lunchticket/internal/helpers"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const AdminRole = "admin"

// JWTAuthMiddleware accepts HS256 bearer tokens carrying role=admin.
func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			helpers.AbortWithError(c, http.StatusServiceUnavailable, "Admin API is not configured.")
			return
		}

		header := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			helpers.AbortWithError(c, http.StatusUnauthorized, "Authorization header is missing or invalid.")
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			helpers.AbortWithError(c, http.StatusUnauthorized, "Invalid or expired token.")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			helpers.AbortWithError(c, http.StatusUnauthorized, "Invalid token claims.")
			return
		}
		role, _ := claims["role"].(string)
		if role != AdminRole {
			helpers.AbortWithError(c, http.StatusForbidden, "Admin access required.")
			return
		}

		c.Set("role", role)
		if sub, err := claims.GetSubject(); err == nil {
			c.Set("subject", sub)
		}
		c.Next()
	}
}
