package middleware

import (
	"github.com/farellandr/lunchticket/internal/handlers"
	"github.com/gin-gonic/gin"
)

func StoreMiddleware(ledger handlers.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(handlers.StoreKey, ledger)
		c.Next()
	}
}
