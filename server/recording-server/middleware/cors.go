package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewCORS reflects the request origin back to the browser extension and
// allows the simple methods and headers the upload and listing calls use.
// Credentials are never allowed.
func NewCORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	})
}
