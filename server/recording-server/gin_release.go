//go:build release
// +build release

package main

import (
	"github.com/gin-gonic/gin"
	"github.com/legendsaurav/scramer/server/core/config"
)

// initializeGin sets up Gin in release mode for production builds
func initializeGin(cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Configure trusted proxies from config; without any, trust none
	if len(cfg.TrustedProxies) > 0 {
		router.SetTrustedProxies(cfg.TrustedProxies)
	} else {
		router.SetTrustedProxies(nil)
	}

	return router
}
