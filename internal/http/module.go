package http

import (
	"leadcrm_backend/platform/config"
	"leadcrm_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// Module represents a bounded context that can register its HTTP routes.
type Module interface {
	// Name returns the module's identifier for logging purposes.
	Name() string
	// RegisterRoutes mounts the module's routes on the provided router groups.
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext provides shared groups and dependencies for module route
// registration.
type RouterContext struct {
	Engine *gin.Engine
	// API is the unauthenticated /api group.
	API *gin.RouterGroup
	// Protected is /api behind JWT auth.
	Protected *gin.RouterGroup
	// Admin is /api/admin behind JWT auth and the admin role.
	Admin  *gin.RouterGroup
	Config config.JWTConfig
	Logger *logger.Logger
}
