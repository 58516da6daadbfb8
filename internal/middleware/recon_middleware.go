package middleware

import (
	"github.com/ardiannugra/kelasin/internal/gateway"
	"github.com/ardiannugra/kelasin/internal/reconcile"
	"github.com/gin-gonic/gin"
)

func ReconcilerMiddleware(engine *reconcile.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("reconcile_engine", engine)
		c.Next()
	}
}

func GetReconciler(c *gin.Context) *reconcile.Engine {
	engine, exists := c.Get("reconcile_engine")
	if !exists {
		return nil
	}
	return engine.(*reconcile.Engine)
}

func GatewayRegistryMiddleware(registry *gateway.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("gateway_registry", registry)
		c.Next()
	}
}

func GetGatewayRegistry(c *gin.Context) *gateway.Registry {
	registry, exists := c.Get("gateway_registry")
	if !exists {
		return nil
	}
	return registry.(*gateway.Registry)
}
