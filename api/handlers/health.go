package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imsportal/filingstack/interfaces"
)

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Status reports whether a processing pass is running and how the last one
// went.
func Status(processor interfaces.EmailProcessor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, processor.Status())
	}
}
