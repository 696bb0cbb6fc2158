package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"mediapull/pkg/logger"
)

var httpLogger = logger.Get("HTTP")

// requestLogger replaces gin's default logger so request lines share the
// application log format.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := logger.INFO
		switch {
		case status >= 500:
			level = logger.ERROR
		case status >= 400:
			level = logger.WARNING
		}

		httpLogger.Emit(level, "%s %s -> %d (%v) %s\n", c.Request.Method, c.Request.URL.Path, status, time.Since(start).Round(time.Millisecond), c.ClientIP())
	}
}

// rateLimit rejects requests once limiter runs dry.
func rateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many download requests, try again later"})
			return
		}
		c.Next()
	}
}
