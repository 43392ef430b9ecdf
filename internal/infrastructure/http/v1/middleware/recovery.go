// Package middleware provides HTTP middleware components.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"tallybook/internal/core/apperror"
	"tallybook/pkg/logger"
)

// Recovery turns a panic into a 500. It sits outside ErrorHandler, so it renders the body itself.
// The stack goes to the log only.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.Error(c.Request.Context(), "panic in handler",
				"method", c.Request.Method,
				"route", c.FullPath(),
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			appErr := apperror.NewInternal(fmt.Errorf("panic: %v", rec))
			if rid := c.GetString("request_id"); rid != "" {
				appErr = appErr.WithDetail("request_id", rid)
			}
			status, body := render(c, appErr)
			failIdempotency(c, status, body)
			c.AbortWithStatusJSON(status, body)
		}()
		c.Next()
	}
}
