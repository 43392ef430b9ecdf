package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tallybook/internal/core/apperror"
	"tallybook/pkg/logger"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error     string         `json:"error"`
	Code      string         `json:"code"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		// If response already written by handler, do not override it.
		if c.Writer.Written() {
			return
		}

		status, body := render(c, err)
		failIdempotency(c, status, body)
		c.JSON(status, body)
	}
}

func render(c *gin.Context, err error) (int, ErrorBody) {
	ctx := c.Request.Context()

	appErr, ok := apperror.AsAppError(err)
	if !ok {
		logger.Error(ctx, "unhandled error", "error", err)
		appErr = apperror.NewInternal(err).WithDetail("request_id", c.GetString("request_id"))
	} else if appErr.Err != nil {
		logger.Error(ctx, "request error",
			"code", appErr.Code,
			"cause", appErr.Err,
		)
	}

	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return status, ErrorBody{
		Error:     appErr.Message,
		Code:      appErr.Code,
		Retryable: appErr.Retryable,
		Details:   appErr.Details,
	}
}

// failIdempotency stores the exact error response for replay (best-effort).
func failIdempotency(c *gin.Context, status int, body ErrorBody) {
	key, store, ok := IdempotencyFrom(c)
	if !ok {
		return
	}
	if err := store.FailKey(c.Request.Context(), key, status, "application/json", body); err != nil {
		logger.Warn(c.Request.Context(), "idempotency fail key", "key", key, "error", err)
	}
}
