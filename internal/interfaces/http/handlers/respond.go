package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/aegis/internal/application/dto"
	"github.com/turtacn/aegis/pkg/constants"
)

// traceID prefers the active span's trace ID and falls back to the request ID.
func traceID(c *gin.Context) string {
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	if id, ok := c.Request.Context().Value(constants.ContextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

func sendSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, dto.SuccessResponse(data, traceID(c)))
}

func sendError(c *gin.Context, err error) {
	status, body := dto.ErrorResponse(err, traceID(c))
	c.AbortWithStatusJSON(status, body)
}

// NotFound answers unknown routes.
// NotFound 处理未知路由。
func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "The requested resource was not found."})
}
