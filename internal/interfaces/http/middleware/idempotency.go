package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/logger"
)

const replayKeyPrefix = "aegis:event:"

// EventReplayGuard returns a Gin middleware that rejects a second evaluation of the same
// authentication event. The host sends the event ID in the X-Event-ID header; the first
// request claims it in Redis with SETNX for the given window, any later one gets 409.
// Requests without the header are not guarded. A zero window disables the guard.
// EventReplayGuard 返回一个 Gin 中间件，拒绝对同一认证事件的重复评估。
// Redis 不可用时放行请求。
func EventReplayGuard(redisClient redis.UniversalClient, window time.Duration, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if redisClient == nil || window <= 0 {
			c.Next()
			return
		}

		eventID := strings.TrimSpace(c.GetHeader(constants.HeaderEventID))
		if eventID == "" {
			c.Next()
			return
		}
		if len(eventID) > 64 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "event id too long"})
			return
		}

		isNew, err := redisClient.SetNX(c.Request.Context(), replayKeyPrefix+eventID, 1, window).Result()
		if err != nil {
			log.Error(c.Request.Context(), "Redis check for event replay failed", err, logger.String("event_id", eventID))
			c.Next() // fail open
			return
		}

		if !isNew {
			log.Warn(c.Request.Context(), "Replayed authentication event rejected", logger.String("event_id", eventID))
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "event_already_evaluated", "error_description": "This event has already been evaluated."})
			return
		}

		c.Next()
	}
}
