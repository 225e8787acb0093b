package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/pkg/errors"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuditQuery reads stored audit events. Only the database sink implements it.
// AuditQuery 读取已存储的审计事件。
type AuditQuery interface {
	ListByActor(ctx context.Context, actorID string, limit int) ([]models.AuditEvent, error)
}

// AuditHandler serves the audit event query.
// AuditHandler 提供审计事件查询接口
type AuditHandler struct {
	query AuditQuery
}

// NewAuditHandler 创建审计查询处理器。
func NewAuditHandler(query AuditQuery) *AuditHandler {
	return &AuditHandler{query: query}
}

// ListEvents handles GET /audit/events?actor_id=&limit=.
// ListEvents 按主体分页列出审计事件。
func (h *AuditHandler) ListEvents(c *gin.Context) {
	actorID := c.Query("actor_id")
	if actorID == "" {
		sendError(c, errors.ErrValidation("actor_id is required", nil))
		return
	}

	limit := defaultAuditLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			sendError(c, errors.ErrValidation("limit must be a positive integer", map[string]interface{}{"limit": raw}))
			return
		}
		limit = min(n, maxAuditLimit)
	}

	events, err := h.query.ListByActor(c.Request.Context(), actorID, limit)
	if err != nil {
		sendError(c, err)
		return
	}
	if events == nil {
		events = []models.AuditEvent{}
	}
	sendSuccess(c, http.StatusOK, gin.H{"events": events, "count": len(events)})
}
