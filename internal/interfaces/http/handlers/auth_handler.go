package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/aegis/internal/application/dto"
	"github.com/turtacn/aegis/internal/application/service"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/utils"
)

// AuthHandler handles HTTP requests for authentication event evaluation.
// AuthHandler 处理认证事件评估请求。
type AuthHandler struct {
	pipeline service.AuthPipelineService
}

// NewAuthHandler creates a new AuthHandler.
// NewAuthHandler 创建认证处理器。
func NewAuthHandler(pipeline service.AuthPipelineService) *AuthHandler {
	return &AuthHandler{pipeline: pipeline}
}

// Evaluate runs one authentication event through the pipeline. A block is a
// normal answer: the response is 200 and the host reads decision.action.
// Evaluate 将一次认证事件交给决策管道评估。
func (h *AuthHandler) Evaluate(c *gin.Context) {
	var req dto.AuthenticationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, errors.ErrValidation("malformed request body", map[string]interface{}{"cause": err.Error()}))
		return
	}
	if req.EventID == "" {
		req.EventID = c.GetHeader(constants.HeaderEventID)
	}
	if err := utils.ValidateStruct(&req); err != nil {
		sendError(c, err)
		return
	}

	result := h.pipeline.Evaluate(c.Request.Context(), &req)
	sendSuccess(c, http.StatusOK, result)
}
