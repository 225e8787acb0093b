package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/aegis/internal/application/dto"
	"github.com/turtacn/aegis/internal/application/service"
	"github.com/turtacn/aegis/pkg/errors"
)

// AuthorizeHandler serves access checks.
// AuthorizeHandler 处理访问授权检查。
type AuthorizeHandler struct {
	authz service.AuthorizationService
}

// NewAuthorizeHandler 创建授权处理器。
func NewAuthorizeHandler(authz service.AuthorizationService) *AuthorizeHandler {
	return &AuthorizeHandler{authz: authz}
}

// Authorize answers 200 for both outcomes; allowed carries the verdict.
// Authorize 返回访问检查结果。
func (h *AuthorizeHandler) Authorize(c *gin.Context) {
	var req dto.AuthorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, errors.ErrValidation("malformed request body", map[string]interface{}{"cause": err.Error()}))
		return
	}

	resp, err := h.authz.Authorize(c.Request.Context(), &req)
	if err != nil {
		sendError(c, err)
		return
	}
	sendSuccess(c, http.StatusOK, resp)
}
