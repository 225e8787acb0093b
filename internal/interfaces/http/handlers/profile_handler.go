package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/aegis/internal/application/dto"
	"github.com/turtacn/aegis/internal/application/service"
	"github.com/turtacn/aegis/pkg/errors"
)

// ProfileHandler lets hosts feed security profile updates that happen outside an evaluation.
// ProfileHandler 接收评估之外的安全画像更新。
type ProfileHandler struct {
	profiles service.ProfileService
}

func NewProfileHandler(profiles service.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// RecordFailure handles POST /profiles/:identity_id/failures.
// RecordFailure 记录一次主认证失败。
func (h *ProfileHandler) RecordFailure(c *gin.Context) {
	var req dto.RecordFailureRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			sendError(c, errors.ErrValidation("malformed request body", map[string]interface{}{"cause": err.Error()}))
			return
		}
	}
	req.IdentityID = c.Param("identity_id")
	if req.SourceIP == "" {
		req.SourceIP = c.ClientIP()
	}

	if err := h.profiles.RecordFailure(c.Request.Context(), &req); err != nil {
		sendError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// EnrollFactor handles POST /profiles/:identity_id/factors.
// EnrollFactor 登记一个已注册的第二因素。
func (h *ProfileHandler) EnrollFactor(c *gin.Context) {
	var req dto.EnrollFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, errors.ErrValidation("malformed request body", map[string]interface{}{"cause": err.Error()}))
		return
	}
	req.IdentityID = c.Param("identity_id")

	if err := h.profiles.EnrollFactor(c.Request.Context(), &req); err != nil {
		sendError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
