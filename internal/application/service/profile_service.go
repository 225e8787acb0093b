package service

import (
	"context"

	"github.com/turtacn/aegis/internal/application/dto"
	"github.com/turtacn/aegis/internal/domain/models"
	domainservice "github.com/turtacn/aegis/internal/domain/service"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/logger"
	"github.com/turtacn/aegis/pkg/utils"
)

// ProfileService records the profile events that happen outside an evaluation:
// failed primary authentications and second-factor enrollments.
type ProfileService interface {
	RecordFailure(ctx context.Context, req *dto.RecordFailureRequest) error
	EnrollFactor(ctx context.Context, req *dto.EnrollFactorRequest) error
}

type profileServiceImpl struct {
	store domainservice.ProfileStore
	audit domainservice.AuditEmitter
	log   logger.Logger
}

// NewProfileService creates a ProfileService.
func NewProfileService(store domainservice.ProfileStore, audit domainservice.AuditEmitter, log logger.Logger) ProfileService {
	return &profileServiceImpl{store: store, audit: audit, log: log.WithComponent("ProfileService")}
}

func (s *profileServiceImpl) RecordFailure(ctx context.Context, req *dto.RecordFailureRequest) error {
	if err := utils.ValidateStruct(req); err != nil {
		return err
	}
	if err := s.store.RecordFailure(ctx, req.IdentityID); err != nil {
		s.log.Error(ctx, "Failed to record failed attempt", err, logger.String("identity_id", req.IdentityID))
		return err
	}

	event := models.NewAuditEvent(constants.AuditEventLoginFailed, constants.OutcomeFailure).
		WithActor(req.IdentityID, "", req.SourceIP).
		WithOrganization(req.OrganizationID).
		WithDetails(map[string]interface{}{"reason": req.Reason})
	s.audit.EmitAsync(*event)
	return nil
}

func (s *profileServiceImpl) EnrollFactor(ctx context.Context, req *dto.EnrollFactorRequest) error {
	if err := utils.ValidateStruct(req); err != nil {
		return err
	}
	if err := s.store.EnrollFactor(ctx, req.IdentityID, req.Factor); err != nil {
		s.log.Error(ctx, "Failed to enroll factor", err,
			logger.String("identity_id", req.IdentityID),
			logger.String("factor", req.Factor))
		return err
	}

	event := models.NewAuditEvent(constants.AuditEventMFAEnrolled, constants.OutcomeSuccess).
		WithActor(req.IdentityID, "", "").
		WithOrganization(req.OrganizationID).
		WithDetails(map[string]interface{}{"factor": req.Factor})
	s.audit.EmitAsync(*event)
	return nil
}
