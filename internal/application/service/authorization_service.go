package service

import (
	"context"

	"github.com/turtacn/aegis/internal/application/dto"
	"github.com/turtacn/aegis/internal/domain/models"
	domainservice "github.com/turtacn/aegis/internal/domain/service"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
	"github.com/turtacn/aegis/pkg/utils"
)

// AuthorizationService answers access checks for already authenticated subjects.
type AuthorizationService interface {
	Authorize(ctx context.Context, req *dto.AuthorizeRequest) (*dto.AuthorizeResponse, error)
}

type authorizationServiceImpl struct {
	authorizer *domainservice.Authorizer
	policies   map[string]domainservice.Predicate
	log        logger.Logger
}

// NewAuthorizationService creates an AuthorizationService. Named policies are
// the only ABAC predicates a request can reference.
func NewAuthorizationService(authorizer *domainservice.Authorizer, policies map[string]domainservice.Predicate, log logger.Logger) AuthorizationService {
	return &authorizationServiceImpl{authorizer: authorizer, policies: policies, log: log.WithComponent("AuthorizationService")}
}

func (s *authorizationServiceImpl) Authorize(ctx context.Context, req *dto.AuthorizeRequest) (*dto.AuthorizeResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	preds := make([]domainservice.Predicate, 0, len(req.Policies))
	for _, name := range req.Policies {
		p, ok := s.policies[name]
		if !ok {
			return nil, errors.ErrValidation("unknown policy", map[string]interface{}{"policy": name})
		}
		preds = append(preds, p)
	}

	sub := domainservice.Subject{
		IdentityID:     req.Subject.IdentityID,
		Email:          req.Subject.Email,
		SourceIP:       req.Subject.SourceIP,
		OrganizationID: req.Subject.OrganizationID,
		Roles:          req.Subject.Roles,
		Permissions:    models.ResolvedPermissions{Permissions: utils.RemoveDuplicates(req.Subject.Permissions)},
		Attributes:     req.Subject.Attributes,
		RiskScore:      req.Subject.RiskScore,
	}
	res := domainservice.Resource{
		Type:           req.Resource.Type,
		ID:             req.Resource.ID,
		OrganizationID: req.Resource.OrganizationID,
		OwnerID:        req.Resource.OwnerID,
		Attributes:     req.Resource.Attributes,
	}

	allowed := s.authorizer.Check(ctx, sub, res, domainservice.AccessRequirement{
		Action:      req.Action,
		Permissions: req.Permissions,
		RequireAll:  req.RequireAll,
		Roles:       req.Roles,
		Policies:    preds,
	})
	return &dto.AuthorizeResponse{Allowed: allowed, Action: req.Action}, nil
}
