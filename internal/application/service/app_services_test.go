package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/aegis/internal/application/dto"
	domainservice "github.com/turtacn/aegis/internal/domain/service"
	"github.com/turtacn/aegis/internal/domain/service/mocks"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
)

func newAuthorizationService(audit domainservice.AuditEmitter) AuthorizationService {
	authorizer := domainservice.NewAuthorizer(constants.PermSystemAdmin, audit, nil, logger.NewNoopLogger())
	return NewAuthorizationService(authorizer, domainservice.NamedPolicies(50), logger.NewNoopLogger())
}

func authorizeRequest() *dto.AuthorizeRequest {
	return &dto.AuthorizeRequest{
		Subject: dto.SubjectDTO{
			IdentityID:     "user-1",
			OrganizationID: "org-1",
			Roles:          []string{"member"},
			Permissions:    []string{constants.PermReadTeams},
			RiskScore:      20,
		},
		Resource:    dto.ResourceDTO{Type: "team", ID: "t1", OrganizationID: "org-1"},
		Action:      "read",
		Permissions: []string{constants.PermReadTeams},
		Policies:    []string{"same_organization", "low_risk"},
	}
}

func TestAuthorize_Granted(t *testing.T) {
	audit := &mocks.RecordingEmitter{}
	resp, err := newAuthorizationService(audit).Authorize(context.Background(), authorizeRequest())
	require.NoError(t, err)
	assert.True(t, resp.Allowed)
	assert.Empty(t, audit.Events())
}

func TestAuthorize_CrossOrganizationDenied(t *testing.T) {
	audit := &mocks.RecordingEmitter{}
	req := authorizeRequest()
	req.Resource.OrganizationID = "org-2"

	resp, err := newAuthorizationService(audit).Authorize(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, resp.Allowed)
	require.Len(t, audit.Async, 1)
	assert.Equal(t, constants.AuditEventAccessDenied, audit.Async[0].EventType)
}

func TestAuthorize_BypassAuditedSynchronously(t *testing.T) {
	audit := &mocks.RecordingEmitter{}
	req := authorizeRequest()
	req.Resource.OrganizationID = "org-2"
	req.Subject.Permissions = []string{constants.PermSystemAdmin}

	resp, err := newAuthorizationService(audit).Authorize(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.Allowed)
	require.Len(t, audit.Sync, 1)
	assert.Equal(t, constants.AuditEventAdminOverride, audit.Sync[0].EventType)
}

func TestAuthorize_UnknownPolicyRejected(t *testing.T) {
	req := authorizeRequest()
	req.Policies = []string{"is_tuesday"}
	_, err := newAuthorizationService(&mocks.RecordingEmitter{}).Authorize(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestAuthorize_InvalidRequest(t *testing.T) {
	req := authorizeRequest()
	req.Subject.IdentityID = ""
	_, err := newAuthorizationService(&mocks.RecordingEmitter{}).Authorize(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestProfileService_RecordFailure(t *testing.T) {
	store := new(mocks.MockProfileStore)
	audit := &mocks.RecordingEmitter{}
	store.On("RecordFailure", mock.Anything, "user-1").Return(nil)

	svc := NewProfileService(store, audit, logger.NewNoopLogger())
	err := svc.RecordFailure(context.Background(), &dto.RecordFailureRequest{IdentityID: "user-1", SourceIP: "203.0.113.5", Reason: "bad_password"})
	require.NoError(t, err)

	store.AssertExpectations(t)
	require.Len(t, audit.Async, 1)
	assert.Equal(t, constants.AuditEventLoginFailed, audit.Async[0].EventType)
	assert.Equal(t, "203.0.113.5", audit.Async[0].ActorIP)
}

func TestProfileService_RecordFailureStoreError(t *testing.T) {
	store := new(mocks.MockProfileStore)
	audit := &mocks.RecordingEmitter{}
	store.On("RecordFailure", mock.Anything, "user-1").Return(errors.ErrRetriesExhausted("profile.record_failure", 3, nil))

	err := NewProfileService(store, audit, logger.NewNoopLogger()).
		RecordFailure(context.Background(), &dto.RecordFailureRequest{IdentityID: "user-1"})
	require.Error(t, err)
	assert.Empty(t, audit.Events())
}

func TestProfileService_EnrollFactor(t *testing.T) {
	store := new(mocks.MockProfileStore)
	audit := &mocks.RecordingEmitter{}
	store.On("EnrollFactor", mock.Anything, "user-1", "webauthn-platform").Return(nil)

	err := NewProfileService(store, audit, logger.NewNoopLogger()).
		EnrollFactor(context.Background(), &dto.EnrollFactorRequest{IdentityID: "user-1", Factor: "webauthn-platform"})
	require.NoError(t, err)
	require.Len(t, audit.Async, 1)
	assert.Equal(t, constants.AuditEventMFAEnrolled, audit.Async[0].EventType)
}

func TestProfileService_EnrollFactorRequiresFactor(t *testing.T) {
	store := new(mocks.MockProfileStore)
	err := NewProfileService(store, &mocks.RecordingEmitter{}, logger.NewNoopLogger()).
		EnrollFactor(context.Background(), &dto.EnrollFactorRequest{IdentityID: "user-1"})
	require.Error(t, err)
	store.AssertNotCalled(t, "EnrollFactor", mock.Anything, mock.Anything, mock.Anything)
}
