// Package service provides application-level services that orchestrate domain services and infrastructure ports
package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/aegis/internal/application/dto"
	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/domain/models"
	domainservice "github.com/turtacn/aegis/internal/domain/service"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
)

// AuthPipelineService evaluates authentication events.
type AuthPipelineService interface {
	// Evaluate never fails: internal errors degrade to an allow with minimal claims.
	Evaluate(ctx context.Context, req *dto.AuthenticationRequest) *dto.AuthenticationResult
}

// PipelineDeps are the ports the pipeline talks to. Directory may be nil when
// no directory service is configured.
type PipelineDeps struct {
	Profiles    domainservice.ProfileStore
	Directory   domainservice.DirectoryService
	Permissions *domainservice.PermissionResolver
	Audit       domainservice.AuditEmitter
	Metrics     domainservice.Metrics
	Tracer      trace.Tracer
}

// evaluators are rebuilt as a unit on configuration reload.
type evaluators struct {
	risk      *domainservice.RiskEngine
	anomalies *domainservice.AnomalyDetector
	decisions *domainservice.DecisionMachine
	projector *domainservice.ClaimsProjector
}

// AuthPipeline runs one authentication event through scoring, the decision
// machine, concurrent enrichment and claims projection.
type AuthPipeline struct {
	deps   PipelineDeps
	evals  atomic.Pointer[evaluators]
	budget atomic.Int64
	log    logger.Logger
	now    func() time.Time
}

var _ AuthPipelineService = (*AuthPipeline)(nil)

// NewAuthPipeline creates the pipeline from cfg.
func NewAuthPipeline(cfg *config.Config, deps PipelineDeps, log logger.Logger) *AuthPipeline {
	if deps.Metrics == nil {
		deps.Metrics = domainservice.NoopMetrics{}
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("aegis/pipeline")
	}
	p := &AuthPipeline{deps: deps, log: log.WithComponent("AuthPipeline"), now: time.Now}
	p.Reconfigure(cfg)
	return p
}

// Reconfigure swaps in evaluators built from cfg. Events already running keep
// the evaluators they started with.
func (p *AuthPipeline) Reconfigure(cfg *config.Config) {
	p.evals.Store(&evaluators{
		risk:      domainservice.NewRiskEngine(cfg.Risk),
		anomalies: domainservice.NewAnomalyDetector(),
		decisions: domainservice.NewDecisionMachine(cfg.Decision, p.log),
		projector: domainservice.NewClaimsProjector(cfg.Claims, p.log),
	})
	budget := cfg.Pipeline.EventBudget
	if budget <= 0 {
		budget = constants.DefaultEventBudget
	}
	p.budget.Store(int64(budget))
}

// Evaluate runs the event end to end within the event budget.
func (p *AuthPipeline) Evaluate(ctx context.Context, req *dto.AuthenticationRequest) (result *dto.AuthenticationResult) {
	start := p.now()
	evals := p.evals.Load()

	var (
		s       models.SessionContext
		eventID string
	)
	if req != nil {
		s, eventID = req.Session, req.EventID
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = start.UTC()
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}

	ctx = context.WithValue(ctx, constants.ContextKeyEventID, eventID)
	ctx = context.WithValue(ctx, constants.ContextKeyIdentityID, s.IdentityID)
	ctx, cancel := context.WithTimeout(ctx, time.Duration(p.budget.Load()))
	defer cancel()
	ctx, span := p.deps.Tracer.Start(ctx, "pipeline.evaluate", trace.WithAttributes(
		attribute.String("event_id", eventID),
		attribute.String("organization_id", s.OrganizationID),
	))
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			err := errors.ErrInternal(fmt.Sprintf("pipeline panic: %v", rec), nil)
			p.log.Error(ctx, "authentication pipeline failed, allowing with minimal claims", err,
				logger.String("stack", string(debug.Stack())))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			result = p.degraded(ctx, evals, s, eventID, err)
		}
		elapsed := p.now().Sub(start)
		result.DurationMillis = elapsed.Milliseconds()
		p.deps.Metrics.RecordDecision(string(result.Decision.Action), result.Decision.Reason)
		p.deps.Metrics.RecordPipelineDuration(string(result.Decision.Action), elapsed)
		span.SetAttributes(
			attribute.String("decision", string(result.Decision.Action)),
			attribute.Int("risk_score", result.Risk.Score),
			attribute.Bool("partial_enrichment", result.PartialEnrichment),
		)
	}()

	if req == nil {
		return p.degraded(ctx, evals, s, eventID, errors.ErrValidation("nil authentication request", nil))
	}

	profile := p.loadProfile(ctx, s.IdentityID)
	risk := evals.risk.Score(s, profile)
	anomalies := evals.anomalies.Detect(s, profile)
	p.deps.Metrics.RecordRiskScore(risk.Score)
	for _, a := range anomalies {
		p.deps.Metrics.RecordAnomaly(string(a.Type))
	}
	decision := evals.decisions.Decide(s, risk, profile)

	result = &dto.AuthenticationResult{
		EventID:   eventID,
		Decision:  decision,
		Risk:      risk,
		Anomalies: anomalies,
	}

	if decision.IsBlocked() {
		p.log.Warn(ctx, "authentication blocked",
			logger.String("reason", decision.Reason),
			logger.Int("risk_score", risk.Score),
			logger.Strings("anomalies", models.AnomalyTypes(anomalies)))
		event := models.NewAuditEvent(constants.AuditEventLoginBlocked, constants.OutcomeFailure).
			WithActor(s.IdentityID, s.Email, s.SourceIP).
			WithOrganization(s.OrganizationID).
			WithTarget("session", eventID).
			WithDetails(auditDetails(eventID, s, risk, anomalies, decision))
		p.deps.Audit.EmitSync(ctx, *event)
		return result
	}

	directory, perms := p.enrich(ctx, s)
	partial := directory.Degraded || perms.Strategy != p.deps.Permissions.Primary()
	if ctx.Err() != nil {
		p.log.Warn(ctx, "event budget exhausted during enrichment, using defaults")
		partial = true
	}

	result.Claims = evals.projector.Project(domainservice.ProjectionInput{
		Session:           s,
		Risk:              risk,
		Decision:          decision,
		Directory:         directory,
		Permissions:       perms,
		GeoRestricted:     evals.decisions.GeoRestricted(s),
		PartialEnrichment: partial,
	})
	result.Permissions = &perms
	result.PartialEnrichment = partial

	p.appendHistory(ctx, s, risk.Score, decision.Action)

	p.deps.Audit.EmitAsync(*outcomeEvent(eventID, s, risk, anomalies, decision))

	p.log.Info(ctx, "authentication evaluated",
		logger.String("action", string(decision.Action)),
		logger.Int("risk_score", risk.Score),
		logger.Bool("partial_enrichment", partial))
	return result
}

// loadProfile returns the stored profile or an empty one. Store failures are
// not fatal: the event is scored as if the identity had no history.
func (p *AuthPipeline) loadProfile(ctx context.Context, identityID string) *models.SecurityProfile {
	profile, err := p.deps.Profiles.Get(ctx, identityID)
	switch {
	case err == nil && profile != nil:
		return profile
	case errors.IsNotFound(err):
		p.log.Debug(ctx, "no stored security profile")
	case err != nil:
		p.log.Warn(ctx, "profile lookup failed, scoring with an empty profile", logger.Err(err))
		p.deps.Metrics.RecordFallback("profile", "empty_profile")
	}
	return models.NewSecurityProfile(identityID)
}

// appendHistory records the event in the identity's bounded history. It runs
// detached from the event budget so a slow enrichment does not drop the update.
func (p *AuthPipeline) appendHistory(ctx context.Context, s models.SessionContext, score int, action constants.DecisionAction) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DefaultProfileWriteTimeout)
	defer cancel()
	if err := p.deps.Profiles.Append(writeCtx, s.IdentityID, models.NewProfileUpdate(s, score, action)); err != nil {
		p.log.Warn(ctx, "failed to append profile history", logger.Err(err))
	}
}

// enrich fetches teams, department and permissions concurrently. Every
// branch degrades on its own; none of them aborts the others.
func (p *AuthPipeline) enrich(ctx context.Context, s models.SessionContext) (models.DirectoryData, models.ResolvedPermissions) {
	ctx, span := p.deps.Tracer.Start(ctx, "pipeline.enrich")
	defer span.End()

	var (
		teams             []models.TeamMembership
		dept              *models.DepartmentInfo
		perms             models.ResolvedPermissions
		teamsErr, deptErr error
		permsErr          error
	)

	var g errgroup.Group
	if p.deps.Directory != nil {
		g.Go(p.branch(ctx, "directory.teams", &teamsErr, func() (err error) {
			teams, err = p.deps.Directory.GetTeams(ctx, s.IdentityID, s.OrganizationID)
			return err
		}))
		g.Go(p.branch(ctx, "directory.department", &deptErr, func() (err error) {
			dept, err = p.deps.Directory.GetDepartment(ctx, s.IdentityID, s.OrganizationID)
			return err
		}))
	}
	known := p.cachedTeams(s)
	g.Go(p.branch(ctx, "permissions", &permsErr, func() error {
		perms = p.deps.Permissions.Resolve(ctx, s, known)
		return nil
	}))
	_ = g.Wait()

	directory := models.DirectoryData{Teams: teams, Department: dept}
	if teamsErr != nil {
		p.log.Warn(ctx, "team lookup failed, using empty team list", logger.Err(teamsErr))
		p.deps.Metrics.RecordFallback("directory", "empty_teams")
		directory.Teams = nil
		directory.Degraded = true
	}
	if deptErr != nil {
		p.log.Warn(ctx, "department lookup failed, omitting department", logger.Err(deptErr))
		p.deps.Metrics.RecordFallback("directory", "no_department")
		directory.Department = nil
		directory.Degraded = true
	}
	if directory.Teams == nil {
		directory.Teams = []models.TeamMembership{}
	}
	if permsErr != nil {
		perms = models.ResolvedPermissions{Permissions: []string{}}
	}

	return directory, p.deps.Permissions.MergeTeams(perms, directory.Teams)
}

// cachedTeams returns the teams the directory already holds in memory. The
// permission lookup runs alongside the team lookup, so only cached teams can
// reach it.
func (p *AuthPipeline) cachedTeams(s models.SessionContext) []models.TeamMembership {
	tc, ok := p.deps.Directory.(domainservice.TeamCache)
	if !ok {
		return nil
	}
	teams, _ := tc.CachedTeams(s.IdentityID, s.OrganizationID)
	return teams
}

// branch adapts fn for the errgroup: its error, or a recovered panic, lands in
// out and the group itself never sees a failure.
func (p *AuthPipeline) branch(ctx context.Context, name string, out *error, fn func() error) func() error {
	return func() error {
		defer func() {
			if rec := recover(); rec != nil {
				*out = errors.ErrInternal(fmt.Sprintf("%s panicked: %v", name, rec), nil)
				p.log.Error(ctx, "enrichment branch panicked", *out, logger.String("branch", name))
			}
		}()
		*out = fn()
		return nil
	}
}

// degraded is the result of an event whose evaluation failed internally.
func (p *AuthPipeline) degraded(ctx context.Context, evals *evaluators, s models.SessionContext, eventID string, cause error) *dto.AuthenticationResult {
	event := models.NewAuditEvent(constants.AuditEventSystemError, constants.OutcomeUnknown).
		WithActor(s.IdentityID, s.Email, s.SourceIP).
		WithOrganization(s.OrganizationID).
		WithTarget("session", eventID).
		WithDetails(map[string]interface{}{"event_id": eventID, "error": cause.Error()})
	p.deps.Audit.EmitAsync(*event)

	return &dto.AuthenticationResult{
		EventID: eventID,
		Decision: models.Decision{
			Action: constants.ActionAllow,
			From:   constants.StateEvaluating,
			To:     constants.StateAllowed,
			Reason: models.ReasonInternalError,
		},
		Risk:              models.RiskAssessment{Level: constants.RiskLevelLow, Factors: []models.Factor{}},
		Anomalies:         []models.Anomaly{},
		Claims:            evals.projector.Minimal(s),
		PartialEnrichment: true,
	}
}

func outcomeEvent(eventID string, s models.SessionContext, risk models.RiskAssessment, anomalies []models.Anomaly, d models.Decision) *models.AuditEvent {
	eventType, outcome := constants.AuditEventLoginSuccess, constants.OutcomeSuccess
	if d.Action == constants.ActionChallenge {
		eventType, outcome = constants.AuditEventMFAChallenge, constants.OutcomeUnknown
		if d.Challenge != nil && d.Challenge.Mode == constants.ChallengeModeEnroll {
			eventType = constants.AuditEventMFAEnrollment
		}
	}
	return models.NewAuditEvent(eventType, outcome).
		WithActor(s.IdentityID, s.Email, s.SourceIP).
		WithOrganization(s.OrganizationID).
		WithTarget("session", eventID).
		WithDetails(auditDetails(eventID, s, risk, anomalies, d))
}

func auditDetails(eventID string, s models.SessionContext, risk models.RiskAssessment, anomalies []models.Anomaly, d models.Decision) map[string]interface{} {
	factors := make([]string, 0, len(risk.Factors))
	for _, f := range risk.Factors {
		factors = append(factors, string(f.Name))
	}
	details := map[string]interface{}{
		"event_id":    eventID,
		"action":      string(d.Action),
		"reason":      d.Reason,
		"risk_score":  risk.Score,
		"risk_level":  string(risk.Level),
		"factors":     factors,
		"anomalies":   models.AnomalyTypes(anomalies),
		"country":     s.Geo.Country,
		"auth_method": s.AuthMethod,
	}
	if d.Challenge != nil {
		details["challenge_mode"] = string(d.Challenge.Mode)
		details["challenge_factors"] = d.Challenge.Factors
	}
	return details
}
