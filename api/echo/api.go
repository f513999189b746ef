//nolint:varnamelen
package echo

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	revoker "go.pilab.hu/revoker"
	"go.pilab.hu/revoker/api"
	"go.pilab.hu/revoker/domain"
	rerrors "go.pilab.hu/revoker/errors"
	"go.pilab.hu/revoker/internal/audit"
	"go.pilab.hu/revoker/internal/fedsync"
)

const minReasonLength = 10

// BatchLogoutAPI struct to hold dependencies.
type BatchLogoutAPI struct {
	engine    *revoker.Engine
	estimator *revoker.Estimator
	logout    *revoker.LogoutService
	sessions  domain.SessionRepository
	auditLogs domain.AuditLogRepository
	auditor   *audit.Recorder
	originID  string
}

// NewBatchLogoutAPI initializes the admin revocation API.
func NewBatchLogoutAPI(
	engine *revoker.Engine,
	estimator *revoker.Estimator,
	logout *revoker.LogoutService,
	sessions domain.SessionRepository,
	auditLogs domain.AuditLogRepository,
	auditor *audit.Recorder,
	originID string,
) *BatchLogoutAPI {
	return &BatchLogoutAPI{
		engine:    engine,
		estimator: estimator,
		logout:    logout,
		sessions:  sessions,
		auditLogs: auditLogs,
		auditor:   auditor,
		originID:  originID,
	}
}

// RegisterRoutes registers the admin and logout-sync routes. The guard
// middleware protects the admin group only; the logout-sync document must be
// loadable by a federated partner without admin credentials.
func (a *BatchLogoutAPI) RegisterRoutes(e *echo.Echo, guard echo.MiddlewareFunc) {
	admin := e.Group("/api/admin/oauth")
	if guard != nil {
		admin.Use(guard)
	}
	admin.POST("/batch-logout/:type", a.BatchLogoutHandler)
	admin.GET("/batch-logout/jobs/:id", a.JobStatusHandler)
	admin.POST("/batch-logout/jobs/:id/cancel", a.CancelJobHandler)
	admin.GET("/sessions", a.SessionsHandler)
	admin.GET("/audit-logs", a.AuditLogsHandler)

	e.POST("/oauth/logout", a.LogoutHandler)
	e.GET("/logout-sync", a.LogoutSyncHandler)
}

// jobTypeFromPath maps the admin UI's path segments onto job types.
func jobTypeFromPath(segment string) (domain.JobType, bool) {
	switch segment {
	case "client":
		return domain.JobTypeClientBased, true
	case "group":
		return domain.JobTypeGroupBased, true
	case "time-based":
		return domain.JobTypeTimeBased, true
	case "conditional":
		return domain.JobTypeConditional, true
	case "emergency":
		return domain.JobTypeEmergency, true
	default:
		return "", false
	}
}

// BatchLogoutHandler accepts conditions plus dry_run and reason. Dry-run
// requests return estimator counts synchronously; everything else returns a
// trackable job id without blocking on execution.
func (a *BatchLogoutAPI) BatchLogoutHandler(c echo.Context) error {
	jobType, ok := jobTypeFromPath(c.Param("type"))
	if !ok {
		return c.JSON(http.StatusNotFound, rerrors.NewInvalidConditions("unknown batch logout type"))
	}

	var req api.BatchLogoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, rerrors.NewInvalidConditions("malformed request body"))
	}
	if len(req.Reason) < minReasonLength {
		return c.JSON(http.StatusBadRequest, rerrors.NewInvalidConditions("reason must be at least 10 characters"))
	}
	if jobType == domain.JobTypeEmergency && !req.DryRun && !req.Confirm {
		return c.JSON(http.StatusBadRequest, rerrors.NewInvalidConditions("emergency revocation requires explicit confirmation"))
	}

	ctx := c.Request().Context()
	initiatedBy, _ := c.Get("user_id").(string)

	if req.DryRun {
		estimate, err := a.estimator.Estimate(ctx, jobType, req.Conditions)
		if err != nil {
			return a.revocationError(c, err)
		}
		return c.JSON(http.StatusOK, api.BatchLogoutResponse{Estimate: estimate})
	}

	job := &domain.BatchLogoutJob{
		Type:        jobType,
		Conditions:  req.Conditions,
		DryRun:      false,
		Reason:      req.Reason,
		Priority:    req.Priority,
		InitiatedBy: initiatedBy,
	}
	job, err := a.engine.Submit(ctx, job)
	if err != nil {
		a.auditor.Record(ctx, domain.AuditLogEntry{
			Action:           domain.AuditActionRevoke,
			UserID:           initiatedBy,
			ClientID:         req.Conditions.ClientID,
			IPAddress:        c.RealIP(),
			UserAgent:        c.Request().UserAgent(),
			Success:          false,
			ErrorCode:        errorCode(err),
			ErrorDescription: err.Error(),
		})
		return a.revocationError(c, err)
	}

	a.auditor.Record(ctx, domain.AuditLogEntry{
		Action:    domain.AuditActionRevoke,
		UserID:    initiatedBy,
		ClientID:  req.Conditions.ClientID,
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
		Success:   true,
	})

	return c.JSON(http.StatusAccepted, api.BatchLogoutResponse{JobID: job.ID})
}

// JobStatusHandler returns the full job record including statistics and
// error details.
func (a *BatchLogoutAPI) JobStatusHandler(c echo.Context) error {
	job, err := a.engine.Job(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, revoker.ErrJobNotFound) {
			return c.JSON(http.StatusNotFound, &rerrors.RevocationError{
				Code:        rerrors.JobNotFound,
				Description: "no such job",
			})
		}
		return a.serverError(c, err)
	}
	return c.JSON(http.StatusOK, job)
}

// CancelJobHandler requests cancellation. Pending jobs cancel immediately;
// processing jobs cancel at the next batch boundary.
func (a *BatchLogoutAPI) CancelJobHandler(c echo.Context) error {
	err := a.engine.Cancel(c.Request().Context(), c.Param("id"))
	switch {
	case err == nil:
		return c.NoContent(http.StatusAccepted)
	case errors.Is(err, revoker.ErrJobNotFound):
		return c.JSON(http.StatusNotFound, &rerrors.RevocationError{
			Code:        rerrors.JobNotFound,
			Description: "no such job",
		})
	case errors.Is(err, revoker.ErrJobTerminal):
		return c.JSON(http.StatusConflict, &rerrors.RevocationError{
			Code:        rerrors.JobTerminal,
			Description: "job already reached a terminal state",
		})
	default:
		return a.serverError(c, err)
	}
}

// SessionsHandler lists sessions for the admin console.
func (a *BatchLogoutAPI) SessionsHandler(c echo.Context) error {
	filter := domain.SessionFilter{ClientID: c.QueryParam("client_id")}
	if userID := c.QueryParam("user_id"); userID != "" {
		filter.UserIDs = []string{userID}
	}
	sessions, err := a.sessions.FindSessions(c.Request().Context(), filter)
	if err != nil {
		return a.serverError(c, err)
	}
	return c.JSON(http.StatusOK, api.SessionsResponse{Sessions: sessions})
}

// AuditLogsHandler returns a paginated audit log listing.
func (a *BatchLogoutAPI) AuditLogsHandler(c echo.Context) error {
	filter := domain.AuditLogFilter{
		Action: domain.AuditAction(c.QueryParam("action")),
		Limit:  50,
	}
	if v := c.QueryParam("success"); v != "" {
		success, err := strconv.ParseBool(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, rerrors.NewInvalidConditions("success must be a boolean"))
		}
		filter.Success = &success
	}
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	entries, err := a.auditLogs.List(c.Request().Context(), filter)
	if err != nil {
		return a.serverError(c, err)
	}
	return c.JSON(http.StatusOK, api.AuditLogsResponse{
		Entries: entries,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	})
}

// LogoutHandler runs a user-initiated logout with federated propagation. A
// failed handshake never fails the local logout.
func (a *BatchLogoutAPI) LogoutHandler(c echo.Context) error {
	var req api.LogoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, rerrors.NewInvalidConditions("malformed request body"))
	}
	if req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, rerrors.NewInvalidConditions("session_id is required"))
	}

	result, err := a.logout.Logout(c.Request().Context(), req.UserID, req.SessionID)
	if err != nil {
		return a.serverError(c, err)
	}
	return c.JSON(http.StatusOK, api.LogoutResponse{
		LocalCleared:           result.LocalCleared,
		FederatedSyncConfirmed: result.FederatedSyncConfirmed,
		Origins:                result.Origins,
	})
}

// LogoutSyncHandler serves this origin's side of the federated contract: on
// load it clears the local credentials for the indicated session and answers
// with the signed acknowledgement a partner's parent window expects.
func (a *BatchLogoutAPI) LogoutSyncHandler(c echo.Context) error {
	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		// A success answer is the partner's proof that credentials were
		// cleared, so an unidentifiable request must never read as one.
		return c.JSON(http.StatusBadRequest, fedsync.Message{
			Type:    fedsync.MessageType,
			Source:  a.originID,
			Success: false,
		})
	}
	event := fedsync.LogoutEvent{
		UserID:    c.QueryParam("user_id"),
		SessionID: sessionID,
	}
	if err := a.logout.Clear(c.Request().Context(), event); err != nil {
		log.Error().Err(err).Msg("logout-sync failed to clear local credentials")
		return c.JSON(http.StatusOK, fedsync.Message{
			Type:    fedsync.MessageType,
			Source:  a.originID,
			Success: false,
		})
	}
	return c.JSON(http.StatusOK, fedsync.Message{
		Type:    fedsync.MessageType,
		Source:  a.originID,
		Success: true,
	})
}

// revocationError maps resolver/engine errors onto the admin API contract.
func (a *BatchLogoutAPI) revocationError(c echo.Context, err error) error {
	var coded *rerrors.RevocationError
	if errors.As(err, &coded) {
		switch coded.Code {
		case rerrors.UnknownClient, rerrors.UnknownGroup:
			return c.JSON(http.StatusNotFound, coded)
		case rerrors.InvalidConditions, rerrors.CyclicGroupHierarchy:
			return c.JSON(http.StatusBadRequest, coded)
		}
	}
	return a.serverError(c, err)
}

func (a *BatchLogoutAPI) serverError(c echo.Context, err error) error {
	log.Error().Err(err).Msg("admin revocation API request failed")
	return c.JSON(http.StatusServiceUnavailable, rerrors.NewStoreUnavailable("the revocation store is unavailable"))
}

func errorCode(err error) string {
	var coded *rerrors.RevocationError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return rerrors.StoreUnavailable
}
