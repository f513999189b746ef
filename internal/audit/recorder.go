package audit

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.pilab.hu/revoker/domain"
)

var auditLogger = log.Output(os.Stdout).With().Str("stream", "audit").Logger()

// Recorder appends one AuditLogEntry per OAuth-administrative action,
// unconditionally, failures included. Prior entries are never mutated or
// deleted. Every entry is also mirrored to a zerolog audit stream so the
// trail survives even when the store write fails.
type Recorder struct {
	repo domain.AuditLogRepository
	now  func() time.Time
}

// NewRecorder creates a Recorder over the append-only audit repository.
func NewRecorder(repo domain.AuditLogRepository) *Recorder {
	return &Recorder{repo: repo, now: time.Now}
}

// Record appends the entry, filling id and timestamp if the caller left them
// empty. A store failure is logged but does not fail the administrative
// action itself; the zerolog mirror is the fallback trail.
func (r *Recorder) Record(ctx context.Context, entry domain.AuditLogEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}

	event := auditLogger.Log().
		Str("action", string(entry.Action)).
		Bool("success", entry.Success).
		Time("created_at", entry.CreatedAt)
	if entry.ClientID != "" {
		event = event.Str("client_id", entry.ClientID)
	}
	if entry.UserID != "" {
		event = event.Str("user_id", entry.UserID)
	}
	if entry.ErrorCode != "" {
		event = event.Str("error_code", entry.ErrorCode).Str("error_description", entry.ErrorDescription)
	}
	event.Msg("audit")

	if r.repo == nil {
		return
	}
	if err := r.repo.Append(ctx, &entry); err != nil {
		log.Error().Err(err).Str("action", string(entry.Action)).Msg("Failed to append audit log entry")
	}
}

// RecordRevoke is a convenience for the revocation path.
func (r *Recorder) RecordRevoke(ctx context.Context, userID, clientID string, success bool, cause error) {
	entry := domain.AuditLogEntry{
		Action:   domain.AuditActionRevoke,
		UserID:   userID,
		ClientID: clientID,
		Success:  success,
	}
	if cause != nil {
		entry.ErrorCode = "server_error"
		entry.ErrorDescription = cause.Error()
	}
	r.Record(ctx, entry)
}

// SetOutput redirects the mirrored audit stream, mainly for tests.
func SetOutput(l zerolog.Logger) {
	auditLogger = l
}
