package revoker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.pilab.hu/revoker/cache"
	"go.pilab.hu/revoker/domain"
	"go.pilab.hu/revoker/internal/fedsync"
)

// LogoutService handles a single user-initiated logout: it revokes the
// session's tokens locally, flags the session in the revocation cache and
// then lets the synchronizer propagate the logout to federated origins and
// same-origin tabs. Local revocation always happens first and never waits on
// a partner.
type LogoutService struct {
	tokens      domain.TokenRepository
	revocations cache.RevocationCache
	sync        *fedsync.Synchronizer
	now         func() time.Time
}

// NewLogoutService wires a LogoutService; it acts as the synchronizer's
// credential store.
func NewLogoutService(
	tokens domain.TokenRepository,
	revocations cache.RevocationCache,
	cfg fedsync.Config,
	transport fedsync.OriginTransport,
	broadcaster fedsync.Broadcaster,
) *LogoutService {
	s := &LogoutService{
		tokens:      tokens,
		revocations: revocations,
		now:         time.Now,
	}
	s.sync = fedsync.NewSynchronizer(cfg, s, transport, broadcaster)
	return s
}

// Logout runs the full logout: local clear, tab broadcast, federated
// handshake. A failed handshake does not fail the logout; the result carries
// FederatedSyncConfirmed=false instead.
func (s *LogoutService) Logout(ctx context.Context, userID, sessionID string) (*fedsync.Result, error) {
	return s.sync.Logout(ctx, fedsync.LogoutEvent{
		UserID:    userID,
		SessionID: sessionID,
		At:        s.now().UTC(),
	})
}

// Clear implements fedsync.CredentialStore by revoking every live token of
// the session and flagging it in the fast cache.
func (s *LogoutService) Clear(ctx context.Context, event fedsync.LogoutEvent) error {
	tokens, err := s.tokens.FindTokens(ctx, domain.TokenFilter{
		SessionIDs: []string{event.SessionID},
		LiveOnly:   true,
	})
	if err != nil {
		return fmt.Errorf("finding session tokens: %w", err)
	}
	for _, tok := range tokens {
		if _, err := s.tokens.RevokeTokenIfLive(ctx, tok.ID, s.now().UTC()); err != nil {
			return fmt.Errorf("revoking token %s: %w", tok.ID, err)
		}
	}
	if s.revocations != nil {
		if err := s.revocations.MarkSessionRevoked(ctx, event.SessionID, revocationFlagTTL); err != nil {
			log.Warn().Err(err).Str("session_id", event.SessionID).Msg("failed to flag session in revocation cache")
		}
	}
	return nil
}

var _ fedsync.CredentialStore = (*LogoutService)(nil)
