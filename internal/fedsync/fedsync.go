package fedsync

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.pilab.hu/revoker/internal/metrics"
)

// originState is the per-origin handshake state.
// idle -> waiting -> acked | timedOut.
type originState int

const (
	stateIdle originState = iota
	stateWaiting
	stateAcked
	stateTimedOut
)

func (s originState) String() string {
	switch s {
	case stateWaiting:
		return "waiting"
	case stateAcked:
		return "acked"
	case stateTimedOut:
		return "timed_out"
	default:
		return "idle"
	}
}

// CredentialStore clears the initiating origin's local credentials for the
// session being logged out. Clearing must never wait on a federated partner.
type CredentialStore interface {
	Clear(ctx context.Context, event LogoutEvent) error
}

// OriginTransport opens a federated origin's logout-sync document and yields
// the messages it posts back. The returned teardown func releases listeners
// and any in-flight request; it must be safe to call more than once.
type OriginTransport interface {
	Open(ctx context.Context, origin string) (<-chan Envelope, func(), error)
}

// Broadcaster fans a logout event out to same-origin tabs.
type Broadcaster interface {
	Broadcast(ctx context.Context, event LogoutEvent) error
}

// Config bounds the handshake. Zero values fall back to the defaults below.
type Config struct {
	// TrustedOrigins is the explicit allow-list; acknowledgements from any
	// other origin are ignored entirely.
	TrustedOrigins []string
	// FederatedOrigins are the partner origins to notify on logout.
	FederatedOrigins []string
	AckTimeout       time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	// OverallTimeout bounds the whole federated phase; local clearing is
	// never subject to it.
	OverallTimeout time.Duration
}

const (
	defaultAckTimeout     = 3 * time.Second
	defaultMaxRetries     = 2
	defaultRetryBackoff   = 500 * time.Millisecond
	defaultOverallTimeout = 15 * time.Second
)

func (c Config) withDefaults() Config {
	if c.AckTimeout <= 0 {
		c.AckTimeout = defaultAckTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.OverallTimeout <= 0 {
		c.OverallTimeout = defaultOverallTimeout
	}
	return c
}

// OriginResult is the outcome of one origin's handshake.
type OriginResult struct {
	State    string `json:"state"`
	Attempts int    `json:"attempts"`
}

// Result is the outcome of a synchronized logout. The local logout succeeds
// regardless of the federated outcome; FederatedSyncConfirmed only reports
// whether every partner acknowledged in time.
type Result struct {
	LocalCleared           bool                    `json:"localCleared"`
	FederatedSyncConfirmed bool                    `json:"federatedSyncConfirmed"`
	Origins                map[string]OriginResult `json:"origins,omitempty"`
}

// Synchronizer propagates a local logout to federated origins within a
// bounded time budget and broadcasts it to same-origin tabs. Handshakes run
// one outstanding request at a time, driven by a single dispatcher loop, so
// timeout and cancellation are structural.
type Synchronizer struct {
	cfg         Config
	creds       CredentialStore
	transport   OriginTransport
	broadcaster Broadcaster
	trusted     map[string]struct{}
}

// NewSynchronizer creates a Synchronizer. broadcaster may be nil when there
// is no tab fan-out channel configured.
func NewSynchronizer(cfg Config, creds CredentialStore, transport OriginTransport, broadcaster Broadcaster) *Synchronizer {
	cfg = cfg.withDefaults()
	trusted := make(map[string]struct{}, len(cfg.TrustedOrigins))
	for _, o := range cfg.TrustedOrigins {
		trusted[o] = struct{}{}
	}
	return &Synchronizer{
		cfg:         cfg,
		creds:       creds,
		transport:   transport,
		broadcaster: broadcaster,
		trusted:     trusted,
	}
}

// Logout clears local credentials, broadcasts the logout to same-origin tabs
// and then runs the federated handshake. Local clearing always precedes the
// handshake: a slow partner never delays credential invalidation here.
func (s *Synchronizer) Logout(ctx context.Context, event LogoutEvent) (*Result, error) {
	result := &Result{
		Origins: make(map[string]OriginResult, len(s.cfg.FederatedOrigins)),
	}

	if err := s.creds.Clear(ctx, event); err != nil {
		return result, err
	}
	result.LocalCleared = true

	if s.broadcaster != nil {
		if err := s.broadcaster.Broadcast(ctx, event); err != nil {
			log.Warn().Err(err).Msg("failed to broadcast logout to local tabs")
		}
	}

	fedCtx, cancel := context.WithTimeout(ctx, s.cfg.OverallTimeout)
	defer cancel()

	confirmed := true
	for _, origin := range s.cfg.FederatedOrigins {
		res := s.handshake(fedCtx, origin)
		result.Origins[origin] = res
		if res.State != stateAcked.String() {
			confirmed = false
			metrics.FederatedSyncFailuresTotal.Inc()
		}
	}
	result.FederatedSyncConfirmed = confirmed

	return result, nil
}

// handshake drives one origin's state machine through its retry budget. The
// handshake is abandoned the moment it resolves, the retry budget is
// exhausted, or the overall timeout elapses, whichever comes first.
func (s *Synchronizer) handshake(ctx context.Context, origin string) OriginResult {
	state := stateIdle
	attempts := 0

	for attempts <= s.cfg.MaxRetries && state != stateAcked {
		if ctx.Err() != nil {
			break
		}
		attempts++
		state = s.attempt(ctx, origin)
		if state == stateTimedOut && attempts <= s.cfg.MaxRetries {
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.RetryBackoff):
			}
		}
	}

	if state != stateAcked {
		state = stateTimedOut
		log.Warn().Str("origin", origin).Int("attempts", attempts).
			Msg("federated logout handshake not acknowledged, continuing without confirmation")
	}

	return OriginResult{State: state.String(), Attempts: attempts}
}

// attempt runs one open/wait cycle. Messages from origins outside the
// allow-list, with the wrong type tag, or reporting failure do not resolve
// the handshake.
func (s *Synchronizer) attempt(ctx context.Context, origin string) originState {
	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.AckTimeout)
	defer cancel()

	messages, teardown, err := s.transport.Open(attemptCtx, origin)
	if err != nil {
		log.Debug().Err(err).Str("origin", origin).Msg("failed to open logout-sync document")
		return stateTimedOut
	}
	defer teardown()

	for {
		select {
		case <-attemptCtx.Done():
			return stateTimedOut
		case env, ok := <-messages:
			if !ok {
				return stateTimedOut
			}
			if !s.accept(env) {
				continue
			}
			return stateAcked
		}
	}
}

func (s *Synchronizer) accept(env Envelope) bool {
	if _, ok := s.trusted[env.Origin]; !ok {
		return false
	}
	return env.Message.Type == MessageType && env.Message.Success
}
