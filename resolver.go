package revoker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"go.pilab.hu/revoker/domain"
	rerrors "go.pilab.hu/revoker/errors"
)

// Target is one resolved (session, token) pair a batch logout job will act
// on. UserID rides along so statistics can count distinct users without a
// second store round-trip.
type Target struct {
	SessionID string
	TokenID   string
	TokenType domain.TokenType
	UserID    string
	CreatedAt time.Time
}

// Resolver turns a job's conditions into the concrete set of revocation
// targets. Re-running with the same conditions against an unchanged store
// yields the same set, in ascending created_at order.
type Resolver struct {
	clients  domain.ClientRepository
	sessions domain.SessionRepository
	tokens   domain.TokenRepository
	groups   domain.GroupDirectory
}

// NewResolver creates a Resolver over the store and identity collaborators.
func NewResolver(
	clients domain.ClientRepository,
	sessions domain.SessionRepository,
	tokens domain.TokenRepository,
	groups domain.GroupDirectory,
) *Resolver {
	return &Resolver{
		clients:  clients,
		sessions: sessions,
		tokens:   tokens,
		groups:   groups,
	}
}

// ValidateConditions checks that the conditions carry the filters the job
// type requires and that referenced entities exist. It is called at the API
// boundary so an invalid request never persists a job.
func (r *Resolver) ValidateConditions(ctx context.Context, jobType domain.JobType, conds domain.Conditions) error {
	switch jobType {
	case domain.JobTypeClientBased:
		if conds.ClientID == "" {
			return rerrors.NewInvalidConditions("client_based jobs require client_id")
		}
		return r.checkClient(ctx, conds.ClientID)

	case domain.JobTypeGroupBased:
		if conds.GroupID == "" {
			return rerrors.NewInvalidConditions("group_based jobs require group_id")
		}
		return r.checkGroup(ctx, conds.GroupID)

	case domain.JobTypeTimeBased:
		if !conds.HasTimeFilter() {
			return rerrors.NewInvalidConditions("time_based jobs require created_before or last_used_before")
		}
		return validateTokenTypes(conds.TokenTypes)

	case domain.JobTypeConditional:
		if conds.ClientID == "" && conds.GroupID == "" && !conds.HasTimeFilter() {
			return rerrors.NewInvalidConditions("conditional jobs require at least one of client, group or time filters")
		}
		if err := validateTokenTypes(conds.TokenTypes); err != nil {
			return err
		}
		if conds.ClientID != "" {
			if err := r.checkClient(ctx, conds.ClientID); err != nil {
				return err
			}
		}
		if conds.GroupID != "" {
			return r.checkGroup(ctx, conds.GroupID)
		}
		return nil

	case domain.JobTypeEmergency:
		// Matches everything live. The API boundary enforces reason and the
		// explicit confirmation flag.
		return nil

	default:
		return rerrors.NewInvalidConditions(fmt.Sprintf("unknown job type %q", jobType))
	}
}

// Resolve computes the full target set for the given job type and conditions.
// Results are ordered by ascending token created_at (token id breaks ties) so
// statistics and pagination are deterministic across runs.
func (r *Resolver) Resolve(ctx context.Context, jobType domain.JobType, conds domain.Conditions) ([]Target, error) {
	if err := r.ValidateConditions(ctx, jobType, conds); err != nil {
		return nil, err
	}

	sessions, restricted, err := r.candidateSessions(ctx, jobType, conds)
	if err != nil {
		return nil, err
	}
	if restricted && len(sessions) == 0 {
		return nil, nil
	}

	filter := domain.TokenFilter{
		Types:    tokenTypesFor(jobType, conds),
		LiveOnly: true,
	}
	if restricted {
		filter.SessionIDs = make([]string, 0, len(sessions))
		for _, s := range sessions {
			filter.SessionIDs = append(filter.SessionIDs, s.ID)
		}
	}
	switch jobType {
	case domain.JobTypeClientBased:
		filter.CreatedBefore = conds.CreatedBefore
	case domain.JobTypeTimeBased, domain.JobTypeConditional:
		filter.CreatedBefore = conds.CreatedBefore
		filter.LastUsedBefore = conds.LastUsedBefore
	}

	tokens, err := r.tokens.FindTokens(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("finding tokens: %w", err)
	}

	userBySession := make(map[string]string, len(sessions))
	for _, s := range sessions {
		userBySession[s.ID] = s.UserID
	}

	targets := make([]Target, 0, len(tokens))
	for _, tok := range tokens {
		userID, known := userBySession[tok.SessionID]
		if restricted && !known {
			// Session disappeared between the two queries; skip rather than
			// attribute the token to nobody.
			continue
		}
		targets = append(targets, Target{
			SessionID: tok.SessionID,
			TokenID:   tok.ID,
			TokenType: tok.Type,
			UserID:    userID,
			CreatedAt: tok.CreatedAt,
		})
	}

	sort.Slice(targets, func(i, j int) bool {
		if targets[i].CreatedAt.Equal(targets[j].CreatedAt) {
			return targets[i].TokenID < targets[j].TokenID
		}
		return targets[i].CreatedAt.Before(targets[j].CreatedAt)
	})

	log.Debug().
		Str("job_type", string(jobType)).
		Int("targets", len(targets)).
		Msg("resolved revocation targets")

	return targets, nil
}

// candidateSessions returns the sessions the conditions restrict to. The
// second return value reports whether the set is a restriction at all; for
// time_based and emergency jobs every session is a candidate and the token
// query runs unrestricted.
func (r *Resolver) candidateSessions(ctx context.Context, jobType domain.JobType, conds domain.Conditions) ([]*domain.OAuthSession, bool, error) {
	filter := domain.SessionFilter{}
	restricted := false

	if (jobType == domain.JobTypeClientBased || jobType == domain.JobTypeConditional) && conds.ClientID != "" {
		filter.ClientID = conds.ClientID
		restricted = true
	}

	if (jobType == domain.JobTypeGroupBased || jobType == domain.JobTypeConditional) && conds.GroupID != "" {
		members, err := r.groupMembers(ctx, conds)
		if err != nil {
			return nil, false, err
		}
		if len(members) == 0 {
			return nil, true, nil
		}
		filter.UserIDs = members
		restricted = true
	}

	sessions, err := r.sessions.FindSessions(ctx, filter)
	if err != nil {
		return nil, false, fmt.Errorf("finding sessions: %w", err)
	}
	return sessions, restricted, nil
}

func (r *Resolver) groupMembers(ctx context.Context, conds domain.Conditions) ([]string, error) {
	members, err := r.groups.GroupMembers(ctx, conds.GroupID, conds.IncludeSubgroups)
	if err != nil {
		switch {
		case errors.Is(err, ErrGroupNotFound):
			return nil, rerrors.NewUnknownGroup(conds.GroupID)
		case errors.Is(err, ErrCyclicGroupHierarchy):
			return nil, rerrors.NewCyclicGroupHierarchy(conds.GroupID)
		}
		return nil, fmt.Errorf("expanding group %q: %w", conds.GroupID, err)
	}

	if !conds.ExcludeAdminUsers {
		return members, nil
	}
	filtered := make([]string, 0, len(members))
	for _, userID := range members {
		admin, err := r.groups.IsAdmin(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("checking admin role for %q: %w", userID, err)
		}
		if !admin {
			filtered = append(filtered, userID)
		}
	}
	return filtered, nil
}

func (r *Resolver) checkClient(ctx context.Context, clientID string) error {
	_, err := r.clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return rerrors.NewUnknownClient(clientID)
		}
		return fmt.Errorf("looking up client %q: %w", clientID, err)
	}
	return nil
}

func (r *Resolver) checkGroup(ctx context.Context, groupID string) error {
	// Membership lookup doubles as the existence check; the directory
	// distinguishes an empty group from an unknown one.
	_, err := r.groups.GroupMembers(ctx, groupID, false)
	if err != nil {
		if errors.Is(err, ErrGroupNotFound) {
			return rerrors.NewUnknownGroup(groupID)
		}
		return fmt.Errorf("looking up group %q: %w", groupID, err)
	}
	return nil
}

// tokenTypesFor maps the conditions to the token types the store query should
// return. An empty slice means both types.
func tokenTypesFor(jobType domain.JobType, conds domain.Conditions) []domain.TokenType {
	switch jobType {
	case domain.JobTypeClientBased:
		if conds.RevokeRefreshTokens != nil && !*conds.RevokeRefreshTokens {
			return []domain.TokenType{domain.TokenTypeAccess}
		}
		return nil
	case domain.JobTypeTimeBased, domain.JobTypeConditional:
		return conds.TokenTypes
	default:
		return nil
	}
}

func validateTokenTypes(types []domain.TokenType) error {
	for _, t := range types {
		if t != domain.TokenTypeAccess && t != domain.TokenTypeRefresh {
			return rerrors.NewInvalidConditions(fmt.Sprintf("unknown token type %q", t))
		}
	}
	return nil
}
