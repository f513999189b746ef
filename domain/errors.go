package domain

import "errors"

var (
	ErrClientNotFound  = errors.New("client not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrGroupNotFound   = errors.New("group not found")
	ErrJobNotFound     = errors.New("job not found")
	// ErrAlreadyClaimed is returned when a conditional claim matches no
	// pending job because another worker won the race.
	ErrAlreadyClaimed = errors.New("job already claimed")
	// ErrJobTerminal is returned when an update targets a job that already
	// reached completed, failed or cancelled.
	ErrJobTerminal = errors.New("job is in a terminal state")
	// ErrCyclicGroupHierarchy is returned by the group directory when
	// subgroup expansion does not converge.
	ErrCyclicGroupHierarchy = errors.New("cyclic group hierarchy")
)
