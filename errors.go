package revoker

import (
	"go.pilab.hu/revoker/domain"
)

// Sentinel errors re-exported from the domain package for callers of the
// service layer.
var (
	ErrAlreadyClaimed       = domain.ErrAlreadyClaimed
	ErrJobTerminal          = domain.ErrJobTerminal
	ErrJobNotFound          = domain.ErrJobNotFound
	ErrClientNotFound       = domain.ErrClientNotFound
	ErrSessionNotFound      = domain.ErrSessionNotFound
	ErrGroupNotFound        = domain.ErrGroupNotFound
	ErrCyclicGroupHierarchy = domain.ErrCyclicGroupHierarchy
)
