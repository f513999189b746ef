package errors

import "fmt"

// RevocationError is a coded error surfaced by the resolver, the job engine
// and the cross-domain synchronizer. The code is stable and machine-readable;
// the description is for operators.
type RevocationError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *RevocationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Stable error codes.
const (
	InvalidConditions    = "invalid_conditions"
	UnknownClient        = "unknown_client"
	UnknownGroup         = "unknown_group"
	StoreUnavailable     = "store_unavailable"
	AlreadyClaimed       = "already_claimed"
	JobTerminal          = "job_terminal"
	JobNotFound          = "job_not_found"
	SyncTimeout          = "sync_timeout"
	SyncOriginRejected   = "sync_origin_rejected"
	CyclicGroupHierarchy = "cyclic_group_hierarchy"
)

// Common error constructors

func NewInvalidConditions(description string) *RevocationError {
	return &RevocationError{
		Code:        InvalidConditions,
		Description: description,
	}
}

func NewUnknownClient(clientID string) *RevocationError {
	return &RevocationError{
		Code:        UnknownClient,
		Description: fmt.Sprintf("client %q does not exist", clientID),
	}
}

func NewUnknownGroup(groupID string) *RevocationError {
	return &RevocationError{
		Code:        UnknownGroup,
		Description: fmt.Sprintf("group %q does not exist", groupID),
	}
}

func NewStoreUnavailable(description string) *RevocationError {
	return &RevocationError{
		Code:        StoreUnavailable,
		Description: description,
	}
}

func NewSyncTimeout(origin string) *RevocationError {
	return &RevocationError{
		Code:        SyncTimeout,
		Description: fmt.Sprintf("no acknowledgement from origin %q within budget", origin),
	}
}

func NewSyncOriginRejected(origin string) *RevocationError {
	return &RevocationError{
		Code:        SyncOriginRejected,
		Description: fmt.Sprintf("origin %q is not in the trusted allow-list", origin),
	}
}

func NewCyclicGroupHierarchy(groupID string) *RevocationError {
	return &RevocationError{
		Code:        CyclicGroupHierarchy,
		Description: fmt.Sprintf("group hierarchy under %q did not converge", groupID),
	}
}
