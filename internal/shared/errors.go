package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrUnauthorized     = fmt.Errorf("unauthorized")
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrInvalidToken     = fmt.Errorf("invalid token")

	// Store and entry errors
	ErrStoreUnavailable   = fmt.Errorf("store unavailable")
	ErrDuplicateEntry     = fmt.Errorf("this entry already exists")
	ErrRecordNotFound     = fmt.Errorf("record not found")
	ErrOrphanedRecordRisk = fmt.Errorf("orphaned record risk")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrVideoNotFound      = fmt.Errorf("video not found")
	ErrTimeout            = fmt.Errorf("operation timed out")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// OrphanedRecordError reports a two-step delete that stopped after the first step.
//
// Remaining names the record left behind. The error matches [ErrOrphanedRecordRisk] and the underlying cause.
type OrphanedRecordError struct {
	RemainingID   string
	RemainingKind string
	Err           error
}

func (e *OrphanedRecordError) Error() string {
	return fmt.Sprintf("%v: %s record %s was not deleted: %v", ErrOrphanedRecordRisk, e.RemainingKind, e.RemainingID, e.Err)
}

func (e *OrphanedRecordError) Unwrap() []error {
	return []error{ErrOrphanedRecordRisk, e.Err}
}
