package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("job not found")
	ErrForbidden          = errors.New("caller does not own this job")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrDelegationFailed   = errors.New("delegation to agent service failed")
	ErrStorageUnavailable = errors.New("job storage unavailable")
)
