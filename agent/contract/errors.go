package contract

import "errors"

var (
	ErrInvoke          = errors.New("remote invoke failed")
	ErrSchemaViolation = errors.New("response violates schema")
	ErrValidation      = errors.New("validation failed")
	ErrWorkerFailed    = errors.New("local worker failed")
	ErrFeedUnavailable = errors.New("registration feed unavailable")
)
