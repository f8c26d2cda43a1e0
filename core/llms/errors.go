package llms

import (
	"errors"
	"fmt"
)

// TransportError is a connection failure or non-success status on a model
// call. It is fatal for the turn that produced it and is never retried
// internally.
type TransportError struct {
	StatusCode int
	Status     string
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("model transport failed: %s", e.Status)
	}
	return fmt.Sprintf("model transport failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// QuotaExhaustedError is the upstream resource-limit condition. It is kept
// distinct from TransportError so callers can surface it and offer a switch
// to a fallback model instead of a generic failure message.
type QuotaExhaustedError struct {
	Model string
}

func (e *QuotaExhaustedError) Error() string {
	if e.Model == "" {
		return "model quota exhausted"
	}
	return fmt.Sprintf("model quota exhausted for %s", e.Model)
}

func IsQuotaExhausted(err error) bool {
	var quotaErr *QuotaExhaustedError
	return errors.As(err, &quotaErr)
}
