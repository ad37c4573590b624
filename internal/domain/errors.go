package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInvalidAccount      = errors.New("complete all fields")
	ErrSessionQuotaReached = errors.New("session limit reached")
	ErrNotAuthenticated    = errors.New("not signed in")
	ErrMissingIdentifier   = errors.New("identifier is required")
)

// ValidationError lists the account fields that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrInvalidAccount.Error()
	}
	return fmt.Sprintf("%s: %s", ErrInvalidAccount, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidAccount
}
