package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds returned by registry operations. Callers match them with errors.Is.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidProduct     = errors.New("invalid product")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid location transition")
	ErrDuplicateID        = errors.New("duplicate id")
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrExpiredOrInvalid   = errors.New("expired or invalid expiry")
	ErrNoProducts         = errors.New("no products")
	ErrNoValidProducts    = errors.New("no valid products")
	ErrLengthMismatch     = errors.New("length mismatch")
)

// NotFoundError is returned when an operation targets a missing record.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// Unwrap maps the error onto ErrNotFound.
func (e NotFoundError) Unwrap() error { return ErrNotFound }

// DuplicateIDError is returned when a record with the same id already exists.
type DuplicateIDError struct {
	Entity EntityType
	ID     string
}

func (e DuplicateIDError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Entity, e.ID)
}

// Unwrap maps the error onto ErrDuplicateID.
func (e DuplicateIDError) Unwrap() error { return ErrDuplicateID }

// UnauthorizedError is returned when a principal lacks the capability an
// operation requires.
type UnauthorizedError struct {
	Principal Principal
	Operation string
}

func (e UnauthorizedError) Error() string {
	who := string(e.Principal)
	if who == "" {
		who = "<anonymous>"
	}
	return fmt.Sprintf("%s is not authorized to %s", who, e.Operation)
}

// Unwrap maps the error onto ErrUnauthorized.
func (e UnauthorizedError) Unwrap() error { return ErrUnauthorized }

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	var msgs []string
	for _, v := range e.Result.Violations {
		if v.Severity != SeverityBlock {
			continue
		}
		msgs = append(msgs, v.Message)
	}
	if len(msgs) == 0 {
		return "transaction blocked by rules"
	}
	return "transaction blocked by rules: " + strings.Join(msgs, "; ")
}

// Unwrap returns the distinct error kinds of all blocking violations.
func (e RuleViolationError) Unwrap() []error {
	var out []error
	seen := make(map[error]struct{})
	for _, v := range e.Result.Violations {
		if v.Severity != SeverityBlock || v.Err == nil {
			continue
		}
		if _, ok := seen[v.Err]; ok {
			continue
		}
		seen[v.Err] = struct{}{}
		out = append(out, v.Err)
	}
	return out
}
