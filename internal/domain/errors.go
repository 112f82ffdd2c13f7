package domain

import (
	"errors"
	"fmt"
)

// Common domain errors that can occur during competition operations.
var (
	// ErrVersionConflict indicates that a compare-and-swap on the competition
	// configuration lost a race with another writer.
	ErrVersionConflict = errors.New("competition config version conflict")

	// ErrKicked indicates that the participant was removed by an administrator.
	ErrKicked = errors.New("participant has been kicked")

	// ErrInvalidRound indicates an unknown round name.
	ErrInvalidRound = errors.New("invalid round")

	// ErrInvalidQuestion indicates an unknown question identifier.
	ErrInvalidQuestion = errors.New("invalid question")

	// ErrParticipantNotFound indicates that no participant exists for a username.
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrAdminNotFound indicates that no admin record exists for a username.
	ErrAdminNotFound = errors.New("admin not found")
)

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}

// AuthorizationError is returned when a supplied secret does not match.
// No state is changed when it is returned.
type AuthorizationError struct {
	// Action names the operation that was refused.
	Action string
}

// Error implements the error interface for AuthorizationError.
func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("unauthorized: action=%s", e.Action)
}

// NewAuthorizationError creates a new AuthorizationError for the action.
func NewAuthorizationError(action string) *AuthorizationError {
	return &AuthorizationError{Action: action}
}

// NotFoundError reports an operation on an entity that does not exist.
type NotFoundError struct {
	// Entity is the kind of record, e.g. "participant".
	Entity string

	// Key identifies the missing record.
	Key string

	// Err is the underlying sentinel, if any.
	Err error
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.Key)
}

// Unwrap returns the underlying error.
func (e *NotFoundError) Unwrap() error { return e.Err }

// NewParticipantNotFound builds a NotFoundError wrapping ErrParticipantNotFound.
func NewParticipantNotFound(username string) *NotFoundError {
	return &NotFoundError{Entity: "participant", Key: username, Err: ErrParticipantNotFound}
}

// NewAdminNotFound builds a NotFoundError wrapping ErrAdminNotFound.
func NewAdminNotFound(username string) *NotFoundError {
	return &NotFoundError{Entity: "admin", Key: username, Err: ErrAdminNotFound}
}

// PersistenceError is returned once every save attempt for a record failed.
type PersistenceError struct {
	// Operation describes what was being saved.
	Operation string

	// Attempts is the number of save attempts made.
	Attempts int

	// Err is the last error returned by the store.
	Err error
}

// Error implements the error interface for PersistenceError.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error: operation=%s, attempts=%d, err=%v", e.Operation, e.Attempts, e.Err)
}

// Unwrap returns the underlying error.
func (e *PersistenceError) Unwrap() error { return e.Err }

// NewPersistenceError creates a new PersistenceError with the given details.
func NewPersistenceError(operation string, attempts int, err error) *PersistenceError {
	return &PersistenceError{
		Operation: operation,
		Attempts:  attempts,
		Err:       err,
	}
}

// JudgeServiceError describes why a judge call produced no usable verdict.
// It never crosses the scoring pipeline; it is converted to a zero Verdict.
type JudgeServiceError struct {
	// Kind classifies the failure.
	Kind FailureKind

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for JudgeServiceError.
func (e *JudgeServiceError) Error() string {
	return fmt.Sprintf("judge error: kind=%s, err=%v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *JudgeServiceError) Unwrap() error { return e.Err }

// NewJudgeServiceError creates a new JudgeServiceError.
func NewJudgeServiceError(kind FailureKind, err error) *JudgeServiceError {
	return &JudgeServiceError{Kind: kind, Err: err}
}

// RoundClosedError rejects a submission to a round that is not accepting
// answers, either because it is inactive or because its deadline passed.
type RoundClosedError struct {
	Round  Round
	Reason string
}

// Error implements the error interface for RoundClosedError.
func (e *RoundClosedError) Error() string {
	return fmt.Sprintf("round %s closed: %s", e.Round, e.Reason)
}

// NewRoundClosedError creates a new RoundClosedError.
func NewRoundClosedError(round Round, reason string) *RoundClosedError {
	return &RoundClosedError{Round: round, Reason: reason}
}
