package dto

import (
	"errors"
	"fmt"
)

type GenerationErrorReason string

const (
	GenerationTimeout             GenerationErrorReason = "timeout"
	GenerationCollaboratorFailure GenerationErrorReason = "collaborator_failure"
)

// GenerationError is terminal for the execution it belongs to. It never
// disables the report.
type GenerationError struct {
	Reason GenerationErrorReason
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("generation failed (%s)", e.Reason)
}

func (e *GenerationError) Unwrap() error { return e.Err }

type DeliveryErrorKind string

const (
	DeliveryCredentialInactive DeliveryErrorKind = "credential_inactive"
	DeliveryInvalidTarget      DeliveryErrorKind = "invalid_target"
	DeliveryTransient          DeliveryErrorKind = "transient"
)

type DeliveryError struct {
	Kind DeliveryErrorKind
	Err  error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("delivery failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("delivery failed (%s)", e.Kind)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// ValidationError rejects malformed schedule definitions synchronously
// at creation time, before the checker ever sees them.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Detail)
}

var (
	ErrReportNotFound    = errors.New("scheduled report not found")
	ErrExecutionNotFound = errors.New("report execution not found")
	ErrWorkspaceNotFound = errors.New("workspace credential not found")
	ErrClaimLost         = errors.New("report already claimed")
	ErrWorkersBusy       = errors.New("worker pool is full")
)
