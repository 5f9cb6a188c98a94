// Package errors provides the kernel's unified error-kind and refusal-code
// taxonomy. Every boundary-crossing operation in the
// kernel returns (or wraps) a *KernelError carrying one of these kinds, so
// callers can distinguish a system error from a business refusal by
// inspecting both the Kind and, where a pipeline reports one, the
// RefusalCode.
package errors

import (
	"errors"
	"fmt"
)

// Kind is a distinct discriminant for every error surfaced at a kernel
// boundary. Each value is the kind's taxonomy name as a string; callers
// compare kinds through Is and KindOf.
type Kind string

const (
	OK                      Kind = "OK"
	Err                     Kind = "ERR"
	InvalidArgument         Kind = "INVALID_ARGUMENT"
	DuplicateID             Kind = "DUPLICATE_ID"
	NotFound                Kind = "NOT_FOUND"
	InvalidData             Kind = "INVALID_DATA"
	Insufficient            Kind = "INSUFFICIENT"
	Overflow                Kind = "OVERFLOW"
	Migration               Kind = "MIGRATION"
	Format                  Kind = "FORMAT"
	ReplayEnd               Kind = "REPLAY_END"
	BudgetHit               Kind = "BUDGET_HIT"
	AlreadyResolved         Kind = "ALREADY_RESOLVED"
	ParticipantNotReady     Kind = "PARTICIPANT_NOT_READY"
	ObjectiveInvalid        Kind = "OBJECTIVE_INVALID"
	OutOfDomain             Kind = "OUT_OF_DOMAIN"
	InsufficientPopulation  Kind = "INSUFFICIENT_POPULATION"
	InsufficientEquipment   Kind = "INSUFFICIENT_EQUIPMENT"
	InsufficientLogistics   Kind = "INSUFFICIENT_LOGISTICS"
	InsufficientAuthority   Kind = "INSUFFICIENT_AUTHORITY"
	InsufficientLegitimacy  Kind = "INSUFFICIENT_LEGITIMACY"
	SchedulerFull           Kind = "SCHEDULER_FULL"
	SchedulerInvalid        Kind = "SCHEDULER_INVALID"
)

// KernelError is a structured error carrying the error Kind plus optional
// detail fields, mirroring a ServiceError but over the sim's own taxonomy
// instead of HTTP status codes.
type KernelError struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *KernelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *KernelError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a key/value detail and returns e for chaining.
func (e *KernelError) WithDetails(key string, value interface{}) *KernelError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a KernelError of the given kind.
func New(kind Kind, message string) *KernelError {
	return &KernelError{Kind: kind, Message: message}
}

// Wrap creates a KernelError of the given kind wrapping an underlying error.
func Wrap(kind Kind, message string, err error) *KernelError {
	return &KernelError{Kind: kind, Message: message, Err: err}
}

// Is reports whether err is a KernelError of the given kind.
func Is(err error, kind Kind) bool {
	var ke *KernelError
	if errors.As(err, &ke) {
		return ke.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or Err if err is not a KernelError.
func KindOf(err error) Kind {
	var ke *KernelError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	if err == nil {
		return OK
	}
	return Err
}

// RefusalCode is a pipeline-specific business reason for rejecting a state
// transition, reported via an out-parameter alongside the KernelError
// so callers can separate "system error" from "business refusal".
type RefusalCode string

const (
	RefusalNone                  RefusalCode = ""
	RefusalInsufficientPopulation RefusalCode = "INSUFFICIENT_POPULATION"
	RefusalInsufficientEquipment  RefusalCode = "INSUFFICIENT_EQUIPMENT"
	RefusalInsufficientLogistics  RefusalCode = "INSUFFICIENT_LOGISTICS"
	RefusalInsufficientAuthority  RefusalCode = "INSUFFICIENT_AUTHORITY"
	RefusalInsufficientLegitimacy RefusalCode = "INSUFFICIENT_LEGITIMACY"
	RefusalAlreadyResolved        RefusalCode = "ALREADY_RESOLVED"
	RefusalParticipantNotReady    RefusalCode = "PARTICIPANT_NOT_READY"
	RefusalObjectiveInvalid       RefusalCode = "OBJECTIVE_INVALID"
	RefusalOutOfDomain            RefusalCode = "OUT_OF_DOMAIN"
)
