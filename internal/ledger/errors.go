package ledger

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes vault errors.
type ErrorCode string

const (
	// CodeValidation indicates malformed or unsatisfiable criteria.
	CodeValidation ErrorCode = "VALIDATION"

	// CodeConflict indicates a duplicate reference or a double spend.
	CodeConflict ErrorCode = "CONFLICT"

	// CodeNotFound indicates a reference unknown to the vault.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeStorage indicates a durable storage failure. Safe to retry.
	CodeStorage ErrorCode = "STORAGE"
)

// ValidationError reports criteria that are malformed or can never match.
// Raised at construction or compile time, before any work is done.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", CodeValidation, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", CodeValidation, e.Message)
}

// ConflictError reports a duplicate state reference, a double spend, or a
// soft-lock clash. The enclosing batch has been rolled back.
type ConflictError struct {
	Ref     StateRef
	TxID    string // transaction being recorded, if any
	Message string
}

func (e *ConflictError) Error() string {
	if e.TxID != "" {
		return fmt.Sprintf("%s: %s (ref=%s, tx=%s)", CodeConflict, e.Message, e.Ref, e.TxID)
	}
	return fmt.Sprintf("%s: %s (ref=%s)", CodeConflict, e.Message, e.Ref)
}

// NotFoundError reports a reference absent from the vault, usually an
// ordering bug upstream.
type NotFoundError struct {
	Ref StateRef
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: state %s not in vault", CodeNotFound, e.Ref)
}

// StorageError wraps a durable storage failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", CodeStorage, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewDoubleSpendError creates a ConflictError for an input already consumed.
func NewDoubleSpendError(ref StateRef, txID string) *ConflictError {
	return &ConflictError{Ref: ref, TxID: txID, Message: "input already consumed"}
}

// NewDuplicateRefError creates a ConflictError for a reference already present.
func NewDuplicateRefError(ref StateRef, txID string) *ConflictError {
	return &ConflictError{Ref: ref, TxID: txID, Message: "state reference already recorded"}
}

// IsValidation reports whether err is a ValidationError. Uses errors.As to
// handle wrapped errors.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// IsStorage reports whether err is a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// CodeOf returns the code of a vault error, or "" for foreign errors.
func CodeOf(err error) ErrorCode {
	switch {
	case IsValidation(err):
		return CodeValidation
	case IsConflict(err):
		return CodeConflict
	case IsNotFound(err):
		return CodeNotFound
	case IsStorage(err):
		return CodeStorage
	}
	return ""
}
