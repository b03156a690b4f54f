package service

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// ErrEvaluationFailure indicates the AI evaluator was unreachable, timed out or
// returned output that could not be parsed. Callers may resubmit.
var ErrEvaluationFailure = errors.New("evaluation failed")

// ErrPersistenceFailure indicates the store rejected a write after a valid
// evaluation. The evaluation is discarded; callers must resubmit in full.
var ErrPersistenceFailure = errors.New("persistence failed")

// ErrProcessorFailure indicates the payment processor could not create an order.
var ErrProcessorFailure = errors.New("payment processor failed")

// ErrInvalidSignature indicates a payment confirmation whose signature does not match.
var ErrInvalidSignature = errors.New("invalid signature")

// ErrForbidden indicates the caller does not own the task.
var ErrForbidden = errors.New("forbidden")

// ErrTaskNotFound indicates the task cannot be located.
var ErrTaskNotFound = errors.New("task not found")

// ErrAlreadyUnlocked indicates the task's report is already unlocked and needs no payment.
var ErrAlreadyUnlocked = errors.New("task already unlocked")

// ErrInvalidRequest indicates input that passed decoding but cannot be served.
var ErrInvalidRequest = errors.New("invalid request")

// Wire-level error kinds.
const (
	KindEvaluationFailure  = "evaluation_failure"
	KindPersistenceFailure = "persistence_failure"
	KindProcessorFailure   = "processor_failure"
	KindInvalidSignature   = "invalid_signature"
	KindForbidden          = "forbidden"
	KindNotFound           = "not_found"
	KindAlreadyUnlocked    = "already_unlocked"
	KindValidation         = "validation_error"
	KindInternal           = "internal_error"
)

// ErrorKind maps an error returned by this package to its wire-level kind.
func ErrorKind(err error) string {
	var validationErrors validator.ValidationErrors
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEvaluationFailure):
		return KindEvaluationFailure
	case errors.Is(err, ErrPersistenceFailure):
		return KindPersistenceFailure
	case errors.Is(err, ErrProcessorFailure):
		return KindProcessorFailure
	case errors.Is(err, ErrInvalidSignature):
		return KindInvalidSignature
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrTaskNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyUnlocked):
		return KindAlreadyUnlocked
	case errors.Is(err, ErrInvalidRequest), errors.As(err, &validationErrors):
		return KindValidation
	default:
		return KindInternal
	}
}
