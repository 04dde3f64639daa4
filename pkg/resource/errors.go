package resource

import (
	"context"
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/cuemby/greenfleet/pkg/fleetapi"
	"github.com/cuemby/greenfleet/pkg/types"
)

// Error taxonomy for fleet and launch spec operations. Each sentinel wraps
// the matching errdefs category.
var (
	ErrNotFound           = fmt.Errorf("resource not found: %w", errdefs.ErrNotFound)
	ErrAlreadyExists      = fmt.Errorf("resource already exists: %w", errdefs.ErrAlreadyExists)
	ErrLimitExceeded      = fmt.Errorf("limit exceeded: %w", errdefs.ErrResourceExhausted)
	ErrActivityInProgress = fmt.Errorf("scaling activity in progress: %w", errdefs.ErrConflict)
	ErrInUse              = fmt.Errorf("resource in use: %w", errdefs.ErrFailedPrecondition)
	ErrValidation         = fmt.Errorf("validation error: %w", errdefs.ErrInvalidArgument)
	ErrTransient          = fmt.Errorf("transient error: %w", errdefs.ErrUnavailable)
	ErrResource           = fmt.Errorf("resource error: %w", errdefs.ErrUnknown)
)

// classifiedError keeps the original error in the chain next to its category
type classifiedError struct {
	kind error
	err  error
}

func (e *classifiedError) Error() string {
	return e.err.Error()
}

func (e *classifiedError) Unwrap() []error {
	return []error{e.kind, e.err}
}

// Classify maps a fleet-manager error onto the taxonomy. The returned error
// matches both its category sentinel and the original error with errors.Is
// and errors.As. Context cancellation passes through untouched.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	for _, kind := range []error{ErrNotFound, ErrAlreadyExists, ErrLimitExceeded, ErrActivityInProgress,
		ErrInUse, ErrValidation, ErrTransient, ErrResource} {
		if errors.Is(err, kind) {
			return err
		}
	}

	code, ok := fleetapi.ErrorCode(err)
	if !ok {
		// no response at all: connection refused, reset, client timeout
		return &classifiedError{kind: ErrTransient, err: err}
	}

	var kind error
	switch code {
	case fleetapi.CodeNotFound:
		kind = ErrNotFound
	case fleetapi.CodeAlreadyExists:
		kind = ErrAlreadyExists
	case fleetapi.CodeLimitExceeded:
		kind = ErrLimitExceeded
	case fleetapi.CodeScalingActivityInProgress:
		kind = ErrActivityInProgress
	case fleetapi.CodeResourceInUse:
		kind = ErrInUse
	case fleetapi.CodeValidationError, fleetapi.CodeInvalidNextToken:
		kind = ErrValidation
	case fleetapi.CodeThrottling, fleetapi.CodeResourceContention,
		fleetapi.CodeInternalFailure, fleetapi.CodeServiceUnavailable:
		kind = ErrTransient
	default:
		var apiErr *fleetapi.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 500 {
			kind = ErrTransient
		} else {
			kind = ErrResource
		}
	}
	return &classifiedError{kind: kind, err: err}
}

// IsAmbiguous reports whether a failed mutation may still have been applied
// by the fleet manager: no definite answer came back before the call ended.
func IsAmbiguous(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// PartialCreateError reports a create that left a resource behind before
// failing, so callers can still compensate for it.
type PartialCreateError struct {
	Kind types.ResourceKind
	Name string
	Step string
	Err  error
}

func (e *PartialCreateError) Error() string {
	return fmt.Sprintf("%s %s created but %s failed: %v", e.Kind, e.Name, e.Step, e.Err)
}

func (e *PartialCreateError) Unwrap() error {
	return e.Err
}
