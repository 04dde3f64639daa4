package paramstore

import (
	"context"
	"fmt"
	"time"

	"github.com/containerd/errdefs"
)

var (
	// ErrNotFound is returned when no parameter exists under a name
	ErrNotFound = fmt.Errorf("parameter not found: %w", errdefs.ErrNotFound)

	// ErrAlreadyExists is returned by Create when the name is taken
	ErrAlreadyExists = fmt.Errorf("parameter already exists: %w", errdefs.ErrAlreadyExists)
)

// Parameter is one stored key/value pair
type Parameter struct {
	Name         string    `json:"name"`
	Value        string    `json:"value"`
	Version      int64     `json:"version"`
	LastModified time.Time `json:"last_modified"`
}

// Store is a hierarchical key/value parameter store. Names are
// slash-separated paths such as /greenfleet/prod/web/deploy/lock.
type Store interface {
	// Get returns the parameter stored under name, or ErrNotFound
	Get(ctx context.Context, name string) (*Parameter, error)

	// Create stores value under name only if nothing is stored there yet,
	// failing with ErrAlreadyExists otherwise. The check and the write are
	// one atomic step.
	Create(ctx context.Context, name, value string) (*Parameter, error)

	// Put stores value under name, replacing any previous value
	Put(ctx context.Context, name, value string) (*Parameter, error)

	// Update reads name and stores the value fn derives from it, in one
	// atomic step. fn receives nil when nothing is stored; an error from fn
	// aborts the update and is returned as-is.
	Update(ctx context.Context, name string, fn func(current *Parameter) (string, error)) (*Parameter, error)

	// Delete removes name, or fails with ErrNotFound
	Delete(ctx context.Context, name string) error

	// List returns every parameter whose name starts with prefix
	List(ctx context.Context, prefix string) ([]*Parameter, error)

	Close() error
}
