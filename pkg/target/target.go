package target

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cuemby/greenfleet/pkg/paramstore"
)

// MaxImages caps the recent image ledger
const MaxImages = 10

// Key paths, relative to /{namespace}/{env}/{target}
const (
	lockKey         = "deploy/lock"
	fleetPointerKey = "deploy/fleet_name"
	imageListKey    = "build/image_id_list"
)

// Scope identifies one deploy target in one environment
type Scope struct {
	Namespace   string
	Environment string
	Target      string
}

// Validate checks that every part of the scope is set and path-safe
func (s Scope) Validate() error {
	for field, v := range map[string]string{
		"namespace":   s.Namespace,
		"environment": s.Environment,
		"target":      s.Target,
	} {
		if v == "" {
			return fmt.Errorf("%s is required", field)
		}
		if strings.ContainsAny(v, "/,") {
			return fmt.Errorf("%s %q must not contain '/' or ','", field, v)
		}
	}
	return nil
}

// Prefix returns /{namespace}/{env}/{target}
func (s Scope) Prefix() string {
	return fmt.Sprintf("/%s/%s/%s", s.Namespace, s.Environment, s.Target)
}

func (s Scope) String() string {
	return fmt.Sprintf("%s/%s", s.Environment, s.Target)
}

// Params is the typed record of the state persisted for one target. Each
// field has its own accessor backed by a fixed key path.
type Params struct {
	store paramstore.Store
	scope Scope
}

// NewParams binds a parameter record to scope
func NewParams(store paramstore.Store, scope Scope) *Params {
	return &Params{store: store, scope: scope}
}

// Scope returns the target scope
func (p *Params) Scope() Scope {
	return p.scope
}

// Store returns the underlying parameter store
func (p *Params) Store() paramstore.Store {
	return p.store
}

// LockPath is where the deploy lock token lives
func (p *Params) LockPath() string {
	return p.scope.Prefix() + "/" + lockKey
}

// FleetPointerPath is where the current fleet name lives
func (p *Params) FleetPointerPath() string {
	return p.scope.Prefix() + "/" + fleetPointerKey
}

// ImageListPath is where the recent image ledger lives
func (p *Params) ImageListPath() string {
	return p.scope.Prefix() + "/" + imageListKey
}

// CurrentFleet returns the canonical fleet name. ok is false when no deploy
// has completed yet; err is reserved for real failures.
func (p *Params) CurrentFleet(ctx context.Context) (name string, ok bool, err error) {
	param, err := p.store.Get(ctx, p.FleetPointerPath())
	if errors.Is(err, paramstore.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading current fleet: %w", err)
	}
	if param.Value == "" {
		return "", false, nil
	}
	return param.Value, true, nil
}

// SetCurrentFleet records name as the canonical fleet
func (p *Params) SetCurrentFleet(ctx context.Context, name string) error {
	if _, err := p.store.Put(ctx, p.FleetPointerPath(), name); err != nil {
		return fmt.Errorf("writing current fleet: %w", err)
	}
	return nil
}

// Images returns the recent image ledger, most recent first
func (p *Params) Images(ctx context.Context) ([]string, error) {
	param, err := p.store.Get(ctx, p.ImageListPath())
	if errors.Is(err, paramstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading image list: %w", err)
	}
	return splitImages(param.Value), nil
}

// LatestImage returns the most recently recorded image id
func (p *Params) LatestImage(ctx context.Context) (string, bool, error) {
	images, err := p.Images(ctx)
	if err != nil {
		return "", false, err
	}
	if len(images) == 0 {
		return "", false, nil
	}
	return images[0], true, nil
}

// RecordImage puts id at the front of the recent image ledger. The read and
// the write are one store update, so concurrent recorders never drop an id.
func (p *Params) RecordImage(ctx context.Context, id string) ([]string, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.Contains(id, ",") {
		return nil, fmt.Errorf("invalid image id %q", id)
	}

	var images []string
	_, err := p.store.Update(ctx, p.ImageListPath(), func(current *paramstore.Parameter) (string, error) {
		var prev []string
		if current != nil {
			prev = splitImages(current.Value)
		}
		images = Rotate(prev, id)
		return strings.Join(images, ","), nil
	})
	if err != nil {
		return nil, fmt.Errorf("writing image list: %w", err)
	}
	return images, nil
}

// Rotate inserts id at the front of list and drops entries past MaxImages
func Rotate(list []string, id string) []string {
	out := make([]string, 0, MaxImages)
	out = append(out, id)
	for _, v := range list {
		if len(out) == MaxImages {
			break
		}
		out = append(out, v)
	}
	return out
}

func splitImages(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
