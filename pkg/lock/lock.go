package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/cuemby/greenfleet/pkg/log"
	"github.com/cuemby/greenfleet/pkg/metrics"
	"github.com/cuemby/greenfleet/pkg/paramstore"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"k8s.io/utils/clock"
)

// ErrLockAlreadyHeld is returned by Acquire when a token already exists
var ErrLockAlreadyHeld = fmt.Errorf("deploy lock already held: %w", errdefs.ErrAlreadyExists)

// Info describes the token currently stored at a lock path
type Info struct {
	Path     string
	Token    string
	Owner    string
	Acquired time.Time
}

// Lock is a mutual-exclusion token at a fixed parameter path. Exclusion
// rests entirely on the store's atomic create-if-absent.
type Lock struct {
	store  paramstore.Store
	path   string
	owner  string
	clock  clock.PassiveClock
	token  string
	logger zerolog.Logger
}

// Option configures a Lock
type Option func(*Lock)

// WithOwner overrides the owner id written into tokens
func WithOwner(owner string) Option {
	return func(l *Lock) { l.owner = owner }
}

// WithClock overrides the clock used for token timestamps
func WithClock(clk clock.PassiveClock) Option {
	return func(l *Lock) { l.clock = clk }
}

// New creates a lock at path
func New(store paramstore.Store, path string, opts ...Option) *Lock {
	l := &Lock{
		store:  store,
		path:   path,
		owner:  DefaultOwner(),
		clock:  clock.RealClock{},
		logger: log.WithComponent("lock"),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With().Str("path", path).Logger()
	return l
}

// DefaultOwner returns hostname plus a short random suffix, unique per process
func DefaultOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}

// Path returns the lock's parameter path
func (l *Lock) Path() string {
	return l.path
}

// Held reports whether this instance holds a token it created
func (l *Lock) Held() bool {
	return l.token != ""
}

// Acquire writes a fresh owner+timestamp token if none exists
func (l *Lock) Acquire(ctx context.Context) error {
	token := FormatToken(l.owner, l.clock.Now())

	if _, err := l.store.Create(ctx, l.path, token); err != nil {
		if errors.Is(err, paramstore.ErrAlreadyExists) {
			metrics.LockAcquisitionsTotal.WithLabelValues("held").Inc()
			holder := "unknown"
			if info, rerr := l.Read(ctx); rerr == nil {
				holder = info.Token
			}
			return fmt.Errorf("%s held by %s: %w", l.path, holder, ErrLockAlreadyHeld)
		}
		metrics.LockAcquisitionsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("acquiring lock %s: %w", l.path, err)
	}

	l.token = token
	metrics.LockAcquisitionsTotal.WithLabelValues("acquired").Inc()
	l.logger.Info().Str("token", token).Msg("Lock acquired")
	return nil
}

// Release deletes the token this instance created. Without one it does
// nothing, so it never removes somebody else's lock.
func (l *Lock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}

	err := l.store.Delete(ctx, l.path)
	if errors.Is(err, paramstore.ErrNotFound) {
		l.logger.Warn().Str("token", l.token).Msg("Lock vanished before release")
		l.token = ""
		return nil
	}
	if err != nil {
		return fmt.Errorf("releasing lock %s: %w", l.path, err)
	}

	l.logger.Info().Str("token", l.token).Msg("Lock released")
	l.token = ""
	return nil
}

// ReleaseForce deletes whatever token is stored, for administrative
// recovery only
func (l *Lock) ReleaseForce(ctx context.Context) error {
	err := l.store.Delete(ctx, l.path)
	if errors.Is(err, paramstore.ErrNotFound) {
		l.logger.Info().Msg("No lock to release")
		return nil
	}
	if err != nil {
		return fmt.Errorf("force releasing lock %s: %w", l.path, err)
	}
	l.logger.Warn().Msg("Lock force released")
	l.token = ""
	return nil
}

// Read returns the stored token, or an error wrapping paramstore.ErrNotFound
// when the lock is free
func (l *Lock) Read(ctx context.Context) (*Info, error) {
	p, err := l.store.Get(ctx, l.path)
	if err != nil {
		return nil, err
	}
	info := &Info{Path: l.path, Token: p.Value}
	if owner, ts, perr := ParseToken(p.Value); perr == nil {
		info.Owner = owner
		info.Acquired = ts
	}
	return info, nil
}

// FormatToken renders owner=<id>,timestamp=<epoch seconds>
func FormatToken(owner string, at time.Time) string {
	return fmt.Sprintf("owner=%s,timestamp=%d", owner, at.Unix())
}

// ParseToken splits a token produced by FormatToken
func ParseToken(token string) (string, time.Time, error) {
	var (
		owner string
		ts    time.Time
		gotTS bool
	)
	for _, part := range strings.Split(token, ",") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return "", time.Time{}, fmt.Errorf("malformed lock token %q", token)
		}
		switch key {
		case "owner":
			owner = value
		case "timestamp":
			secs, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return "", time.Time{}, fmt.Errorf("malformed lock timestamp %q: %w", value, err)
			}
			ts = time.Unix(secs, 0).UTC()
			gotTS = true
		}
	}
	if owner == "" || !gotTS {
		return "", time.Time{}, fmt.Errorf("malformed lock token %q", token)
	}
	return owner, ts, nil
}
