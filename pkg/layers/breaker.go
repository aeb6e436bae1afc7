package layers

import (
	"context"
	"sync"
	"time"

	serrors "github.com/stratastore/strata/pkg/errors"
	"github.com/stratastore/strata/pkg/types"
)

// BreakerState represents the circuit breaker state.
type BreakerState int

const (
	// BreakerClosed: requests pass through.
	BreakerClosed BreakerState = iota
	// BreakerOpen: requests are rejected without reaching the backend.
	BreakerOpen
	// BreakerHalfOpen: a limited number of probe requests test recovery.
	BreakerHalfOpen
)

// String returns string representation of the state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "CLOSED"
	case BreakerOpen:
		return "OPEN"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerCounts holds request outcomes within the current generation.
type BreakerCounts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func (c *BreakerCounts) onRequest() { c.Requests++ }

func (c *BreakerCounts) onSuccess() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *BreakerCounts) onFailure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

func (c *BreakerCounts) clear() { *c = BreakerCounts{} }

// BreakerConfig contains circuit breaker configuration.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32 `yaml:"max_requests"`

	// Interval after which the closed-state counts reset.
	Interval time.Duration `yaml:"interval"`

	// Timeout the breaker stays open before probing.
	Timeout time.Duration `yaml:"timeout"`

	// ReadyToTrip decides when accumulated failures open the breaker.
	ReadyToTrip func(counts BreakerCounts) bool `yaml:"-"`

	// OnStateChange is called on every state transition.
	OnStateChange func(scheme string, from, to BreakerState) `yaml:"-"`
}

// Breaker is a circuit-breaker layer. While open, calls fail immediately
// with a retryable ServiceUnavailable error instead of hammering a backend
// that is already failing; after Timeout a half-open probe window decides
// whether to close again.
//
// Only infrastructure failures count against the breaker: errors of kind
// NotFound, AlreadyExists, Unsupported, InvalidArgument, AlreadyClosed,
// RangeNotSatisfiable, and Cancelled are outcomes of a healthy backend.
type Breaker struct {
	config BreakerConfig
}

// NewBreaker creates a circuit-breaker layer, filling zero config fields
// with defaults.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.MaxRequests == 0 {
		config.MaxRequests = 1
	}
	if config.Interval <= 0 {
		config.Interval = 60 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.ReadyToTrip == nil {
		config.ReadyToTrip = func(counts BreakerCounts) bool {
			return counts.ConsecutiveFailures >= 5
		}
	}
	return &Breaker{config: config}
}

// Apply implements Layer.
func (l *Breaker) Apply(inner types.Accessor) types.Accessor {
	return &breakerAccessor{
		inner:  inner,
		scheme: inner.Info().Scheme,
		config: l.config,
		state:  BreakerClosed,
		expiry: time.Now().Add(l.config.Interval),
	}
}

type breakerAccessor struct {
	inner  types.Accessor
	scheme string
	config BreakerConfig

	mu     sync.Mutex
	state  BreakerState
	counts BreakerCounts
	expiry time.Time
}

func (a *breakerAccessor) Info() types.AccessorInfo { return a.inner.Info() }

// countsAgainstBreaker reports whether err indicates backend trouble rather
// than an ordinary per-request outcome.
func countsAgainstBreaker(err error) bool {
	switch serrors.KindOf(err) {
	case serrors.KindNotFound, serrors.KindAlreadyExists, serrors.KindUnsupported,
		serrors.KindInvalidArgument, serrors.KindAlreadyClosed,
		serrors.KindRangeNotSatisfiable, serrors.KindCancelled:
		return false
	default:
		return true
	}
}

func (a *breakerAccessor) do(op types.Operation, fn func() error) error {
	if err := a.beforeRequest(op); err != nil {
		return err
	}
	err := fn()
	a.afterRequest(err)
	return err
}

func (a *breakerAccessor) beforeRequest(op types.Operation) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	state := a.currentState(now)

	if state == BreakerOpen {
		return serrors.New(serrors.KindServiceUnavailable, "circuit breaker open").
			WithScheme(a.scheme).
			WithOperation(string(op))
	}
	if state == BreakerHalfOpen && a.counts.Requests >= a.config.MaxRequests {
		return serrors.New(serrors.KindServiceUnavailable, "circuit breaker probing").
			WithScheme(a.scheme).
			WithOperation(string(op))
	}

	a.counts.onRequest()
	return nil
}

func (a *breakerAccessor) afterRequest(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	state := a.currentState(now)

	if err == nil || !countsAgainstBreaker(err) {
		a.counts.onSuccess()
		if state == BreakerHalfOpen {
			a.setState(BreakerClosed, now)
		}
		return
	}

	a.counts.onFailure()
	switch state {
	case BreakerClosed:
		if a.config.ReadyToTrip(a.counts) {
			a.setState(BreakerOpen, now)
		}
	case BreakerHalfOpen:
		a.setState(BreakerOpen, now)
	}
}

func (a *breakerAccessor) currentState(now time.Time) BreakerState {
	switch a.state {
	case BreakerClosed:
		if !a.expiry.IsZero() && a.expiry.Before(now) {
			a.counts.clear()
			a.expiry = now.Add(a.config.Interval)
		}
	case BreakerOpen:
		if a.expiry.Before(now) {
			a.setState(BreakerHalfOpen, now)
		}
	}
	return a.state
}

func (a *breakerAccessor) setState(state BreakerState, now time.Time) {
	if a.state == state {
		return
	}
	prev := a.state
	a.state = state
	a.counts.clear()

	switch state {
	case BreakerClosed:
		a.expiry = now.Add(a.config.Interval)
	case BreakerOpen:
		a.expiry = now.Add(a.config.Timeout)
	case BreakerHalfOpen:
		a.expiry = time.Time{}
	}

	if a.config.OnStateChange != nil {
		a.config.OnStateChange(a.scheme, prev, state)
	}
}

// State returns the breaker's current state.
func (a *breakerAccessor) State() BreakerState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentState(time.Now())
}

func (a *breakerAccessor) Stat(ctx context.Context, path string, args types.OpStat) (types.Metadata, error) {
	var meta types.Metadata
	err := a.do(types.OperationStat, func() error {
		var err error
		meta, err = a.inner.Stat(ctx, path, args)
		return err
	})
	return meta, err
}

func (a *breakerAccessor) Read(ctx context.Context, path string, args types.OpRead) (types.Reader, error) {
	var r types.Reader
	err := a.do(types.OperationRead, func() error {
		var err error
		r, err = a.inner.Read(ctx, path, args)
		return err
	})
	return r, err
}

func (a *breakerAccessor) Write(ctx context.Context, path string, args types.OpWrite) (types.Writer, error) {
	var w types.Writer
	err := a.do(types.OperationWrite, func() error {
		var err error
		w, err = a.inner.Write(ctx, path, args)
		return err
	})
	return w, err
}

func (a *breakerAccessor) Delete(ctx context.Context, path string, args types.OpDelete) error {
	return a.do(types.OperationDelete, func() error {
		return a.inner.Delete(ctx, path, args)
	})
}

func (a *breakerAccessor) List(ctx context.Context, path string, args types.OpList) (types.Lister, error) {
	var l types.Lister
	err := a.do(types.OperationList, func() error {
		var err error
		l, err = a.inner.List(ctx, path, args)
		return err
	})
	return l, err
}

func (a *breakerAccessor) Copy(ctx context.Context, from, to string, args types.OpCopy) error {
	return a.do(types.OperationCopy, func() error {
		return a.inner.Copy(ctx, from, to, args)
	})
}

func (a *breakerAccessor) Rename(ctx context.Context, from, to string, args types.OpRename) error {
	return a.do(types.OperationRename, func() error {
		return a.inner.Rename(ctx, from, to, args)
	})
}

func (a *breakerAccessor) Presign(ctx context.Context, path string, args types.OpPresign) (*types.PresignedRequest, error) {
	var req *types.PresignedRequest
	err := a.do(types.OperationPresign, func() error {
		var err error
		req, err = a.inner.Presign(ctx, path, args)
		return err
	})
	return req, err
}
