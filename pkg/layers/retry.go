package layers

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand"
	"time"

	serrors "github.com/stratastore/strata/pkg/errors"
	"github.com/stratastore/strata/pkg/types"
)

// RetryConfig defines retry behavior for the retry layer.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int `yaml:"max_attempts"`

	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration `yaml:"initial_delay"`

	// MaxDelay caps the backoff between attempts.
	MaxDelay time.Duration `yaml:"max_delay"`

	// MaxElapsed bounds the total time spent across all attempts, backoff
	// included. Zero means no elapsed bound.
	MaxElapsed time.Duration `yaml:"max_elapsed"`

	// Multiplier is the factor by which the backoff grows per attempt.
	Multiplier float64 `yaml:"multiplier"`

	// Jitter randomizes each backoff by ±20% to avoid thundering herds.
	Jitter bool `yaml:"jitter"`

	// OnRetry is called before each retry attempt.
	OnRetry func(op types.Operation, attempt int, err error, delay time.Duration) `yaml:"-"`
}

// DefaultRetryConfig returns a sensible default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retry is a layer that retries operations failing with a retryable error,
// backing off exponentially between attempts. Non-retryable kinds propagate
// on first occurrence. On exhaustion the last observed error is returned
// with its kind unchanged, annotated with the attempt count.
//
// Read and Write retry the opening of the stream only; once a byte has been
// consumed or written, the stream belongs to the caller and is not replayed.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a retry layer, filling zero config fields with defaults.
func NewRetry(config RetryConfig) *Retry {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	return &Retry{config: config}
}

// Apply implements Layer.
func (l *Retry) Apply(inner types.Accessor) types.Accessor {
	return &retryAccessor{inner: inner, config: l.config}
}

type retryAccessor struct {
	inner  types.Accessor
	config RetryConfig
}

func (a *retryAccessor) Info() types.AccessorInfo { return a.inner.Info() }

// do runs fn until it succeeds, fails terminally, or the attempt/elapsed
// budget runs out.
func (a *retryAccessor) do(ctx context.Context, op types.Operation, fn func() error) error {
	start := time.Now()
	var lastErr error

	attempt := 0
	for {
		attempt++
		if err := ctx.Err(); err != nil {
			return serrors.FromContext(err)
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !serrors.IsRetryable(err) {
			return err
		}
		if attempt >= a.config.MaxAttempts {
			break
		}

		delay := a.backoff(attempt)
		if a.config.MaxElapsed > 0 && time.Since(start)+delay > a.config.MaxElapsed {
			break
		}
		if a.config.OnRetry != nil {
			a.config.OnRetry(op, attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return serrors.FromContext(ctx.Err())
		case <-time.After(delay):
		}
	}

	var se *serrors.Error
	if stderrors.As(lastErr, &se) {
		se.WithAttempts(attempt)
	}
	return lastErr
}

// backoff computes the delay before the next attempt: exponential growth
// capped at MaxDelay, with optional ±20% jitter.
func (a *retryAccessor) backoff(attempt int) time.Duration {
	delay := float64(a.config.InitialDelay) * math.Pow(a.config.Multiplier, float64(attempt-1))
	if delay > float64(a.config.MaxDelay) {
		delay = float64(a.config.MaxDelay)
	}
	if a.config.Jitter {
		delay += delay * 0.2 * (rand.Float64()*2 - 1)
	}
	return time.Duration(delay)
}

func (a *retryAccessor) Stat(ctx context.Context, path string, args types.OpStat) (types.Metadata, error) {
	var meta types.Metadata
	err := a.do(ctx, types.OperationStat, func() error {
		var err error
		meta, err = a.inner.Stat(ctx, path, args)
		return err
	})
	return meta, err
}

func (a *retryAccessor) Read(ctx context.Context, path string, args types.OpRead) (types.Reader, error) {
	var r types.Reader
	err := a.do(ctx, types.OperationRead, func() error {
		var err error
		r, err = a.inner.Read(ctx, path, args)
		return err
	})
	return r, err
}

func (a *retryAccessor) Write(ctx context.Context, path string, args types.OpWrite) (types.Writer, error) {
	var w types.Writer
	err := a.do(ctx, types.OperationWrite, func() error {
		var err error
		w, err = a.inner.Write(ctx, path, args)
		return err
	})
	return w, err
}

func (a *retryAccessor) Delete(ctx context.Context, path string, args types.OpDelete) error {
	return a.do(ctx, types.OperationDelete, func() error {
		return a.inner.Delete(ctx, path, args)
	})
}

func (a *retryAccessor) List(ctx context.Context, path string, args types.OpList) (types.Lister, error) {
	var l types.Lister
	err := a.do(ctx, types.OperationList, func() error {
		var err error
		l, err = a.inner.List(ctx, path, args)
		return err
	})
	return l, err
}

func (a *retryAccessor) Copy(ctx context.Context, from, to string, args types.OpCopy) error {
	return a.do(ctx, types.OperationCopy, func() error {
		return a.inner.Copy(ctx, from, to, args)
	})
}

func (a *retryAccessor) Rename(ctx context.Context, from, to string, args types.OpRename) error {
	return a.do(ctx, types.OperationRename, func() error {
		return a.inner.Rename(ctx, from, to, args)
	})
}

func (a *retryAccessor) Presign(ctx context.Context, path string, args types.OpPresign) (*types.PresignedRequest, error) {
	var req *types.PresignedRequest
	err := a.do(ctx, types.OperationPresign, func() error {
		var err error
		req, err = a.inner.Presign(ctx, path, args)
		return err
	})
	return req, err
}
