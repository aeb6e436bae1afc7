package layers

import (
	"context"

	"golang.org/x/time/rate"

	serrors "github.com/stratastore/strata/pkg/errors"
	"github.com/stratastore/strata/pkg/types"
)

// ThrottleConfig defines token-bucket limits for the throttle layer.
type ThrottleConfig struct {
	// OpsPerSecond is the sustained operation rate, 0 meaning unlimited.
	OpsPerSecond float64 `yaml:"ops_per_second"`
	// OpsBurst is the operation bucket capacity. Defaults to twice the
	// sustained rate when zero.
	OpsBurst int `yaml:"ops_burst"`

	// BytesPerSecond is the sustained byte throughput across all readers and
	// writers, 0 meaning unlimited.
	BytesPerSecond float64 `yaml:"bytes_per_second"`
	// BytesBurst is the byte bucket capacity. Defaults to one second's worth
	// of bytes when zero.
	BytesBurst int `yaml:"bytes_burst"`
}

// Throttle rate-limits operation count and byte throughput with token
// buckets. Calls exceeding the instantaneous rate suspend until tokens
// accrue; the layer never drops or fails a call solely due to rate limiting.
// The only error it introduces is Cancelled, when the caller gives up while
// suspended.
type Throttle struct {
	config ThrottleConfig
}

// NewThrottle creates a throttle layer.
func NewThrottle(config ThrottleConfig) *Throttle {
	if config.OpsPerSecond > 0 && config.OpsBurst <= 0 {
		config.OpsBurst = int(config.OpsPerSecond * 2)
		if config.OpsBurst < 1 {
			config.OpsBurst = 1
		}
	}
	if config.BytesPerSecond > 0 && config.BytesBurst <= 0 {
		config.BytesBurst = int(config.BytesPerSecond)
		if config.BytesBurst < 1 {
			config.BytesBurst = 1
		}
	}
	return &Throttle{config: config}
}

// Apply implements Layer.
func (l *Throttle) Apply(inner types.Accessor) types.Accessor {
	a := &throttleAccessor{inner: inner}
	if l.config.OpsPerSecond > 0 {
		a.ops = rate.NewLimiter(rate.Limit(l.config.OpsPerSecond), l.config.OpsBurst)
	}
	if l.config.BytesPerSecond > 0 {
		a.bytes = rate.NewLimiter(rate.Limit(l.config.BytesPerSecond), l.config.BytesBurst)
	}
	return a
}

type throttleAccessor struct {
	inner types.Accessor
	ops   *rate.Limiter
	bytes *rate.Limiter
}

func (a *throttleAccessor) Info() types.AccessorInfo { return a.inner.Info() }

// waitOp suspends until one operation token is available.
func (a *throttleAccessor) waitOp(ctx context.Context) error {
	if a.ops == nil {
		return nil
	}
	if err := a.ops.Wait(ctx); err != nil {
		return serrors.FromContext(err)
	}
	return nil
}

// waitBytes suspends until n byte tokens accrue, reserving in burst-sized
// slices so a single large chunk can never exceed the bucket capacity.
func (a *throttleAccessor) waitBytes(ctx context.Context, n int) error {
	if a.bytes == nil || n <= 0 {
		return nil
	}
	burst := a.bytes.Burst()
	for n > 0 {
		take := n
		if take > burst {
			take = burst
		}
		if err := a.bytes.WaitN(ctx, take); err != nil {
			return serrors.FromContext(err)
		}
		n -= take
	}
	return nil
}

func (a *throttleAccessor) Stat(ctx context.Context, path string, args types.OpStat) (types.Metadata, error) {
	if err := a.waitOp(ctx); err != nil {
		return types.Metadata{}, err
	}
	return a.inner.Stat(ctx, path, args)
}

func (a *throttleAccessor) Read(ctx context.Context, path string, args types.OpRead) (types.Reader, error) {
	if err := a.waitOp(ctx); err != nil {
		return nil, err
	}
	r, err := a.inner.Read(ctx, path, args)
	if err != nil {
		return nil, err
	}
	if a.bytes == nil {
		return r, nil
	}
	return &throttledReader{inner: r, layer: a, ctx: ctx}, nil
}

func (a *throttleAccessor) Write(ctx context.Context, path string, args types.OpWrite) (types.Writer, error) {
	if err := a.waitOp(ctx); err != nil {
		return nil, err
	}
	w, err := a.inner.Write(ctx, path, args)
	if err != nil {
		return nil, err
	}
	if a.bytes == nil {
		return w, nil
	}
	return &throttledWriter{inner: w, layer: a, ctx: ctx}, nil
}

func (a *throttleAccessor) Delete(ctx context.Context, path string, args types.OpDelete) error {
	if err := a.waitOp(ctx); err != nil {
		return err
	}
	return a.inner.Delete(ctx, path, args)
}

func (a *throttleAccessor) List(ctx context.Context, path string, args types.OpList) (types.Lister, error) {
	if err := a.waitOp(ctx); err != nil {
		return nil, err
	}
	return a.inner.List(ctx, path, args)
}

func (a *throttleAccessor) Copy(ctx context.Context, from, to string, args types.OpCopy) error {
	if err := a.waitOp(ctx); err != nil {
		return err
	}
	return a.inner.Copy(ctx, from, to, args)
}

func (a *throttleAccessor) Rename(ctx context.Context, from, to string, args types.OpRename) error {
	if err := a.waitOp(ctx); err != nil {
		return err
	}
	return a.inner.Rename(ctx, from, to, args)
}

func (a *throttleAccessor) Presign(ctx context.Context, path string, args types.OpPresign) (*types.PresignedRequest, error) {
	if err := a.waitOp(ctx); err != nil {
		return nil, err
	}
	return a.inner.Presign(ctx, path, args)
}

// throttledReader pays for bytes after they arrive, smoothing sustained
// throughput to the configured rate.
type throttledReader struct {
	inner types.Reader
	layer *throttleAccessor
	ctx   context.Context
}

func (r *throttledReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	if n > 0 {
		if werr := r.layer.waitBytes(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

func (r *throttledReader) Close() error { return r.inner.Close() }

// throttledWriter pays for bytes before handing them to the inner writer.
type throttledWriter struct {
	inner types.Writer
	layer *throttleAccessor
	ctx   context.Context
}

func (w *throttledWriter) Write(p []byte) (int, error) {
	if err := w.layer.waitBytes(w.ctx, len(p)); err != nil {
		return 0, err
	}
	return w.inner.Write(p)
}

func (w *throttledWriter) Close() error { return w.inner.Close() }
func (w *throttledWriter) Abort() error { return w.inner.Abort() }
