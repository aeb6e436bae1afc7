package layers

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	serrors "github.com/stratastore/strata/pkg/errors"
	"github.com/stratastore/strata/pkg/types"
)

// ConcurrencyLimit bounds the number of in-flight operations dispatched to
// the inner accessor with a counting semaphore. A call in excess of the
// limit suspends until a slot frees; waiters resume in FIFO order. The slot
// is held for the duration of the forwarded call; for Read and Write the
// stream is the operation, so the slot is held until the Reader or Writer is
// closed (or aborted). Cancelling a waiting or in-flight call releases its
// slot.
type ConcurrencyLimit struct {
	limit int64
}

// NewConcurrencyLimit creates a concurrency-limit layer allowing at most
// limit concurrent operations. Limits below one are treated as one.
func NewConcurrencyLimit(limit int64) *ConcurrencyLimit {
	if limit < 1 {
		limit = 1
	}
	return &ConcurrencyLimit{limit: limit}
}

// Apply implements Layer.
func (l *ConcurrencyLimit) Apply(inner types.Accessor) types.Accessor {
	return &concurrencyAccessor{
		inner: inner,
		sem:   semaphore.NewWeighted(l.limit),
	}
}

type concurrencyAccessor struct {
	inner types.Accessor
	sem   *semaphore.Weighted
}

func (a *concurrencyAccessor) Info() types.AccessorInfo { return a.inner.Info() }

// acquire takes one slot, suspending until one frees or ctx is cancelled.
func (a *concurrencyAccessor) acquire(ctx context.Context) error {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return serrors.FromContext(err)
	}
	return nil
}

func (a *concurrencyAccessor) release() { a.sem.Release(1) }

func (a *concurrencyAccessor) Stat(ctx context.Context, path string, args types.OpStat) (types.Metadata, error) {
	if err := a.acquire(ctx); err != nil {
		return types.Metadata{}, err
	}
	defer a.release()
	return a.inner.Stat(ctx, path, args)
}

func (a *concurrencyAccessor) Read(ctx context.Context, path string, args types.OpRead) (types.Reader, error) {
	if err := a.acquire(ctx); err != nil {
		return nil, err
	}
	r, err := a.inner.Read(ctx, path, args)
	if err != nil {
		a.release()
		return nil, err
	}
	return &slotReader{Reader: r, release: a.release}, nil
}

func (a *concurrencyAccessor) Write(ctx context.Context, path string, args types.OpWrite) (types.Writer, error) {
	if err := a.acquire(ctx); err != nil {
		return nil, err
	}
	w, err := a.inner.Write(ctx, path, args)
	if err != nil {
		a.release()
		return nil, err
	}
	return &slotWriter{Writer: w, release: a.release}, nil
}

func (a *concurrencyAccessor) Delete(ctx context.Context, path string, args types.OpDelete) error {
	if err := a.acquire(ctx); err != nil {
		return err
	}
	defer a.release()
	return a.inner.Delete(ctx, path, args)
}

func (a *concurrencyAccessor) List(ctx context.Context, path string, args types.OpList) (types.Lister, error) {
	if err := a.acquire(ctx); err != nil {
		return nil, err
	}
	defer a.release()
	return a.inner.List(ctx, path, args)
}

func (a *concurrencyAccessor) Copy(ctx context.Context, from, to string, args types.OpCopy) error {
	if err := a.acquire(ctx); err != nil {
		return err
	}
	defer a.release()
	return a.inner.Copy(ctx, from, to, args)
}

func (a *concurrencyAccessor) Rename(ctx context.Context, from, to string, args types.OpRename) error {
	if err := a.acquire(ctx); err != nil {
		return err
	}
	defer a.release()
	return a.inner.Rename(ctx, from, to, args)
}

func (a *concurrencyAccessor) Presign(ctx context.Context, path string, args types.OpPresign) (*types.PresignedRequest, error) {
	if err := a.acquire(ctx); err != nil {
		return nil, err
	}
	defer a.release()
	return a.inner.Presign(ctx, path, args)
}

// slotReader releases its concurrency slot exactly once, on Close.
type slotReader struct {
	types.Reader
	release func()
	once    sync.Once
}

func (r *slotReader) Close() error {
	err := r.Reader.Close()
	r.once.Do(r.release)
	return err
}

// slotWriter releases its concurrency slot exactly once, on Close or Abort.
type slotWriter struct {
	types.Writer
	release func()
	once    sync.Once
}

func (w *slotWriter) Close() error {
	err := w.Writer.Close()
	w.once.Do(w.release)
	return err
}

func (w *slotWriter) Abort() error {
	err := w.Writer.Abort()
	w.once.Do(w.release)
	return err
}
