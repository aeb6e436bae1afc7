// Package operator provides the application-facing handle over a fully
// composed accessor stack.
//
// An Operator is constructed once from a backend accessor and an ordered
// list of layers, and is safe for concurrent use for its whole lifetime:
//
//	op, err := operator.New(memory.New(memory.Config{}),
//		layers.NewConcurrencyLimit(16),
//		layers.NewRetry(layers.DefaultRetryConfig()),
//	)
//
// Layer order matters and is fixed at construction: the last layer listed is
// outermost and sees every call first. The Operator itself adds only
// ergonomic call shapes (ReadAll, WriteAll, ListAll) over the Accessor
// surface; errors surface with their kind and context chain unchanged.
package operator

import (
	"bytes"
	"context"
	"io"

	serrors "github.com/stratastore/strata/pkg/errors"
	"github.com/stratastore/strata/pkg/layers"
	"github.com/stratastore/strata/pkg/types"
)

// Operator is the top-level entry point applications hold.
type Operator struct {
	accessor types.Accessor
	info     types.AccessorInfo
}

// New composes base with the given layers and returns an Operator over the
// result. The base accessor is wrapped in an internal guard that enforces
// capability gating, argument validation, and fault normalization before any
// user layer runs.
func New(base types.Accessor, ls ...layers.Layer) (*Operator, error) {
	if base == nil {
		return nil, serrors.New(serrors.KindInvalidArgument, "base accessor is nil")
	}
	acc := layers.Apply(newGuard(base), ls...)
	return &Operator{accessor: acc, info: acc.Info()}, nil
}

// Info returns the composed stack's identity and capability set.
func (o *Operator) Info() types.AccessorInfo { return o.info }

// Accessor exposes the composed stack for callers that need the raw
// interface, e.g. to stack further layers in tests.
func (o *Operator) Accessor() types.Accessor { return o.accessor }

// Stat returns the metadata snapshot for path.
func (o *Operator) Stat(ctx context.Context, path string, args types.OpStat) (types.Metadata, error) {
	return o.accessor.Stat(ctx, path, args)
}

// Exists reports whether path exists. NotFound maps to (false, nil); any
// other error is returned as-is.
func (o *Operator) Exists(ctx context.Context, path string) (bool, error) {
	_, err := o.accessor.Stat(ctx, path, types.OpStat{})
	if err != nil {
		if serrors.IsKind(err, serrors.KindNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Read opens a streaming Reader over path.
func (o *Operator) Read(ctx context.Context, path string, args types.OpRead) (types.Reader, error) {
	return o.accessor.Read(ctx, path, args)
}

// ReadAll drains a full read of path into memory.
func (o *Operator) ReadAll(ctx context.Context, path string) ([]byte, error) {
	return o.readAll(ctx, path, types.OpRead{})
}

// ReadRange drains a ranged read of path into memory.
func (o *Operator) ReadRange(ctx context.Context, path string, offset, length int64) ([]byte, error) {
	return o.readAll(ctx, path, types.OpRead{Range: types.NewRange(offset, length)})
}

func (o *Operator) readAll(ctx context.Context, path string, args types.OpRead) ([]byte, error) {
	r, err := o.accessor.Read(ctx, path, args)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var buf bytes.Buffer
	if !args.Range.ToEnd() {
		buf.Grow(int(args.Range.Length))
	}
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write opens a streaming Writer at path. The object becomes visible only
// when the Writer is closed.
func (o *Operator) Write(ctx context.Context, path string, args types.OpWrite) (types.Writer, error) {
	return o.accessor.Write(ctx, path, args)
}

// WriteAll writes data to path in one call, finalizing the writer. On error
// the partial write is aborted.
func (o *Operator) WriteAll(ctx context.Context, path string, data []byte, args types.OpWrite) error {
	if args.ContentLength <= 0 {
		args.ContentLength = int64(len(data))
	}
	w, err := o.accessor.Write(ctx, path, args)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Abort()
		return err
	}
	return w.Close()
}

// Delete removes path. Deleting a nonexistent path succeeds.
func (o *Operator) Delete(ctx context.Context, path string) error {
	return o.accessor.Delete(ctx, path, types.OpDelete{})
}

// List opens a Lister over the entries under path.
func (o *Operator) List(ctx context.Context, path string, args types.OpList) (types.Lister, error) {
	return o.accessor.List(ctx, path, args)
}

// ListAll drains a listing into memory.
func (o *Operator) ListAll(ctx context.Context, path string, args types.OpList) ([]types.Entry, error) {
	l, err := o.accessor.List(ctx, path, args)
	if err != nil {
		return nil, err
	}
	var entries []types.Entry
	for {
		e, err := l.Next(ctx)
		if err != nil {
			return nil, err
		}
		if e == nil {
			return entries, nil
		}
		entries = append(entries, *e)
	}
}

// Copy duplicates the object at from to to.
func (o *Operator) Copy(ctx context.Context, from, to string, args types.OpCopy) error {
	return o.accessor.Copy(ctx, from, to, args)
}

// Rename moves the object at from to to.
func (o *Operator) Rename(ctx context.Context, from, to string, args types.OpRename) error {
	return o.accessor.Rename(ctx, from, to, args)
}

// Presign produces a signed request authorizing the given operation on path.
func (o *Operator) Presign(ctx context.Context, path string, args types.OpPresign) (*types.PresignedRequest, error) {
	return o.accessor.Presign(ctx, path, args)
}
