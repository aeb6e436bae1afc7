package operator

import (
	"context"
	"fmt"

	serrors "github.com/stratastore/strata/pkg/errors"
	"github.com/stratastore/strata/pkg/types"
)

// guard wraps the base accessor before any user layer is applied. It is the
// enforcement point for three contracts every backend gets for free:
//
//   - capability gating: an operation the accessor does not advertise fails
//     fast with Unsupported before any backend I/O;
//   - argument validation: empty paths and malformed ranges fail with
//     InvalidArgument before reaching the backend;
//   - fault normalization: panics and non-taxonomy errors escaping the
//     backend are converted to Unexpected, and every error is annotated with
//     the scheme, operation, and path.
type guard struct {
	inner types.Accessor
	info  types.AccessorInfo
}

func newGuard(inner types.Accessor) *guard {
	return &guard{inner: inner, info: inner.Info()}
}

func (g *guard) Info() types.AccessorInfo { return g.info }

// check gates one operation on the advertised capability set.
func (g *guard) check(op types.Operation, path string) error {
	if !g.info.Capability.Supports(op) {
		return serrors.Unsupported(g.info.Scheme, string(op))
	}
	if path == "" {
		return serrors.New(serrors.KindInvalidArgument, "path is empty").
			WithScheme(g.info.Scheme).
			WithOperation(string(op))
	}
	return nil
}

// annotate normalizes an error escaping the backend: context errors become
// Cancelled, taxonomy errors gain scheme/operation/path context, anything
// else becomes Unexpected.
func (g *guard) annotate(op types.Operation, path string, err error) error {
	if err == nil {
		return nil
	}
	err = serrors.FromContext(err)
	se, ok := err.(*serrors.Error)
	if !ok {
		se = serrors.Unexpected("backend returned unclassified error", err)
	}
	return se.WithScheme(g.info.Scheme).WithOperation(string(op)).WithPath(path)
}

// recovered converts a backend panic into an Unexpected error.
func (g *guard) recovered(op types.Operation, path string, errp *error) {
	if r := recover(); r != nil {
		*errp = serrors.Unexpected(fmt.Sprintf("backend panicked: %v", r), nil).
			WithScheme(g.info.Scheme).
			WithOperation(string(op)).
			WithPath(path)
	}
}

func (g *guard) Stat(ctx context.Context, path string, args types.OpStat) (meta types.Metadata, err error) {
	if err := g.check(types.OperationStat, path); err != nil {
		return types.Metadata{}, err
	}
	defer g.recovered(types.OperationStat, path, &err)
	meta, err = g.inner.Stat(ctx, types.NormalizePath(path), args)
	err = g.annotate(types.OperationStat, path, err)
	return meta, err
}

func (g *guard) Read(ctx context.Context, path string, args types.OpRead) (r types.Reader, err error) {
	if err := g.check(types.OperationRead, path); err != nil {
		return nil, err
	}
	if args.Range.Offset < 0 {
		return nil, serrors.Newf(serrors.KindInvalidArgument, "negative range offset %d", args.Range.Offset).
			WithScheme(g.info.Scheme).
			WithOperation(string(types.OperationRead)).
			WithPath(path)
	}
	defer g.recovered(types.OperationRead, path, &err)
	r, err = g.inner.Read(ctx, types.NormalizePath(path), args)
	err = g.annotate(types.OperationRead, path, err)
	return r, err
}

func (g *guard) Write(ctx context.Context, path string, args types.OpWrite) (w types.Writer, err error) {
	if err := g.check(types.OperationWrite, path); err != nil {
		return nil, err
	}
	if max := g.info.Capability.MaxWriteSize; max > 0 && args.ContentLength > max {
		return nil, serrors.Newf(serrors.KindInvalidArgument, "write of %d bytes exceeds backend limit %d", args.ContentLength, max).
			WithScheme(g.info.Scheme).
			WithOperation(string(types.OperationWrite)).
			WithPath(path)
	}
	defer g.recovered(types.OperationWrite, path, &err)
	w, err = g.inner.Write(ctx, types.NormalizePath(path), args)
	err = g.annotate(types.OperationWrite, path, err)
	return w, err
}

func (g *guard) Delete(ctx context.Context, path string, args types.OpDelete) (err error) {
	if err := g.check(types.OperationDelete, path); err != nil {
		return err
	}
	defer g.recovered(types.OperationDelete, path, &err)
	err = g.annotate(types.OperationDelete, path, g.inner.Delete(ctx, types.NormalizePath(path), args))
	return err
}

func (g *guard) List(ctx context.Context, path string, args types.OpList) (l types.Lister, err error) {
	if err := g.check(types.OperationList, path); err != nil {
		return nil, err
	}
	if max := g.info.Capability.MaxListPageSize; max > 0 && args.Limit > max {
		args.Limit = max
	}
	defer g.recovered(types.OperationList, path, &err)
	l, err = g.inner.List(ctx, types.NormalizePath(path), args)
	err = g.annotate(types.OperationList, path, err)
	return l, err
}

func (g *guard) Copy(ctx context.Context, from, to string, args types.OpCopy) (err error) {
	if err := g.check(types.OperationCopy, from); err != nil {
		return err
	}
	if to == "" {
		return serrors.New(serrors.KindInvalidArgument, "destination path is empty").
			WithScheme(g.info.Scheme).
			WithOperation(string(types.OperationCopy))
	}
	defer g.recovered(types.OperationCopy, from, &err)
	err = g.annotate(types.OperationCopy, from,
		g.inner.Copy(ctx, types.NormalizePath(from), types.NormalizePath(to), args))
	return err
}

func (g *guard) Rename(ctx context.Context, from, to string, args types.OpRename) (err error) {
	if err := g.check(types.OperationRename, from); err != nil {
		return err
	}
	if to == "" {
		return serrors.New(serrors.KindInvalidArgument, "destination path is empty").
			WithScheme(g.info.Scheme).
			WithOperation(string(types.OperationRename))
	}
	defer g.recovered(types.OperationRename, from, &err)
	err = g.annotate(types.OperationRename, from,
		g.inner.Rename(ctx, types.NormalizePath(from), types.NormalizePath(to), args))
	return err
}

func (g *guard) Presign(ctx context.Context, path string, args types.OpPresign) (req *types.PresignedRequest, err error) {
	if err := g.check(types.OperationPresign, path); err != nil {
		return nil, err
	}
	defer g.recovered(types.OperationPresign, path, &err)
	req, err = g.inner.Presign(ctx, types.NormalizePath(path), args)
	err = g.annotate(types.OperationPresign, path, err)
	return req, err
}
