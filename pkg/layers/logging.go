package layers

import (
	"context"
	"log/slog"
	"time"

	serrors "github.com/stratastore/strata/pkg/errors"
	"github.com/stratastore/strata/pkg/types"
)

// Logging records every operation's start, outcome kind, duration, and byte
// count through a structured logger. It is a pure side-effecting wrapper:
// arguments, results, and error kinds pass through untouched, and logging
// never suspends or fails a call.
type Logging struct {
	logger *slog.Logger
}

// NewLogging creates a logging layer. A nil logger falls back to
// slog.Default().
func NewLogging(logger *slog.Logger) *Logging {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logging{logger: logger}
}

// Apply implements Layer.
func (l *Logging) Apply(inner types.Accessor) types.Accessor {
	info := inner.Info()
	return &loggingAccessor{
		inner:  inner,
		logger: l.logger.With("component", "strata", "scheme", info.Scheme),
	}
}

type loggingAccessor struct {
	inner  types.Accessor
	logger *slog.Logger
}

func (a *loggingAccessor) Info() types.AccessorInfo { return a.inner.Info() }

// finish logs one completed operation. err may be nil.
func (a *loggingAccessor) finish(op types.Operation, path string, start time.Time, err error) {
	elapsed := time.Since(start)
	if err != nil {
		a.logger.Warn("operation failed",
			"operation", string(op),
			"path", path,
			"kind", string(serrors.KindOf(err)),
			"elapsed", elapsed,
		)
		return
	}
	a.logger.Debug("operation completed",
		"operation", string(op),
		"path", path,
		"elapsed", elapsed,
	)
}

func (a *loggingAccessor) Stat(ctx context.Context, path string, args types.OpStat) (types.Metadata, error) {
	start := time.Now()
	meta, err := a.inner.Stat(ctx, path, args)
	a.finish(types.OperationStat, path, start, err)
	return meta, err
}

func (a *loggingAccessor) Read(ctx context.Context, path string, args types.OpRead) (types.Reader, error) {
	start := time.Now()
	r, err := a.inner.Read(ctx, path, args)
	if err != nil {
		a.finish(types.OperationRead, path, start, err)
		return nil, err
	}
	return &loggedReader{inner: r, acc: a, path: path, start: start}, nil
}

func (a *loggingAccessor) Write(ctx context.Context, path string, args types.OpWrite) (types.Writer, error) {
	start := time.Now()
	w, err := a.inner.Write(ctx, path, args)
	if err != nil {
		a.finish(types.OperationWrite, path, start, err)
		return nil, err
	}
	return &loggedWriter{inner: w, acc: a, path: path, start: start}, nil
}

func (a *loggingAccessor) Delete(ctx context.Context, path string, args types.OpDelete) error {
	start := time.Now()
	err := a.inner.Delete(ctx, path, args)
	a.finish(types.OperationDelete, path, start, err)
	return err
}

func (a *loggingAccessor) List(ctx context.Context, path string, args types.OpList) (types.Lister, error) {
	start := time.Now()
	l, err := a.inner.List(ctx, path, args)
	a.finish(types.OperationList, path, start, err)
	return l, err
}

func (a *loggingAccessor) Copy(ctx context.Context, from, to string, args types.OpCopy) error {
	start := time.Now()
	err := a.inner.Copy(ctx, from, to, args)
	a.finish(types.OperationCopy, from, start, err)
	return err
}

func (a *loggingAccessor) Rename(ctx context.Context, from, to string, args types.OpRename) error {
	start := time.Now()
	err := a.inner.Rename(ctx, from, to, args)
	a.finish(types.OperationRename, from, start, err)
	return err
}

func (a *loggingAccessor) Presign(ctx context.Context, path string, args types.OpPresign) (*types.PresignedRequest, error) {
	start := time.Now()
	req, err := a.inner.Presign(ctx, path, args)
	a.finish(types.OperationPresign, path, start, err)
	return req, err
}

// loggedReader defers the completion log until Close so the byte count and
// duration cover the whole stream.
type loggedReader struct {
	inner types.Reader
	acc   *loggingAccessor
	path  string
	start time.Time
	bytes int64
}

func (r *loggedReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	r.bytes += int64(n)
	return n, err
}

func (r *loggedReader) Close() error {
	err := r.inner.Close()
	r.acc.logger.Debug("read stream closed",
		"operation", string(types.OperationRead),
		"path", r.path,
		"bytes", r.bytes,
		"elapsed", time.Since(r.start),
	)
	return err
}

type loggedWriter struct {
	inner types.Writer
	acc   *loggingAccessor
	path  string
	start time.Time
	bytes int64
}

func (w *loggedWriter) Write(p []byte) (int, error) {
	n, err := w.inner.Write(p)
	w.bytes += int64(n)
	return n, err
}

func (w *loggedWriter) Close() error {
	err := w.inner.Close()
	w.acc.finish(types.OperationWrite, w.path, w.start, err)
	if err == nil {
		w.acc.logger.Debug("write stream committed",
			"path", w.path,
			"bytes", w.bytes,
			"elapsed", time.Since(w.start),
		)
	}
	return err
}

func (w *loggedWriter) Abort() error {
	err := w.inner.Abort()
	w.acc.logger.Debug("write stream aborted",
		"path", w.path,
		"bytes", w.bytes,
		"elapsed", time.Since(w.start),
	)
	return err
}
