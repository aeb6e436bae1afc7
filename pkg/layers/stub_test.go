package layers

import (
	"bytes"
	"context"
	"io"
	"sync/atomic"

	"github.com/stratastore/strata/pkg/types"
)

// stubAccessor is a scriptable accessor for layer tests. Each operation
// counts its calls and delegates to an optional hook; without a hook it
// succeeds with zero values.
type stubAccessor struct {
	info types.AccessorInfo

	calls struct {
		stat, read, write, delete, list, copy, rename, presign atomic.Int64
	}

	statFn   func(ctx context.Context, path string, args types.OpStat) (types.Metadata, error)
	readFn   func(ctx context.Context, path string, args types.OpRead) (types.Reader, error)
	writeFn  func(ctx context.Context, path string, args types.OpWrite) (types.Writer, error)
	deleteFn func(ctx context.Context, path string, args types.OpDelete) error
	listFn   func(ctx context.Context, path string, args types.OpList) (types.Lister, error)
	copyFn   func(ctx context.Context, from, to string, args types.OpCopy) error
	renameFn func(ctx context.Context, from, to string, args types.OpRename) error
}

func newStub() *stubAccessor {
	return &stubAccessor{
		info: types.AccessorInfo{
			Scheme: "stub",
			Root:   "/",
			Capability: types.Capability{
				Stat: true, Read: true, Write: true, Delete: true,
				List: true, Copy: true, Rename: true, Presign: true,
				ReadWithRange: true,
			},
		},
	}
}

func (s *stubAccessor) Info() types.AccessorInfo { return s.info }

func (s *stubAccessor) Stat(ctx context.Context, path string, args types.OpStat) (types.Metadata, error) {
	s.calls.stat.Add(1)
	if s.statFn != nil {
		return s.statFn(ctx, path, args)
	}
	return types.NewMetadata(types.ModeFile), nil
}

func (s *stubAccessor) Read(ctx context.Context, path string, args types.OpRead) (types.Reader, error) {
	s.calls.read.Add(1)
	if s.readFn != nil {
		return s.readFn(ctx, path, args)
	}
	return nopReader{bytes.NewReader(nil)}, nil
}

func (s *stubAccessor) Write(ctx context.Context, path string, args types.OpWrite) (types.Writer, error) {
	s.calls.write.Add(1)
	if s.writeFn != nil {
		return s.writeFn(ctx, path, args)
	}
	return &nopWriter{}, nil
}

func (s *stubAccessor) Delete(ctx context.Context, path string, args types.OpDelete) error {
	s.calls.delete.Add(1)
	if s.deleteFn != nil {
		return s.deleteFn(ctx, path, args)
	}
	return nil
}

func (s *stubAccessor) List(ctx context.Context, path string, args types.OpList) (types.Lister, error) {
	s.calls.list.Add(1)
	if s.listFn != nil {
		return s.listFn(ctx, path, args)
	}
	return types.NewSliceLister(nil), nil
}

func (s *stubAccessor) Copy(ctx context.Context, from, to string, args types.OpCopy) error {
	s.calls.copy.Add(1)
	if s.copyFn != nil {
		return s.copyFn(ctx, from, to, args)
	}
	return nil
}

func (s *stubAccessor) Rename(ctx context.Context, from, to string, args types.OpRename) error {
	s.calls.rename.Add(1)
	if s.renameFn != nil {
		return s.renameFn(ctx, from, to, args)
	}
	return nil
}

func (s *stubAccessor) Presign(ctx context.Context, path string, args types.OpPresign) (*types.PresignedRequest, error) {
	s.calls.presign.Add(1)
	return &types.PresignedRequest{Method: "GET", URL: "https://stub/" + path}, nil
}

type nopReader struct{ *bytes.Reader }

func (nopReader) Close() error { return nil }

func stubReaderFor(s string) types.Reader {
	return nopReader{bytes.NewReader([]byte(s))}
}

type nopWriter struct {
	n      int64
	closed bool
}

func (w *nopWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}

func (w *nopWriter) Close() error { w.closed = true; return nil }
func (w *nopWriter) Abort() error { w.closed = true; return nil }

var _ io.Reader = nopReader{}
