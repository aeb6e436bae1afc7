// Package fs provides a local-filesystem storage service rooted at a
// configured directory.
//
// Writes stage into a temp file in the target directory and rename into
// place on Close, so a failed or abandoned write never leaves a visible,
// truncated object.
package fs

import (
	"context"
	stderrors "errors"
	"io"
	"io/fs"
	"os"
	gopath "path"
	"path/filepath"
	"sort"
	"strings"

	serrors "github.com/stratastore/strata/pkg/errors"
	"github.com/stratastore/strata/pkg/types"
)

// Config configures the fs service.
type Config struct {
	// RootDir is the directory all paths resolve under. Required.
	RootDir string
}

// Service is a local-filesystem accessor.
type Service struct {
	info    types.AccessorInfo
	rootDir string
}

// New creates an fs service. The root directory is created when missing.
func New(cfg Config) (*Service, error) {
	if cfg.RootDir == "" {
		return nil, serrors.New(serrors.KindInvalidArgument, "root directory is required").WithScheme("fs")
	}
	abs, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return nil, serrors.New(serrors.KindInvalidArgument, "invalid root directory").WithScheme("fs").WithCause(err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, mapError(err)
	}
	return &Service{
		rootDir: abs,
		info: types.AccessorInfo{
			Scheme: "fs",
			Name:   abs,
			Root:   "/",
			Capability: types.Capability{
				Stat:               true,
				Read:               true,
				ReadWithRange:      true,
				Write:              true,
				Delete:             true,
				List:               true,
				ListWithDelimiter:  true,
				ListWithStartAfter: true,
				Copy:               true,
				Rename:             true,
			},
		},
	}, nil
}

// Info implements types.Accessor.
func (s *Service) Info() types.AccessorInfo { return s.info }

// abs resolves a normalized object path to a filesystem path under the root.
func (s *Service) abs(p string) string {
	return filepath.Join(s.rootDir, filepath.FromSlash(strings.TrimSuffix(p, "/")))
}

// mapError translates os-level failures into the taxonomy.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, fs.ErrNotExist):
		return serrors.New(serrors.KindNotFound, "no such file or directory").WithCause(err)
	case stderrors.Is(err, fs.ErrPermission):
		return serrors.New(serrors.KindPermissionDenied, "permission denied").WithCause(err)
	case stderrors.Is(err, fs.ErrExist):
		return serrors.New(serrors.KindAlreadyExists, "file already exists").WithCause(err)
	default:
		return serrors.Unexpected("filesystem error", err)
	}
}

func metaFromFileInfo(fi os.FileInfo) types.Metadata {
	if fi.IsDir() {
		return types.NewMetadata(types.ModeDir)
	}
	return types.Metadata{
		Mode:          types.ModeFile,
		ContentLength: fi.Size(),
		LastModified:  fi.ModTime(),
	}
}

// Stat returns file metadata. Local files carry no entity tag, so the etag
// preconditions cannot be evaluated and are rejected rather than silently
// ignored.
func (s *Service) Stat(ctx context.Context, path string, args types.OpStat) (types.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return types.Metadata{}, serrors.FromContext(err)
	}
	if args.IfMatch != "" || args.IfNoneMatch != "" {
		return types.Metadata{}, serrors.New(serrors.KindInvalidArgument, "etag preconditions are not supported on local files")
	}
	fi, err := os.Stat(s.abs(path))
	if err != nil {
		return types.Metadata{}, mapError(err)
	}
	if types.IsDirPath(path) && !fi.IsDir() {
		return types.Metadata{}, serrors.New(serrors.KindNotFound, "not a directory")
	}
	return metaFromFileInfo(fi), nil
}

func (s *Service) Read(ctx context.Context, path string, args types.OpRead) (types.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, serrors.FromContext(err)
	}
	f, err := os.Open(s.abs(path))
	if err != nil {
		return nil, mapError(err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, mapError(err)
	}
	if fi.IsDir() {
		f.Close()
		return nil, serrors.New(serrors.KindInvalidArgument, "cannot read a directory")
	}
	if !args.IfModifiedSince.IsZero() && !fi.ModTime().After(args.IfModifiedSince) {
		f.Close()
		return nil, serrors.New(serrors.KindInvalidArgument, "precondition failed: not modified")
	}

	r := args.Range
	if r.Offset > fi.Size() || (!r.ToEnd() && r.Offset+r.Length > fi.Size()) {
		f.Close()
		return nil, serrors.Newf(serrors.KindRangeNotSatisfiable, "range %s beyond object size %d", r, fi.Size())
	}
	if r.Offset > 0 {
		if _, err := f.Seek(r.Offset, io.SeekStart); err != nil {
			f.Close()
			return nil, mapError(err)
		}
	}

	var rd io.Reader = f
	if !r.ToEnd() {
		rd = io.LimitReader(f, r.Length)
	}
	return &reader{ctx: ctx, r: rd, f: f}, nil
}

func (s *Service) Write(ctx context.Context, path string, args types.OpWrite) (types.Writer, error) {
	if err := ctx.Err(); err != nil {
		return nil, serrors.FromContext(err)
	}
	target := s.abs(path)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, mapError(err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".strata-write-*")
	if err != nil {
		return nil, mapError(err)
	}
	return &writer{ctx: ctx, tmp: tmp, target: target}, nil
}

func (s *Service) Delete(ctx context.Context, path string, args types.OpDelete) error {
	if err := ctx.Err(); err != nil {
		return serrors.FromContext(err)
	}
	err := os.Remove(s.abs(path))
	if err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return mapError(err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, path string, args types.OpList) (types.Lister, error) {
	if err := ctx.Err(); err != nil {
		return nil, serrors.FromContext(err)
	}
	if !types.IsDirPath(path) {
		return nil, serrors.New(serrors.KindInvalidArgument, "list path is not a directory")
	}

	dir := s.abs(path)
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, mapError(err)
	}
	if !fi.IsDir() {
		return nil, serrors.New(serrors.KindInvalidArgument, "list path is not a directory")
	}

	base := strings.TrimSuffix(path, "/")
	var entries []types.Entry
	if args.Delimiter == "" {
		err = filepath.WalkDir(dir, func(p string, d os.DirEntry, werr error) error {
			if werr != nil {
				return werr
			}
			if d.IsDir() {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".strata-write-") {
				return nil
			}
			rel, rerr := filepath.Rel(s.rootDir, p)
			if rerr != nil {
				return rerr
			}
			info, ierr := d.Info()
			if ierr != nil {
				return ierr
			}
			entries = append(entries, types.Entry{
				Path:     filepath.ToSlash(rel),
				Metadata: metaFromFileInfo(info),
			})
			return nil
		})
		if err != nil {
			return nil, mapError(err)
		}
	} else {
		dirents, derr := os.ReadDir(dir)
		if derr != nil {
			return nil, mapError(derr)
		}
		for _, d := range dirents {
			name := d.Name()
			if strings.HasPrefix(name, ".strata-write-") {
				continue
			}
			entryPath := gopath.Join(base, name)
			entryPath = strings.TrimPrefix(entryPath, "/")
			if d.IsDir() {
				entries = append(entries, types.Entry{
					Path:     entryPath + "/",
					Metadata: types.NewMetadata(types.ModeDir),
				})
				continue
			}
			info, ierr := d.Info()
			if ierr != nil {
				return nil, mapError(ierr)
			}
			entries = append(entries, types.Entry{
				Path:     entryPath,
				Metadata: metaFromFileInfo(info),
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	if args.StartAfter != "" {
		cut := sort.Search(len(entries), func(i int) bool { return entries[i].Path > args.StartAfter })
		entries = entries[cut:]
	}
	return types.NewSliceLister(entries), nil
}

func (s *Service) Copy(ctx context.Context, from, to string, args types.OpCopy) error {
	if err := ctx.Err(); err != nil {
		return serrors.FromContext(err)
	}
	if !args.Overwrite {
		if _, err := os.Stat(s.abs(to)); err == nil {
			return serrors.New(serrors.KindAlreadyExists, "destination already exists")
		}
	}
	src, err := os.Open(s.abs(from))
	if err != nil {
		return mapError(err)
	}
	defer src.Close()

	w, err := s.Write(ctx, to, types.OpWrite{})
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, src); err != nil {
		_ = w.Abort()
		return mapError(err)
	}
	return w.Close()
}

func (s *Service) Rename(ctx context.Context, from, to string, args types.OpRename) error {
	if err := ctx.Err(); err != nil {
		return serrors.FromContext(err)
	}
	if !args.Overwrite {
		if _, err := os.Stat(s.abs(to)); err == nil {
			return serrors.New(serrors.KindAlreadyExists, "destination already exists")
		}
	}
	if _, err := os.Stat(s.abs(from)); err != nil {
		return mapError(err)
	}
	if err := os.MkdirAll(filepath.Dir(s.abs(to)), 0o755); err != nil {
		return mapError(err)
	}
	return mapError(os.Rename(s.abs(from), s.abs(to)))
}

func (s *Service) Presign(ctx context.Context, path string, args types.OpPresign) (*types.PresignedRequest, error) {
	return nil, serrors.Unsupported(s.info.Scheme, string(types.OperationPresign))
}

type reader struct {
	ctx context.Context
	r   io.Reader
	f   *os.File
}

func (r *reader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, serrors.FromContext(err)
	}
	return r.r.Read(p)
}

func (r *reader) Close() error { return r.f.Close() }

type writer struct {
	ctx    context.Context
	tmp    *os.File
	target string
	closed bool
}

func (w *writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, serrors.AlreadyClosed(string(types.OperationWrite))
	}
	if err := w.ctx.Err(); err != nil {
		return 0, serrors.FromContext(err)
	}
	n, err := w.tmp.Write(p)
	if err != nil {
		return n, mapError(err)
	}
	return n, nil
}

func (w *writer) Close() error {
	if w.closed {
		return serrors.AlreadyClosed(string(types.OperationWrite))
	}
	w.closed = true

	if err := w.tmp.Sync(); err != nil {
		w.discard()
		return mapError(err)
	}
	if err := w.tmp.Close(); err != nil {
		os.Remove(w.tmp.Name())
		return mapError(err)
	}
	if err := os.Rename(w.tmp.Name(), w.target); err != nil {
		os.Remove(w.tmp.Name())
		return mapError(err)
	}
	return nil
}

func (w *writer) Abort() error {
	if w.closed {
		return serrors.AlreadyClosed(string(types.OperationWrite))
	}
	w.closed = true
	w.discard()
	return nil
}

func (w *writer) discard() {
	name := w.tmp.Name()
	_ = w.tmp.Close()
	_ = os.Remove(name)
}
