// Package memory provides an in-memory storage service, primarily useful
// for tests and as the reference implementation of the accessor contract.
package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	serrors "github.com/stratastore/strata/pkg/errors"
	"github.com/stratastore/strata/pkg/types"
)

const defaultPageSize = 1000

// Config configures the memory service.
type Config struct {
	// Root is the working directory all paths resolve under.
	Root string
	// Name labels the namespace in AccessorInfo; defaults to "memory".
	Name string
}

// Service is an in-memory accessor. All state lives in a single map guarded
// by a read-write mutex; no lock is ever held across a blocking point.
type Service struct {
	info types.AccessorInfo

	mu      sync.RWMutex
	objects map[string]object
}

type object struct {
	data []byte
	meta types.Metadata
}

// New creates a memory service.
func New(cfg Config) *Service {
	name := cfg.Name
	if name == "" {
		name = "memory"
	}
	return &Service{
		info: types.AccessorInfo{
			Scheme: "memory",
			Name:   name,
			Root:   types.NormalizeRoot(cfg.Root),
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
				MaxListPageSize:    defaultPageSize,
			},
		},
		objects: make(map[string]object),
	}
}

// Info implements types.Accessor.
func (s *Service) Info() types.AccessorInfo { return s.info }

// key resolves a normalized path against the root.
func (s *Service) key(path string) string {
	if path == "/" {
		return s.info.Root
	}
	return s.info.Root + path
}

func etagOf(data []byte) string {
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func (s *Service) Stat(ctx context.Context, path string, args types.OpStat) (types.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return types.Metadata{}, serrors.FromContext(err)
	}
	if path == "/" {
		return types.NewMetadata(types.ModeDir), nil
	}

	key := s.key(path)
	s.mu.RLock()
	defer s.mu.RUnlock()

	if obj, ok := s.objects[key]; ok {
		if args.IfMatch != "" && args.IfMatch != obj.meta.ETag {
			return types.Metadata{}, serrors.New(serrors.KindInvalidArgument, "precondition failed: etag mismatch")
		}
		if args.IfNoneMatch != "" && args.IfNoneMatch == obj.meta.ETag {
			return types.Metadata{}, serrors.New(serrors.KindInvalidArgument, "precondition failed: etag matched")
		}
		return obj.meta, nil
	}

	// A "directory" exists as soon as anything lives under it.
	dir := key
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	for k := range s.objects {
		if strings.HasPrefix(k, dir) {
			return types.NewMetadata(types.ModeDir), nil
		}
	}
	return types.Metadata{}, serrors.New(serrors.KindNotFound, "object not found")
}

func (s *Service) Read(ctx context.Context, path string, args types.OpRead) (types.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, serrors.FromContext(err)
	}

	s.mu.RLock()
	obj, ok := s.objects[s.key(path)]
	s.mu.RUnlock()
	if !ok {
		return nil, serrors.New(serrors.KindNotFound, "object not found")
	}
	if args.IfMatch != "" && args.IfMatch != obj.meta.ETag {
		return nil, serrors.New(serrors.KindInvalidArgument, "precondition failed: etag mismatch")
	}
	if args.IfNoneMatch != "" && args.IfNoneMatch == obj.meta.ETag {
		return nil, serrors.New(serrors.KindInvalidArgument, "precondition failed: etag matched")
	}
	if !args.IfModifiedSince.IsZero() && !obj.meta.LastModified.After(args.IfModifiedSince) {
		return nil, serrors.New(serrors.KindInvalidArgument, "precondition failed: not modified")
	}

	data := obj.data
	r := args.Range
	if r.Offset > int64(len(data)) {
		return nil, serrors.Newf(serrors.KindRangeNotSatisfiable, "offset %d beyond object size %d", r.Offset, len(data))
	}
	data = data[r.Offset:]
	if !r.ToEnd() {
		if r.Length > int64(len(data)) {
			return nil, serrors.Newf(serrors.KindRangeNotSatisfiable, "range %s beyond object size", r)
		}
		data = data[:r.Length]
	}
	return &reader{ctx: ctx, r: bytes.NewReader(data)}, nil
}

func (s *Service) Write(ctx context.Context, path string, args types.OpWrite) (types.Writer, error) {
	if err := ctx.Err(); err != nil {
		return nil, serrors.FromContext(err)
	}
	return &writer{svc: s, ctx: ctx, key: s.key(path), contentType: args.ContentType}, nil
}

func (s *Service) Delete(ctx context.Context, path string, args types.OpDelete) error {
	if err := ctx.Err(); err != nil {
		return serrors.FromContext(err)
	}
	s.mu.Lock()
	delete(s.objects, s.key(path))
	s.mu.Unlock()
	return nil
}

func (s *Service) List(ctx context.Context, path string, args types.OpList) (types.Lister, error) {
	if err := ctx.Err(); err != nil {
		return nil, serrors.FromContext(err)
	}
	if !types.IsDirPath(path) {
		return nil, serrors.New(serrors.KindInvalidArgument, "list path is not a directory")
	}

	entries := s.snapshot(path, args)

	limit := args.Limit
	if limit <= 0 || limit > defaultPageSize {
		limit = defaultPageSize
	}
	// Page over the snapshot so continuation tokens behave like a real
	// paginated backend.
	return types.NewPageLister(func(ctx context.Context, token string) ([]types.Entry, string, error) {
		start := 0
		if token != "" {
			start = sort.Search(len(entries), func(i int) bool { return entries[i].Path > token })
		}
		end := start + limit
		if end >= len(entries) {
			return entries[start:], "", nil
		}
		return entries[start:end], entries[end-1].Path, nil
	}), nil
}

// snapshot collects, under the read lock, the sorted entries a listing will
// serve. Directory-style grouping happens here when a delimiter is set.
func (s *Service) snapshot(path string, args types.OpList) []types.Entry {
	prefix := s.key(path)
	if prefix == "/" {
		prefix = s.info.Root
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]types.Entry)
	for k, obj := range s.objects {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rel := strings.TrimPrefix(k, prefix)
		if rel == "" {
			continue
		}
		if args.Delimiter == "" {
			entryPath := strings.TrimPrefix(k, s.info.Root)
			seen[entryPath] = types.Entry{Path: entryPath, Metadata: obj.meta}
			continue
		}
		if i := strings.Index(rel, args.Delimiter); i >= 0 {
			dir := strings.TrimPrefix(prefix+rel[:i+len(args.Delimiter)], s.info.Root)
			seen[dir] = types.Entry{Path: dir, Metadata: types.NewMetadata(types.ModeDir)}
			continue
		}
		entryPath := strings.TrimPrefix(k, s.info.Root)
		seen[entryPath] = types.Entry{Path: entryPath, Metadata: obj.meta}
	}

	entries := make([]types.Entry, 0, len(seen))
	for _, e := range seen {
		if args.StartAfter != "" && e.Path <= args.StartAfter {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries
}

func (s *Service) Copy(ctx context.Context, from, to string, args types.OpCopy) error {
	if err := ctx.Err(); err != nil {
		return serrors.FromContext(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked(from, to, args.Overwrite)
}

func (s *Service) Rename(ctx context.Context, from, to string, args types.OpRename) error {
	if err := ctx.Err(); err != nil {
		return serrors.FromContext(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.copyLocked(from, to, args.Overwrite); err != nil {
		return err
	}
	delete(s.objects, s.key(from))
	return nil
}

func (s *Service) copyLocked(from, to string, overwrite bool) error {
	src, ok := s.objects[s.key(from)]
	if !ok {
		return serrors.New(serrors.KindNotFound, "source object not found")
	}
	dstKey := s.key(to)
	if _, exists := s.objects[dstKey]; exists && !overwrite {
		return serrors.New(serrors.KindAlreadyExists, "destination already exists")
	}
	data := make([]byte, len(src.data))
	copy(data, src.data)
	meta := src.meta
	meta.LastModified = time.Now()
	s.objects[dstKey] = object{data: data, meta: meta}
	return nil
}

func (s *Service) Presign(ctx context.Context, path string, args types.OpPresign) (*types.PresignedRequest, error) {
	return nil, serrors.Unsupported(s.info.Scheme, string(types.OperationPresign))
}

// reader serves a read from an immutable snapshot of the object's bytes. It
// supports seeking within the requested range.
type reader struct {
	ctx    context.Context
	r      *bytes.Reader
	closed bool
}

func (r *reader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, serrors.FromContext(err)
	}
	return r.r.Read(p)
}

func (r *reader) Seek(offset int64, whence int) (int64, error) {
	return r.r.Seek(offset, whence)
}

func (r *reader) Close() error {
	r.closed = true
	return nil
}

// writer buffers everything and commits atomically on Close: a failed or
// abandoned write never leaves a visible, truncated object.
type writer struct {
	svc         *Service
	ctx         context.Context
	key         string
	contentType string
	buf         bytes.Buffer
	closed      bool
}

func (w *writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, serrors.AlreadyClosed(string(types.OperationWrite))
	}
	if err := w.ctx.Err(); err != nil {
		return 0, serrors.FromContext(err)
	}
	return w.buf.Write(p)
}

func (w *writer) Close() error {
	if w.closed {
		return serrors.AlreadyClosed(string(types.OperationWrite))
	}
	w.closed = true
	if err := w.ctx.Err(); err != nil {
		return serrors.FromContext(err)
	}

	data := w.buf.Bytes()
	meta := types.Metadata{
		Mode:          types.ModeFile,
		ContentLength: int64(len(data)),
		LastModified:  time.Now(),
		ETag:          etagOf(data),
		ContentType:   w.contentType,
	}
	w.svc.mu.Lock()
	w.svc.objects[w.key] = object{data: data, meta: meta}
	w.svc.mu.Unlock()
	return nil
}

func (w *writer) Abort() error {
	if w.closed {
		return serrors.AlreadyClosed(string(types.OperationWrite))
	}
	w.closed = true
	w.buf.Reset()
	return nil
}
