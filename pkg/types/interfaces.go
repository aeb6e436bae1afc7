package types

import (
	"context"
	"io"
)

// Accessor is the capability-typed contract every storage service and every
// composed layer implements. A layer wrapping an Accessor is itself an
// Accessor, which is what allows arbitrary-depth composition.
//
// Implementations map their native failure modes onto the closed error
// taxonomy in pkg/errors; the core never inspects backend-native error types.
// Every method observes ctx cancellation at its blocking points and returns a
// Cancelled error rather than hanging.
type Accessor interface {
	// Info returns the accessor's identity and capability set. The result is
	// fixed at construction time.
	Info() AccessorInfo

	// Stat returns the metadata snapshot for path.
	Stat(ctx context.Context, path string, args OpStat) (Metadata, error)

	// Read opens a Reader over the requested byte range of path, or the
	// whole object when no range is given.
	Read(ctx context.Context, path string, args OpRead) (Reader, error)

	// Write opens a Writer that persists the bytes written to it. The object
	// becomes visible only when the Writer is closed; an abandoned Writer
	// never silently commits.
	Write(ctx context.Context, path string, args OpWrite) (Writer, error)

	// Delete removes path. Deleting a nonexistent path succeeds silently.
	Delete(ctx context.Context, path string, args OpDelete) error

	// List opens a Lister over the entries under path.
	List(ctx context.Context, path string, args OpList) (Lister, error)

	// Copy duplicates the object at from to to.
	Copy(ctx context.Context, from, to string, args OpCopy) error

	// Rename moves the object at from to to.
	Rename(ctx context.Context, from, to string, args OpRename) error

	// Presign produces a signed request authorizing the given operation on
	// path without credentials.
	Presign(ctx context.Context, path string, args OpPresign) (*PresignedRequest, error)
}

// Reader streams the bytes of a single read operation. It is lazy and
// finite: bytes are produced on demand and the stream ends with io.EOF once
// the requested range is exhausted. A partially consumed Reader is not
// restartable; re-reading requires a new Read call.
//
// Readers over backends that allow it additionally implement io.Seeker for
// repositioning within the requested range.
type Reader interface {
	io.Reader
	io.Closer
}

// Writer accepts the byte stream of a single write operation.
//
// Close finalizes the object: only after Close returns nil is the object
// visible at its path. Abort releases any partial server-side state (e.g.
// an in-progress multipart upload) on a best-effort basis. Calling Write,
// Close, or Abort after either Close or Abort fails with AlreadyClosed.
type Writer interface {
	io.Writer

	// Close commits the object.
	Close() error

	// Abort discards everything written so far and releases partial
	// backend-side state.
	Abort() error
}

// Lister lazily produces the entries of a listing, transparently fetching
// successive pages via continuation tokens. Next returns (nil, nil) once the
// listing is exhausted. Dropping a partially consumed Lister is always safe.
type Lister interface {
	Next(ctx context.Context) (*Entry, error)
}
