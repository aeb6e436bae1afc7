package types

import (
	"net/http"
	"time"
)

// Operation argument structs. Each is an immutable value constructed by the
// caller (or a layer) and consumed once by the next accessor down the stack.
// The zero value of every struct is a valid "no options" request.

// OpStat carries options for a stat operation.
type OpStat struct {
	// IfMatch fails the stat with a precondition error unless the entity tag
	// matches.
	IfMatch string
	// IfNoneMatch fails the stat when the entity tag matches.
	IfNoneMatch string
}

// OpRead carries options for a read operation.
type OpRead struct {
	// Range selects the bytes to read; the zero value reads the whole object.
	Range BytesRange
	// IfMatch makes the read conditional on the entity tag matching.
	IfMatch string
	// IfNoneMatch makes the read conditional on the entity tag not matching.
	IfNoneMatch string
	// IfModifiedSince makes the read conditional on the object having been
	// modified after the given time.
	IfModifiedSince time.Time
}

// OpWrite carries options for a write operation.
type OpWrite struct {
	// ContentType to record with the object, when the backend stores one.
	ContentType string
	// ContentLength is a size hint for backends that can use it to pick an
	// upload strategy; LengthUnknown (or 0) when the caller does not know.
	ContentLength int64
	// CacheControl to record with the object, when the backend stores one.
	CacheControl string
}

// OpDelete carries options for a delete operation. Deleting a path that does
// not exist is not an error.
type OpDelete struct{}

// OpList carries options for a list operation.
type OpList struct {
	// Delimiter groups keys into directory-style entries. "/" lists one
	// level; the empty string lists recursively.
	Delimiter string
	// Limit caps the number of entries fetched per page, 0 meaning the
	// backend default.
	Limit int
	// StartAfter resumes the listing after the given path.
	StartAfter string
}

// OpCopy carries options for a copy operation.
type OpCopy struct {
	// Overwrite allows replacing an existing destination. When false and the
	// destination exists, the copy fails with AlreadyExists.
	Overwrite bool
}

// OpRename carries options for a rename operation.
type OpRename struct {
	// Overwrite allows replacing an existing destination. When false and the
	// destination exists, the rename fails with AlreadyExists.
	Overwrite bool
}

// PresignOperation selects which operation a presigned request authorizes.
type PresignOperation int

const (
	PresignStat PresignOperation = iota
	PresignRead
	PresignWrite
)

// String returns string representation of the presign operation.
func (p PresignOperation) String() string {
	switch p {
	case PresignStat:
		return "stat"
	case PresignRead:
		return "read"
	case PresignWrite:
		return "write"
	default:
		return "unknown"
	}
}

// OpPresign carries options for generating a presigned request.
type OpPresign struct {
	// Operation the signed request authorizes.
	Operation PresignOperation
	// Expire bounds how long the signed request stays valid.
	Expire time.Duration
}

// PresignedRequest describes a signed HTTP request a third party can execute
// directly against the backend without holding credentials.
type PresignedRequest struct {
	Method  string      `json:"method"`
	URL     string      `json:"url"`
	Header  http.Header `json:"header,omitempty"`
	Expires time.Time   `json:"expires"`
}
