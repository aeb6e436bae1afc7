package types

import (
	"fmt"
	"time"
)

// LengthUnknown marks a content length the backend did not report.
const LengthUnknown int64 = -1

// EntryMode describes what a path points at.
type EntryMode int

const (
	// ModeUnknown means the backend could not determine the mode.
	ModeUnknown EntryMode = iota
	// ModeFile is a regular object or file.
	ModeFile
	// ModeDir is a directory; directory paths are "/"-suffixed by convention.
	ModeDir
)

// String returns string representation of the mode.
func (m EntryMode) String() string {
	switch m {
	case ModeFile:
		return "file"
	case ModeDir:
		return "dir"
	default:
		return "unknown"
	}
}

// IsFile reports whether the mode is ModeFile.
func (m EntryMode) IsFile() bool { return m == ModeFile }

// IsDir reports whether the mode is ModeDir.
func (m EntryMode) IsDir() bool { return m == ModeDir }

// Metadata is a point-in-time snapshot of an entry's attributes as reported
// by a backend. A Metadata value is never mutated after construction, only
// replaced; everything that hands one out hands out its own copy.
//
// Listings may omit attributes that would cost an extra round-trip:
// ContentLength is LengthUnknown and LastModified is the zero time when the
// backend did not report them.
type Metadata struct {
	Mode          EntryMode     `json:"mode"`
	ContentLength int64         `json:"content_length"`
	LastModified  time.Time     `json:"last_modified,omitempty"`
	ETag          string        `json:"etag,omitempty"`
	ContentType   string        `json:"content_type,omitempty"`
	ContentRange  *ContentRange `json:"content_range,omitempty"`
}

// NewMetadata returns a Metadata with the given mode and no known length.
func NewMetadata(mode EntryMode) Metadata {
	return Metadata{Mode: mode, ContentLength: LengthUnknown}
}

// HasContentLength reports whether the backend reported a content length.
func (m Metadata) HasContentLength() bool { return m.ContentLength >= 0 }

// Entry identifies a location in a backend's namespace together with its
// metadata snapshot, as returned by stat and list.
type Entry struct {
	Path     string   `json:"path"`
	Metadata Metadata `json:"metadata"`
}

// ContentRange describes the byte range actually returned by a ranged read,
// mirroring the HTTP Content-Range header.
type ContentRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"` // inclusive
	Total int64 `json:"total"`
}

// String formats the range as an HTTP Content-Range value.
func (r ContentRange) String() string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, r.Total)
}

// BytesRange selects a byte range of an object for a read. Offset is the
// starting byte; Length is the number of bytes wanted, or LengthUnknown to
// read through the end. The zero value selects the whole object.
type BytesRange struct {
	Offset int64 `json:"offset"`
	Length int64 `json:"length"`
}

// FullRange selects the whole object.
func FullRange() BytesRange { return BytesRange{Offset: 0, Length: LengthUnknown} }

// RangeFrom selects everything from offset through the end of the object.
func RangeFrom(offset int64) BytesRange {
	return BytesRange{Offset: offset, Length: LengthUnknown}
}

// NewRange selects length bytes starting at offset.
func NewRange(offset, length int64) BytesRange {
	return BytesRange{Offset: offset, Length: length}
}

// IsFull reports whether the range selects the whole object.
func (r BytesRange) IsFull() bool {
	return r.Offset == 0 && r.Length <= 0
}

// ToEnd reports whether the range is open-ended. A non-positive length means
// "through the end", so the zero value selects the whole object.
func (r BytesRange) ToEnd() bool { return r.Length <= 0 }

// String formats the range as an HTTP Range header value such as
// "bytes=10-19" or "bytes=10-".
func (r BytesRange) String() string {
	if r.ToEnd() {
		return fmt.Sprintf("bytes=%d-", r.Offset)
	}
	return fmt.Sprintf("bytes=%d-%d", r.Offset, r.Offset+r.Length-1)
}
