package types

// Operation names an accessor operation. The values double as capability
// lookup keys, metrics labels, and log fields.
type Operation string

const (
	OperationStat    Operation = "stat"
	OperationRead    Operation = "read"
	OperationWrite   Operation = "write"
	OperationDelete  Operation = "delete"
	OperationList    Operation = "list"
	OperationCopy    Operation = "copy"
	OperationRename  Operation = "rename"
	OperationPresign Operation = "presign"
)

// Capability declares which operations an accessor supports, plus optional
// numeric limits. It is set once at accessor construction and read-only
// afterwards. An accessor must not advertise a capability it cannot execute;
// layers and callers may assume advertised capabilities are honored.
//
// Layers forward the inner capability unchanged unless they intentionally
// restrict it or emulate an additional operation (see layers.RenameEmulation).
type Capability struct {
	Stat    bool `json:"stat"`
	Read    bool `json:"read"`
	Write   bool `json:"write"`
	Delete  bool `json:"delete"`
	List    bool `json:"list"`
	Copy    bool `json:"copy"`
	Rename  bool `json:"rename"`
	Presign bool `json:"presign"`

	// ReadWithRange means ranged reads are served natively rather than by
	// reading from the start and discarding.
	ReadWithRange bool `json:"read_with_range"`
	// WriteMultipart means the service streams large writes in parts and can
	// abort an in-progress upload without leaving an orphaned resource.
	WriteMultipart bool `json:"write_multipart"`
	// ListWithDelimiter means non-recursive, directory-style listing.
	ListWithDelimiter bool `json:"list_with_delimiter"`
	// ListWithStartAfter means listings can resume after a given key.
	ListWithStartAfter bool `json:"list_with_start_after"`

	// MaxWriteSize is the largest single write the service accepts,
	// 0 meaning no declared limit.
	MaxWriteSize int64 `json:"max_write_size,omitempty"`
	// MaxListPageSize is the largest page the service returns per list
	// request, 0 meaning no declared limit.
	MaxListPageSize int `json:"max_list_page_size,omitempty"`
}

// Supports reports whether the capability set advertises the operation.
func (c Capability) Supports(op Operation) bool {
	switch op {
	case OperationStat:
		return c.Stat
	case OperationRead:
		return c.Read
	case OperationWrite:
		return c.Write
	case OperationDelete:
		return c.Delete
	case OperationList:
		return c.List
	case OperationCopy:
		return c.Copy
	case OperationRename:
		return c.Rename
	case OperationPresign:
		return c.Presign
	default:
		return false
	}
}

// AccessorInfo identifies an accessor and carries its capability set. Layers
// forward the inner accessor's info, overriding only what they change.
type AccessorInfo struct {
	// Scheme is the service kind, e.g. "memory", "fs", "s3", "httpfetch".
	Scheme string `json:"scheme"`
	// Name identifies the concrete namespace, e.g. the bucket name.
	Name string `json:"name"`
	// Root is the working directory all paths are resolved under.
	Root string `json:"root"`

	Capability Capability `json:"capability"`
}
