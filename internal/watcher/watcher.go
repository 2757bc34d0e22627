// Package watcher keeps a knowledge corpus under observation and turns raw
// file system activity into debounced batches of change events.
//
// Watching is hybrid: fsnotify where the platform supports it, with a
// polling fallback for network mounts and container volumes where inotify
// does not reach. Rapid saves from editors are coalesced inside a debounce
// window before a batch is emitted, so one document edit triggers one
// staleness check instead of a dozen.
//
// Only eligible markdown files produce events. Hidden files, hidden
// directories (the storage directory included), and non-corpus files are
// filtered out before they reach the debouncer.
package watcher

import (
	"time"
)

// Operation classifies a file system change.
type Operation int

const (
	// OpCreate indicates a new file or directory appeared.
	OpCreate Operation = iota
	// OpModify indicates an existing file changed.
	OpModify
	// OpDelete indicates a file or directory went away.
	OpDelete
	// OpRename indicates a file or directory moved.
	OpRename
	// OpConfigChange indicates the corpus configuration file changed.
	// Watch loops surface this so the operator knows a restart is needed.
	OpConfigChange
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	case OpConfigChange:
		return "CONFIG_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one observed change, expressed relative to the corpus root.
type FileEvent struct {
	// Path is the slash-separated path relative to the watched root.
	Path string

	// Operation is the kind of change.
	Operation Operation

	// IsDir reports whether the event concerns a directory.
	IsDir bool

	// Timestamp is when the change was detected.
	Timestamp time.Time
}

// Options configures corpus watching.
type Options struct {
	// DebounceWindow is how long to coalesce events before emitting a
	// batch. Default: 500ms.
	DebounceWindow time.Duration

	// PollInterval is the scan interval for the polling fallback.
	// Default: 5s.
	PollInterval time.Duration

	// EventBufferSize is the capacity of the batch channel. Default: 256.
	EventBufferSize int

	// IgnoreDirs lists extra root-relative directories to ignore, for
	// storage directories that are not hidden.
	IgnoreDirs []string
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 256,
	}
}

// WithDefaults fills zero values with defaults.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}
