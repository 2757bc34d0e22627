package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the floor for the soft descriptor limit.
// Watching registers one descriptor per corpus directory, so low limits
// bite there first.
const MinFileDescriptors = 1024

// CheckFileDescriptors reports whether the soft file descriptor limit
// leaves room for directory watches and the SQLite store.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{
		Name:     "file_descriptors",
		Required: true,
	}

	var rlim syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rlim); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check file descriptor limit: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%d (minimum: %d)", rlim.Cur, MinFileDescriptors)

	if rlim.Cur < MinFileDescriptors {
		result.Status = StatusFail
		suggest := rlim.Max
		if suggest == ^uint64(0) || suggest > 10240 {
			suggest = 10240
		}
		if suggest > rlim.Cur {
			result.Details = fmt.Sprintf("Raise the soft limit with 'ulimit -n %d'", suggest)
		} else {
			result.Details = "Raise the hard limit before raising the soft limit"
		}
		return result
	}

	result.Status = StatusPass
	return result
}
