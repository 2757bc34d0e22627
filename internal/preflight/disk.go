package preflight

import (
	"fmt"
	"strings"
	"syscall"
)

// MinFreeDiskBytes is the free-space floor for the check (100 MB).
// Saving the index rewrites the chunk database and the vector graph
// snapshot side by side, so headroom has to cover both.
const MinFreeDiskBytes = 100 * 1024 * 1024

// CheckDiskSpace reports whether the filesystem holding path has room
// for index artifacts.
func (c *Checker) CheckDiskSpace(path string) CheckResult {
	result := CheckResult{
		Name:     "disk_space",
		Required: true,
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check disk space: %v", err)
		return result
	}

	free := stat.Bavail * uint64(stat.Bsize)
	result.Message = fmt.Sprintf("%s free (minimum: %s)",
		humanBytes(free), humanBytes(MinFreeDiskBytes))

	if free < MinFreeDiskBytes {
		result.Status = StatusFail
		result.Details = "Free disk space, or point storage_dir at another filesystem"
		return result
	}

	result.Status = StatusPass
	return result
}

// humanBytes renders a byte count with its largest 1024-based unit,
// dropping a trailing ".0".
func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	units := []string{"KB", "MB", "GB", "TB", "PB", "EB"}

	s := strings.TrimSuffix(fmt.Sprintf("%.1f", float64(n)/float64(div)), ".0")
	return s + " " + units[exp]
}
