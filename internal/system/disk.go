package system

import (
	"fmt"
	"syscall"
)

// CheckAvailableSpace returns the bytes available to unprivileged users at path.
func CheckAvailableSpace(path string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("failed to get disk space for %s: %w", path, err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// DiskUsagePercent returns the used share of the filesystem holding path (0-100).
func DiskUsagePercent(path string) (float64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("failed to get disk usage for %s: %w", path, err)
	}
	total := stat.Blocks * uint64(stat.Bsize)
	if total == 0 {
		return 0, nil
	}
	used := total - stat.Bfree*uint64(stat.Bsize)
	return float64(used) / float64(total) * 100, nil
}
