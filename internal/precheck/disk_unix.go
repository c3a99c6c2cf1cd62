//go:build !windows

package precheck

import "syscall"

// freeSpace returns the bytes available to unprivileged writers on the
// filesystem containing dir.
func freeSpace(dir string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
