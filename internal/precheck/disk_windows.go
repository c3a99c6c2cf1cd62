//go:build windows

package precheck

import "errors"

// errProbeUnsupported marks platforms without a disk-space probe. The check
// is skipped with a warning rather than blocking the download.
var errProbeUnsupported = errors.New("disk space probe not supported on this platform")

func freeSpace(dir string) (uint64, error) {
	return 0, errProbeUnsupported
}
