//go:build linux

package soft

import "golang.org/x/sys/unix"

// totalMemory reports installed RAM, which bounds buffer storage.
func totalMemory() uint64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0
	}
	return uint64(info.Totalram) * uint64(info.Unit)
}
