//go:build !linux

package soft

func totalMemory() uint64 { return 0 }
