//go:build !windows

package council

import "os"

// restrictDebugFilePerms chmods a debug artifact to owner-only read/write.
func restrictDebugFilePerms(path string) {
	_ = os.Chmod(path, 0o600)
}
