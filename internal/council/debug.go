package council

import (
	"os"
	"path/filepath"
)

const debugEnvVar = "COUNCIL_DEBUG"

// writeDebugLog writes a debug_<phase>.log artifact when COUNCIL_DEBUG is
// set, restricting its permissions on POSIX systems. Silently does nothing
// if the env var is unset; failures to write are non-fatal.
func writeDebugLog(dir string, phase Phase, content string) {
	if os.Getenv(debugEnvVar) == "" {
		return
	}
	path := filepath.Join(dir, "debug_"+string(phase)+".log")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return
	}
	restrictDebugFilePerms(path)
}
