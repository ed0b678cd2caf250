package proto

import (
	"os"
	"path/filepath"
)

// DefaultSocketPath is used when neither FAKENOTIFY_SOCKET nor a config
// file override is present.
const DefaultSocketPath = "/run/fakenotify/fakenotify.sock"

// SocketEnvVar overrides the socket path for both the daemon and the shim.
const SocketEnvVar = "FAKENOTIFY_SOCKET"

// ResolveSocketPath returns the UDS path a client (the CLI or the shim)
// connects to, honoring FAKENOTIFY_SOCKET, then falling back to a per-user
// socket under XDG_RUNTIME_DIR when DefaultSocketPath's directory does not
// exist, then DefaultSocketPath. The daemon's start command does not call
// it and so never applies the XDG_RUNTIME_DIR fallback.
func ResolveSocketPath() string {
	if p := os.Getenv(SocketEnvVar); p != "" {
		return p
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		if _, err := os.Stat(filepath.Dir(DefaultSocketPath)); err != nil {
			return filepath.Join(dir, "fakenotify.sock")
		}
	}
	return DefaultSocketPath
}
