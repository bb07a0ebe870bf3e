package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// PeerCredentials holds the credentials of a peer process.
type PeerCredentials struct {
	PID int
	UID int
	GID int
}

// ErrPeerCredentialsUnsupported is returned where the platform cannot
// report the peer of a Unix socket.
var ErrPeerCredentialsUnsupported = errors.New("ipc: peer credentials not supported on this platform")

// CleanupSocket removes a stale socket file. Anything that is not a socket
// is left alone.
func CleanupSocket(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Mode()&os.ModeSocket != 0 {
		return os.Remove(path)
	}
	return fmt.Errorf("path exists but is not a socket: %s", path)
}

// IsSocketListening reports whether something accepts connections on path.
func IsSocketListening(path string) bool {
	conn, err := net.DialTimeout("unix", path, 500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
