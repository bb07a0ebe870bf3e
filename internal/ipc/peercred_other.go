//go:build !linux

package ipc

import "net"

// GetPeerCredentials is unsupported off Linux.
func GetPeerCredentials(net.Conn) (*PeerCredentials, error) {
	return nil, ErrPeerCredentialsUnsupported
}
