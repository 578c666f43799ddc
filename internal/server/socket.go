package server

import (
	"net"
	"os"
	"strings"
)

// unixPrefix marks a listen address as a Unix socket path.
const unixPrefix = "unix:"

// listen opens addr. "unix:/path" listens on a Unix socket, replacing a
// stale socket file and restricting it to the owner; anything else is TCP.
func listen(addr string) (net.Listener, error) {
	path, ok := strings.CutPrefix(addr, unixPrefix)
	if !ok {
		return net.Listen("tcp", addr)
	}
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := setSocketPermissions(path); err != nil {
		ln.Close()
		return nil, err
	}
	return ln, nil
}
