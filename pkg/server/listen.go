package server

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Listen opens the relay listener. addr is a host:port, or one of
// unix://<path>, npipe://<name> (Windows only) and fd://<n> for socket
// activation.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	if path, ok := strings.CutPrefix(addr, "unix://"); ok {
		return listenUnix(ctx, path)
	}

	if path, ok := strings.CutPrefix(addr, "npipe://"); ok {
		return listenNamedPipe(path)
	}

	if fdStr, ok := strings.CutPrefix(addr, "fd://"); ok {
		fd, err := strconv.Atoi(fdStr)
		if err != nil {
			return nil, err
		}
		return net.FileListener(os.NewFile(uintptr(fd), ""))
	}

	return listenTCP(ctx, addr)
}

func listenUnix(ctx context.Context, path string) (net.Listener, error) {
	// A stale socket from a previous relay would make Listen fail.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	var lc net.ListenConfig
	return lc.Listen(ctx, "unix", path)
}

func listenTCP(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", addr)
}
