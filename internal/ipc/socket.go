package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ErrAlreadyRunning means another sayshot process owns the run socket.
var ErrAlreadyRunning = errors.New("another sayshot instance owns the run socket")

// RuntimeSocketPath returns $XDG_RUNTIME_DIR/sayshot.sock.
func RuntimeSocketPath() (string, error) {
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, "sayshot.sock"), nil
}

// ClaimOptions tunes Claim.
type ClaimOptions struct {
	// ForwardTimeout bounds one exchange with an existing owner.
	ForwardTimeout time.Duration
	// Retries is how many stale socket files may be replaced before giving up.
	Retries int
}

// DefaultClaimOptions is what the CLI uses.
func DefaultClaimOptions() ClaimOptions {
	return ClaimOptions{ForwardTimeout: 220 * time.Millisecond, Retries: 8}
}

// Ownership is the result of Claim. Either Listener is set and this process
// owns the socket, or Response holds the existing owner's reply to req.
type Ownership struct {
	Listener net.Listener
	Response Response
}

// Owner reports whether this process bound the socket.
func (o Ownership) Owner() bool {
	return o.Listener != nil
}

// Claim binds path so this process runs req itself. When the socket is
// already bound, req is forwarded to the owner and its reply returned; the
// request doubles as the liveness check, so a capture or say reaches a live
// owner exactly once. A socket file nobody answers on is removed and bound.
// A rejection or an inconclusive exchange leaves the socket file alone.
func Claim(ctx context.Context, path string, req Request, opts ClaimOptions) (Ownership, error) {
	if opts.ForwardTimeout <= 0 {
		opts.ForwardTimeout = DefaultClaimOptions().ForwardTimeout
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Ownership{}, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	for attempt := 0; attempt <= opts.Retries; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return Ownership{Listener: listener}, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return Ownership{}, fmt.Errorf("listen unix %s: %w", path, err)
		}

		resp, err := Forward(ctx, path, req, opts.ForwardTimeout)
		if err == nil {
			return Ownership{Response: resp}, nil
		}
		if !errors.Is(err, ErrNoOwner) {
			return Ownership{Response: resp}, err
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Ownership{}, fmt.Errorf("remove stale socket %s: %w", path, err)
		}

		if attempt < opts.Retries {
			select {
			case <-ctx.Done():
				return Ownership{}, ctx.Err()
			case <-time.After(time.Duration(25*(attempt+1)) * time.Millisecond):
			}
		}
	}

	return Ownership{}, fmt.Errorf("claim socket %s: still in use after %d retries", path, opts.Retries)
}

// Acquire binds path for a long-lived owner such as the interactive UI. A
// responsive owner yields ErrAlreadyRunning.
func Acquire(ctx context.Context, path string, opts ClaimOptions) (net.Listener, error) {
	own, err := Claim(ctx, path, Request{Command: CommandStatus}, opts)
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return nil, ErrAlreadyRunning
	}
	if err != nil {
		return nil, err
	}
	if !own.Owner() {
		return nil, ErrAlreadyRunning
	}
	return own.Listener, nil
}
