package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"
)

// ErrNoOwner means nothing answers on the run socket.
var ErrNoOwner = errors.New("no sayshot instance owns the run socket")

// RejectedError is the owner's refusal of a forwarded request, such as a
// capture arriving while a run is in progress.
type RejectedError struct {
	Command string
	Reason  string
}

func (e *RejectedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s rejected by the running sayshot instance", e.Command)
	}
	return e.Reason
}

// Send performs one request/response exchange; timeout bounds the dial and
// the whole exchange.
func Send(ctx context.Context, path string, req Request, timeout time.Duration) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return Response{}, fmt.Errorf("set deadline: %w", err)
		}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return Response{}, fmt.Errorf("write request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// Forward hands req to the process owning path. It returns ErrNoOwner when
// nobody listens and a *RejectedError when the owner answers with OK=false.
// Any other error leaves it unknown whether the owner acted on req.
func Forward(ctx context.Context, path string, req Request, timeout time.Duration) (Response, error) {
	resp, err := Send(ctx, path, req, timeout)
	if err != nil {
		if unreachable(err) {
			return Response{}, ErrNoOwner
		}
		return Response{}, fmt.Errorf("forward %s: %w", req.Command, err)
	}
	if !resp.OK {
		return resp, &RejectedError{Command: req.Command, Reason: resp.Error}
	}
	return resp, nil
}

// unreachable covers a missing socket file and a file nobody listens on.
func unreachable(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED)
}
