package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"strings"

	"github.com/rbright/sayshot/internal/hypr"
)

// Grim captures a wlroots output through the grim binary.
type Grim struct {
	// Output is the compositor output name. Empty targets the focused
	// Hyprland monitor, or the whole layout when hyprctl is unavailable.
	Output string
	Binary string

	focusedMonitor func(context.Context) (hypr.Monitor, error)
}

func NewGrim(output string) *Grim {
	return &Grim{Output: strings.TrimSpace(output), Binary: "grim", focusedMonitor: hypr.QueryFocusedMonitor}
}

func (*Grim) Kind() Kind { return KindScreenShare }

func (*Grim) Name() string { return "grim" }

func (g *Grim) Open(ctx context.Context) (Stream, error) {
	output := g.Output
	if output == "" && g.focusedMonitor != nil {
		if mon, err := g.focusedMonitor(ctx); err == nil {
			output = mon.Name
		}
	}

	binary := g.Binary
	if binary == "" {
		binary = "grim"
	}
	args := []string{"-t", "png"}
	if output != "" {
		args = append(args, "-o", output)
	}
	args = append(args, "-")

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, grimError(args, err, stderr.String())
	}

	img, _, err := image.Decode(bytes.NewReader(stdout.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("%w: decode grim output: %w", ErrCaptureFailed, err)
	}
	return &decodedStream{img: img, output: output}, nil
}

func grimError(args []string, err error, stderr string) error {
	msg := strings.TrimSpace(stderr)
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "permission") || strings.Contains(lower, "not authorized") {
		return fmt.Errorf("%w: grim: %s", ErrPermissionDenied, msg)
	}
	if msg == "" {
		return fmt.Errorf("%w: grim %v: %w", ErrCaptureFailed, args, err)
	}
	return fmt.Errorf("%w: grim %v: %w (%s)", ErrCaptureFailed, args, err, msg)
}
