// Package output presents run results: artifacts on disk, clipboard copy,
// and caption audio playback.
package output

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/sayshot/internal/config"
)

const clipboardTimeout = 2 * time.Second

// Clipboard copies caption text through the configured clipboard command.
type Clipboard struct {
	argv []string
}

// NewClipboard constructs a clipboard writer from clipboard_cmd.
func NewClipboard(cmd config.CommandConfig) *Clipboard {
	return &Clipboard{argv: append([]string(nil), cmd.Argv...)}
}

// Copy writes text to the clipboard. Blank text is a no-op.
func (c *Clipboard) Copy(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	copyCtx, cancel := context.WithTimeout(ctx, clipboardTimeout)
	defer cancel()
	if err := runCommandWithInput(copyCtx, c.argv, text); err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}
	return nil
}

// runCommandWithInput executes argv and optionally writes input to stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return errors.New("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}

	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start command %s: %w", argv[0], err)
	}

	if input != "" {
		if _, err := stdin.Write([]byte(input)); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("wait for %s: %w (%s)", argv[0], err, msg)
		}
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	return nil
}
