package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rbright/sayshot/internal/audio"
	"github.com/rbright/sayshot/internal/capture"
	"github.com/rbright/sayshot/internal/orchestrator"
)

const (
	PreviewFile = "preview.png"
	AudioFile   = "caption.wav"
)

// Player renders decoded caption audio.
type Player interface {
	Play(context.Context, audio.Clip) error
}

// Copier places caption text on the clipboard.
type Copier interface {
	Copy(context.Context, string) error
}

// Options wires a Presenter. A nil Player disables playback and a nil
// Clipboard disables caption copy.
type Options struct {
	Dir       string
	Player    Player
	Clipboard Copier
	Logger    *slog.Logger
}

// Presenter owns the on-disk preview/audio artifacts and the playback handle
// for the most recent result.
type Presenter struct {
	dir       string
	player    Player
	clipboard Copier
	logger    *slog.Logger

	mu      sync.Mutex
	stop    context.CancelFunc
	done    chan struct{}
	playErr error
	result  orchestrator.Result
}

// RuntimeDir resolves $XDG_RUNTIME_DIR/sayshot, falling back to the temp dir.
func RuntimeDir() string {
	if base := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); base != "" {
		return filepath.Join(base, "sayshot")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("sayshot-%d", os.Getuid()))
}

// NewPresenter constructs a presenter writing under opts.Dir (RuntimeDir when empty).
func NewPresenter(opts Options) *Presenter {
	if opts.Dir == "" {
		opts.Dir = RuntimeDir()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Presenter{
		dir:       opts.Dir,
		player:    opts.Player,
		clipboard: opts.Clipboard,
		logger:    opts.Logger,
	}
}

func (p *Presenter) PreviewPath() string { return filepath.Join(p.dir, PreviewFile) }

func (p *Presenter) AudioPath() string { return filepath.Join(p.dir, AudioFile) }

// Result returns the most recently shown result.
func (p *Presenter) Result() orchestrator.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

// ShowPreview writes the captured frame so external viewers can show it.
func (p *Presenter) ShowPreview(_ context.Context, img capture.Image) error {
	if len(img.PNG) == 0 {
		return errors.New("preview image is empty")
	}
	if err := p.writeArtifact(PreviewFile, img.PNG); err != nil {
		return fmt.Errorf("write preview: %w", err)
	}
	return nil
}

// ShowResult stores the caption audio, copies the caption, and starts
// playback in the background. Any earlier playback is stopped first.
func (p *Presenter) ShowResult(ctx context.Context, result orchestrator.Result) error {
	p.stopPlayback()

	p.mu.Lock()
	p.result = result
	p.mu.Unlock()

	var errs []error
	if len(result.Audio) > 0 {
		if err := p.writeArtifact(AudioFile, result.Audio); err != nil {
			errs = append(errs, fmt.Errorf("write audio: %w", err))
		}
	}

	if p.clipboard != nil {
		if err := p.clipboard.Copy(ctx, result.Caption); err != nil {
			errs = append(errs, err)
		}
	}

	if p.player != nil && len(result.Audio) > 0 {
		clip, err := audio.DecodeWAV(result.Audio)
		if err != nil {
			errs = append(errs, fmt.Errorf("decode %s audio: %w", contentType(result), err))
		} else {
			p.startPlayback(ctx, clip)
		}
	}

	return errors.Join(errs...)
}

// Clear stops playback and removes every artifact of the previous run.
func (p *Presenter) Clear(context.Context) {
	p.stopPlayback()

	p.mu.Lock()
	p.result = orchestrator.Result{}
	p.playErr = nil
	p.mu.Unlock()

	for _, name := range []string{PreviewFile, AudioFile} {
		if err := os.Remove(filepath.Join(p.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Debug("remove artifact failed", "file", name, "error", err.Error())
		}
	}
}

// Wait blocks until current playback ends and reports its error.
func (p *Presenter) Wait() error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()

	if done != nil {
		<-done
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playErr
}

// Playing reports whether caption audio is currently being played.
func (p *Presenter) Playing() bool {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

func (p *Presenter) startPlayback(ctx context.Context, clip audio.Clip) {
	playCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	p.stop = cancel
	p.done = done
	p.playErr = nil
	p.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()

		err := p.player.Play(playCtx, clip)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		if err != nil {
			p.logger.Warn("caption playback failed", "error", err.Error())
		}
		p.mu.Lock()
		if p.done == done {
			p.playErr = err
		}
		p.mu.Unlock()
	}()
}

// stopPlayback revokes the current playback handle and waits for it to end.
func (p *Presenter) stopPlayback() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()

	if stop != nil {
		stop()
	}
	if done != nil {
		<-done
	}
}

// writeArtifact replaces name atomically so readers never see a partial file.
func (p *Presenter) writeArtifact(name string, data []byte) error {
	if err := os.MkdirAll(p.dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(p.dir, "."+name+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(p.dir, name))
}

func contentType(result orchestrator.Result) string {
	if ct := strings.TrimSpace(result.ContentType); ct != "" {
		return ct
	}
	return "unknown"
}
