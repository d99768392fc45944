// Package capture grabs a single still frame from a screen-share source.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"log/slog"
	"time"
)

var (
	// ErrPermissionDenied indicates the user or compositor refused screen sharing.
	ErrPermissionDenied = errors.New("screen capture permission denied")
	// ErrCaptureFailed indicates no usable frame could be produced.
	ErrCaptureFailed = errors.New("screen capture failed")
)

// Kind names the capability a Source provides.
type Kind string

const KindScreenShare Kind = "screen-share"

// Metadata describes the stream surface once it is ready.
type Metadata struct {
	Width  int
	Height int
	Output string
}

// Stream is a live capture grant. It must be stopped exactly once.
type Stream interface {
	Metadata(context.Context) (Metadata, error)
	Frame(context.Context) (image.Image, error)
	Stop() error
}

// Source negotiates capture streams.
type Source interface {
	Kind() Kind
	Name() string
	Open(context.Context) (Stream, error)
}

// Image is one encoded capture.
type Image struct {
	PNG        []byte
	Width      int
	Height     int
	Output     string
	Source     string
	CapturedAt time.Time
}

// Service turns a Source into PNG stills.
type Service struct {
	source Source
	logger *slog.Logger
	encode func(io.Writer, image.Image) error
	now    func() time.Time
}

// NewService constructs a capture service for source.
func NewService(source Source, logger *slog.Logger) *Service {
	return &Service{
		source: source,
		logger: logger,
		encode: png.Encode,
		now:    time.Now,
	}
}

// Capture opens a stream, renders one frame at source resolution, and
// encodes it as PNG. The stream is stopped on every return path.
func (s *Service) Capture(ctx context.Context) (img Image, err error) {
	if s.source == nil {
		return Image{}, fmt.Errorf("%w: no capture source configured", ErrCaptureFailed)
	}

	stream, err := s.source.Open(ctx)
	if err != nil {
		return Image{}, classifyOpenError(s.source.Name(), err)
	}
	defer func() {
		if stopErr := stream.Stop(); stopErr != nil {
			s.logWarn("capture stream stop failed", "source", s.source.Name(), "error", stopErr.Error())
		}
	}()

	meta, err := stream.Metadata(ctx)
	if err != nil {
		return Image{}, fmt.Errorf("%w: wait for stream metadata: %w", ErrCaptureFailed, err)
	}
	if meta.Width <= 0 || meta.Height <= 0 {
		return Image{}, fmt.Errorf("%w: stream surface is %dx%d", ErrCaptureFailed, meta.Width, meta.Height)
	}

	frame, err := stream.Frame(ctx)
	if err != nil {
		return Image{}, fmt.Errorf("%w: read frame: %w", ErrCaptureFailed, err)
	}
	if frame == nil {
		return Image{}, fmt.Errorf("%w: stream returned no frame", ErrCaptureFailed)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, meta.Width, meta.Height))
	draw.Draw(canvas, canvas.Bounds(), frame, frame.Bounds().Min, draw.Src)

	var buf bytes.Buffer
	if err := s.encode(&buf, canvas); err != nil {
		return Image{}, fmt.Errorf("%w: encode png: %w", ErrCaptureFailed, err)
	}
	if buf.Len() == 0 {
		return Image{}, fmt.Errorf("%w: encoder produced no data", ErrCaptureFailed)
	}

	return Image{
		PNG:        buf.Bytes(),
		Width:      meta.Width,
		Height:     meta.Height,
		Output:     meta.Output,
		Source:     s.source.Name(),
		CapturedAt: s.now(),
	}, nil
}

func classifyOpenError(source string, err error) error {
	switch {
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrCaptureFailed):
		return fmt.Errorf("open %s: %w", source, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("open %s: %w", source, err)
	default:
		return fmt.Errorf("%w: open %s: %w", ErrCaptureFailed, source, err)
	}
}

func (s *Service) logWarn(msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Warn(msg, args...)
}

// decodedStream serves an already-decoded still and runs release on Stop.
type decodedStream struct {
	img     image.Image
	output  string
	release func() error
	stopped bool
}

func (d *decodedStream) Metadata(context.Context) (Metadata, error) {
	if d.img == nil {
		return Metadata{}, errors.New("stream has no surface")
	}
	b := d.img.Bounds()
	return Metadata{Width: b.Dx(), Height: b.Dy(), Output: d.output}, nil
}

func (d *decodedStream) Frame(context.Context) (image.Image, error) {
	if d.stopped {
		return nil, errors.New("stream already stopped")
	}
	return d.img, nil
}

func (d *decodedStream) Stop() error {
	if d.stopped {
		return nil
	}
	d.stopped = true
	d.img = nil
	if d.release != nil {
		return d.release()
	}
	return nil
}
