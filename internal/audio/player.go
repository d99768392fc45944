package audio

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jfreymuth/pulse"
)

// Player renders clips through PulseAudio on the configured sink.
type Player struct {
	sink      string
	mediaName string
	logger    *slog.Logger
}

// NewPlayer creates a player bound to a playback.sink preference. An empty
// or "default" sink follows the server default.
func NewPlayer(sink string, mediaName string, logger *slog.Logger) *Player {
	if mediaName == "" {
		mediaName = appName
	}
	return &Player{sink: sink, mediaName: mediaName, logger: logger}
}

// Play blocks until clip has drained or ctx is cancelled.
func (p *Player) Play(ctx context.Context, clip Clip) error {
	if clip.Channels != 1 && clip.Channels != 2 {
		return fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, clip.Channels)
	}
	if len(clip.Samples) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	opts := []pulse.PlaybackOption{
		pulse.PlaybackSampleRate(clip.SampleRate),
		pulse.PlaybackLatency(0.05),
		pulse.PlaybackMediaName(p.mediaName),
	}
	if clip.Channels == 2 {
		opts = append(opts, pulse.PlaybackStereo)
	} else {
		opts = append(opts, pulse.PlaybackMono)
	}

	if sink, err := p.resolveSink(client); err != nil {
		return err
	} else if sink != nil {
		opts = append(opts, pulse.PlaybackSink(sink))
	}

	stream, err := client.NewPlayback(clipReader(ctx, clip.Samples), opts...)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play stream: %w", err)
	}
	return ctx.Err()
}

// resolveSink returns nil when the server default should be used.
func (p *Player) resolveSink(client *pulse.Client) (*pulse.Sink, error) {
	if p.sink == "" || p.sink == "default" {
		return nil, nil
	}
	sinks, err := listSinks(client)
	if err != nil {
		return nil, err
	}
	selection, err := selectSinkFromList(sinks, p.sink)
	if err != nil {
		return nil, err
	}
	if selection.Warning != "" && p.logger != nil {
		p.logger.Warn("playback sink fallback", "warning", selection.Warning)
	}
	sink, err := client.SinkByID(selection.Sink.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve sink %q: %w", selection.Sink.ID, err)
	}
	return sink, nil
}

// clipReader feeds samples to Pulse and ends the stream early once ctx is done.
func clipReader(ctx context.Context, samples []int16) pulse.Int16Reader {
	cursor := 0
	return func(buf []int16) (int, error) {
		if ctx.Err() != nil || cursor >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	}
}
