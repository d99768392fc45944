package indicator

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/sayshot/internal/audio"
)

type cueKind int

const (
	cueComplete cueKind = iota + 1
	cueError
)

const cueSampleRate = 16000

type toneSpec struct {
	frequencyHz float64
	duration    time.Duration
	volume      float64
}

var (
	completeCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 740, duration: 65 * time.Millisecond, volume: 0.18},
		{frequencyHz: 988, duration: 90 * time.Millisecond, volume: 0.18},
	})
	errorCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 480, duration: 75 * time.Millisecond, volume: 0.18},
		{frequencyHz: 360, duration: 120 * time.Millisecond, volume: 0.18},
	})
)

// emitCue plays the configured cue file, falling back to the synthesized tone.
func (n *Notifier) emitCue(ctx context.Context, kind cueKind) error {
	if path := n.cuePath(kind); path != "" {
		clip, err := loadCueFile(path)
		if err == nil {
			return n.cues.Play(ctx, clip)
		}
		n.log("indicator cue file unusable", err)
	}

	samples := cueSamples(kind)
	if len(samples) == 0 {
		return nil
	}
	return n.cues.Play(ctx, audio.Clip{SampleRate: cueSampleRate, Channels: 1, Samples: samples})
}

func (n *Notifier) cuePath(kind cueKind) string {
	switch kind {
	case cueComplete:
		return expandUserPath(n.cfg.SoundCompleteFile)
	case cueError:
		return expandUserPath(n.cfg.SoundErrorFile)
	default:
		return ""
	}
}

func loadCueFile(path string) (audio.Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("read cue file %q: %w", path, err)
	}
	clip, err := audio.DecodeWAV(data)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("decode cue file %q: %w", path, err)
	}
	return clip, nil
}

func expandUserPath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if raw != "~" && !strings.HasPrefix(raw, "~/") {
		return raw
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return raw
	}
	return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(raw, "~"), "/"))
}

func cueSamples(kind cueKind) []int16 {
	switch kind {
	case cueComplete:
		return completeCuePCM
	case cueError:
		return errorCuePCM
	default:
		return nil
	}
}

func synthesizeCue(parts []toneSpec) []int16 {
	if len(parts) == 0 {
		return nil
	}
	gap := make([]int16, samplesForDuration(22*time.Millisecond))

	var pcm []int16
	for i, part := range parts {
		if i > 0 {
			pcm = append(pcm, gap...)
		}
		pcm = append(pcm, synthesizeTone(part)...)
	}
	return pcm
}

func synthesizeTone(spec toneSpec) []int16 {
	n := samplesForDuration(spec.duration)
	if n <= 0 || spec.frequencyHz <= 0 || spec.volume <= 0 {
		return nil
	}

	// 5ms linear attack/release, shorter for very short tones.
	ramp := min(n/10, cueSampleRate/200)
	ramp = max(ramp, 1)

	pcm := make([]int16, n)
	for i := range n {
		envelope := min(1.0, float64(i)/float64(ramp), float64(n-i-1)/float64(ramp))
		t := float64(i) / cueSampleRate
		sample := math.Sin(2 * math.Pi * spec.frequencyHz * t)
		pcm[i] = int16(math.Round(sample * spec.volume * envelope * 32767))
	}
	return pcm
}

func samplesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
