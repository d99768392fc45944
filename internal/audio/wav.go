package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrUnsupportedFormat rejects audio payloads the player cannot render.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// Clip is interleaved signed 16-bit PCM ready for playback.
type Clip struct {
	SampleRate int
	Channels   int
	Samples    []int16
}

// Duration is the playback length of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// DecodeWAV parses a RIFF/WAVE payload carrying 16-bit PCM in one or two channels.
func DecodeWAV(data []byte) (Clip, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Clip{}, fmt.Errorf("%w: not a RIFF/WAVE payload", ErrUnsupportedFormat)
	}

	var (
		clip    Clip
		haveFmt bool
		pcm     []byte
	)

	rest := data[12:]
	for len(rest) >= 8 {
		id := string(rest[0:4])
		size := int(binary.LittleEndian.Uint32(rest[4:8]))
		rest = rest[8:]
		if size > len(rest) {
			// Streaming encoders leave the data size unset; take what is there.
			if id != "data" {
				return Clip{}, fmt.Errorf("%w: truncated %q chunk", ErrUnsupportedFormat, id)
			}
			size = len(rest)
		}
		body := rest[:size]

		switch id {
		case "fmt ":
			if size < 16 {
				return Clip{}, fmt.Errorf("%w: short fmt chunk", ErrUnsupportedFormat)
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			clip.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			clip.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bits := binary.LittleEndian.Uint16(body[14:16])
			if format != wavFormatPCM && format != wavFormatExtensible {
				return Clip{}, fmt.Errorf("%w: wav format tag %d", ErrUnsupportedFormat, format)
			}
			if bits != 16 {
				return Clip{}, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedFormat, bits)
			}
			haveFmt = true
		case "data":
			pcm = body
		}

		if size%2 == 1 && size < len(rest) {
			size++
		}
		rest = rest[size:]
	}

	if !haveFmt {
		return Clip{}, fmt.Errorf("%w: missing fmt chunk", ErrUnsupportedFormat)
	}
	if clip.Channels != 1 && clip.Channels != 2 {
		return Clip{}, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, clip.Channels)
	}
	if clip.SampleRate <= 0 {
		return Clip{}, fmt.Errorf("%w: sample rate %d", ErrUnsupportedFormat, clip.SampleRate)
	}

	clip.Samples = make([]int16, len(pcm)/2)
	for i := range clip.Samples {
		clip.Samples[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return clip, nil
}

// EncodeWAV renders clip as a canonical 44-byte-header PCM WAV.
func EncodeWAV(clip Clip) []byte {
	dataSize := len(clip.Samples) * 2
	blockAlign := clip.Channels * 2

	var buf bytes.Buffer
	buf.Grow(44 + dataSize)
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(wavFormatPCM))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(clip.Channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(clip.SampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(clip.SampleRate*blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	_ = binary.Write(&buf, binary.LittleEndian, clip.Samples)
	return buf.Bytes()
}
