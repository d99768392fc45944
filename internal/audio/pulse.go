// Package audio handles output sink discovery, selection, and PCM playback.
package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const appName = "sayshot"

// Sink describes one Pulse output sink surfaced to sayshot.
type Sink struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Selection is the resolved playback sink plus optional fallback warning context.
type Selection struct {
	Sink     Sink
	Warning  string
	Fallback bool
}

func newClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(appName),
		pulse.ClientApplicationIconName("audio-speakers"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// ListSinks returns Pulse output sinks with default/availability metadata.
func ListSinks(_ context.Context) ([]Sink, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return listSinks(client)
}

func listSinks(client *pulse.Client) ([]Sink, error) {
	defaultSink, err := client.DefaultSink()
	if err != nil {
		return nil, fmt.Errorf("read default sink: %w", err)
	}
	defaultID := defaultSink.ID()

	var sinkInfos pulseproto.GetSinkInfoListReply
	if err := client.RawRequest(&pulseproto.GetSinkInfoList{}, &sinkInfos); err != nil {
		return nil, fmt.Errorf("list sinks: %w", err)
	}

	sinks := make([]Sink, 0, len(sinkInfos))
	for _, info := range sinkInfos {
		if info == nil {
			continue
		}
		sinks = append(sinks, Sink{
			ID:          info.SinkName,
			Description: info.Device,
			State:       sinkStateString(info.State),
			Available:   sinkAvailable(info),
			Muted:       info.Mute,
			Default:     info.SinkName == defaultID,
		})
	}
	return sinks, nil
}

// SelectSink resolves the playback.sink preference against live sinks.
func SelectSink(ctx context.Context, preferred string) (Selection, error) {
	sinks, err := ListSinks(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectSinkFromList(sinks, preferred)
}

// selectSinkFromList applies selection policy to a pre-fetched sink list.
// A preferred sink that is muted or unplugged falls back to the default sink.
func selectSinkFromList(sinks []Sink, preferred string) (Selection, error) {
	if len(sinks) == 0 {
		return Selection{}, errors.New("no audio output sinks found")
	}

	preferred = strings.TrimSpace(strings.ToLower(preferred))

	var defaultSink, byName *Sink
	for i := range sinks {
		sink := &sinks[i]
		if sink.Default {
			defaultSink = sink
		}
		if byName == nil && preferred != "" && preferred != "default" && sinkMatches(*sink, preferred) {
			byName = sink
		}
	}

	if preferred == "" || preferred == "default" {
		if defaultSink == nil {
			return Selection{}, errors.New("default audio sink is unavailable")
		}
		return Selection{Sink: *defaultSink}, nil
	}
	if byName == nil {
		return Selection{}, fmt.Errorf("playback.sink %q did not match any sink", preferred)
	}
	if byName.Available && !byName.Muted {
		return Selection{Sink: *byName}, nil
	}

	reason := "unavailable"
	if byName.Muted {
		reason = "muted"
	}
	if defaultSink == nil || defaultSink.ID == byName.ID {
		return Selection{}, fmt.Errorf("playback sink %q is %s and no usable fallback", byName.ID, reason)
	}
	if !defaultSink.Available || defaultSink.Muted {
		return Selection{}, fmt.Errorf("playback sink %q is %s and default sink %q is not usable", byName.ID, reason, defaultSink.ID)
	}

	return Selection{
		Sink:     *defaultSink,
		Warning:  fmt.Sprintf("playback.sink %q is %s; falling back to %q", byName.ID, reason, defaultSink.ID),
		Fallback: true,
	}, nil
}

// sinkMatches reports whether a search term matches a sink id or description.
func sinkMatches(sink Sink, term string) bool {
	if term == "" {
		return false
	}
	id := strings.ToLower(sink.ID)
	desc := strings.ToLower(sink.Description)
	return strings.Contains(id, term) || strings.Contains(desc, term)
}

// sinkStateString maps Pulse sink state constants to human-readable values.
func sinkStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sinkAvailable maps Pulse port availability to a simple boolean.
func sinkAvailable(info *pulseproto.GetSinkInfoReply) bool {
	if info == nil {
		return false
	}
	if len(info.Ports) == 0 {
		return true
	}
	for _, port := range info.Ports {
		if port.Name != info.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
