// Package audio inspects PulseAudio input sources. hark never captures
// audio itself; the engine process does. Sources are only checked so the
// daemon can refuse to start a session with no usable microphone.
package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// Source describes one Pulse input source.
type Source struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	State       string `json:"state"`
	Available   bool   `json:"available"`
	Muted       bool   `json:"muted"`
	Default     bool   `json:"default"`
}

// Usable reports whether the source can currently capture speech.
func (s Source) Usable() bool {
	return s.Available && !s.Muted
}

// Lister enumerates input sources.
type Lister func(ctx context.Context) ([]Source, error)

// ListSources queries the Pulse server for input sources.
func ListSources(_ context.Context) ([]Source, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("hark"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}

	var replies pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &replies); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sourcesFromReplies(replies, defaultSource.ID()), nil
}

func sourcesFromReplies(replies pulseproto.GetSourceInfoListReply, defaultID string) []Source {
	sources := make([]Source, 0, len(replies))
	for _, reply := range replies {
		if reply == nil {
			continue
		}
		sources = append(sources, Source{
			ID:          reply.SourceName,
			Description: reply.Device,
			State:       stateName(reply.State),
			Available:   portAvailable(reply),
			Muted:       reply.Mute,
			Default:     reply.SourceName == defaultID,
		})
	}
	return sources
}

// Resolve picks the source named by input ("" or "default" selects the
// server default) and requires it to be usable.
func Resolve(sources []Source, input string) (Source, error) {
	if len(sources) == 0 {
		return Source{}, errors.New("no audio input sources found")
	}

	input = strings.ToLower(strings.TrimSpace(input))
	var picked *Source
	for i := range sources {
		src := &sources[i]
		if input == "" || input == "default" {
			if src.Default {
				picked = src
				break
			}
			continue
		}
		if matches(*src, input) {
			picked = src
			break
		}
	}

	switch {
	case picked == nil && (input == "" || input == "default"):
		return Source{}, errors.New("default audio source is unavailable")
	case picked == nil:
		return Source{}, fmt.Errorf("availability.input %q did not match any source", input)
	case picked.Muted:
		return Source{}, fmt.Errorf("audio source %q is muted", picked.ID)
	case !picked.Available:
		return Source{}, fmt.Errorf("audio source %q is not available", picked.ID)
	}
	return *picked, nil
}

// matches reports whether term matches a source id or description.
func matches(src Source, term string) bool {
	return strings.Contains(strings.ToLower(src.ID), term) ||
		strings.Contains(strings.ToLower(src.Description), term)
}

func stateName(state uint32) string {
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

// portAvailable maps the active port's availability to a boolean.
func portAvailable(reply *pulseproto.GetSourceInfoReply) bool {
	if reply == nil {
		return false
	}
	if len(reply.Ports) == 0 {
		return true
	}
	for _, port := range reply.Ports {
		if port.Name != reply.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
