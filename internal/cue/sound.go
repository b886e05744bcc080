package cue

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/jfreymuth/pulse"

	"github.com/rbright/hark/internal/config"
)

const sampleRate = 16000

type toneSpec struct {
	frequencyHz float64
	duration    time.Duration
	volume      float64
}

var (
	startPCM = synthesizeCue([]toneSpec{
		{frequencyHz: 880, duration: 70 * time.Millisecond, volume: 0.18},
		{frequencyHz: 1175, duration: 70 * time.Millisecond, volume: 0.18},
	})
	stopPCM = synthesizeCue([]toneSpec{
		{frequencyHz: 620, duration: 120 * time.Millisecond, volume: 0.18},
	})
	completePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 740, duration: 65 * time.Millisecond, volume: 0.18},
		{frequencyHz: 988, duration: 90 * time.Millisecond, volume: 0.18},
	})
)

func emitCue(ctx context.Context, kind Kind, cfg config.CueConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if path := cuePath(kind, cfg); path != "" {
		if err := playFile(ctx, path); err == nil {
			return nil
		}
	}

	samples := cueSamples(kind)
	if len(samples) == 0 {
		return nil
	}
	return playSynth(ctx, samples)
}

func cuePath(kind Kind, cfg config.CueConfig) string {
	switch kind {
	case KindStart:
		return expandUserPath(cfg.StartFile)
	case KindStop:
		return expandUserPath(cfg.StopFile)
	case KindComplete:
		return expandUserPath(cfg.CompleteFile)
	default:
		return ""
	}
}

func expandUserPath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw != "~" && !strings.HasPrefix(raw, "~/") {
		return raw
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return raw
	}
	return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(raw, "~"), "/"))
}

func playFile(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("stat cue file %q: %w", path, err)
	}
	cmd := exec.CommandContext(ctx, "pw-play", "--media-role", "Notification", path)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("play cue file %q: %w", path, err)
	}
	return nil
}

func playSynth(ctx context.Context, samples []int16) error {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("hark"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	cursor := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if cursor >= len(samples) || ctx.Err() != nil {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("hark listening cue"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play cue stream: %w", err)
	}
	return ctx.Err()
}

func cueSamples(kind Kind) []int16 {
	switch kind {
	case KindStart:
		return startPCM
	case KindStop:
		return stopPCM
	case KindComplete:
		return completePCM
	default:
		return nil
	}
}

// synthesizeCue joins tones with a short silent gap.
func synthesizeCue(parts []toneSpec) []int16 {
	gap := samplesForDuration(22 * time.Millisecond)
	var pcm []int16
	for i, part := range parts {
		if i > 0 {
			pcm = append(pcm, make([]int16, gap)...)
		}
		pcm = append(pcm, synthesizeTone(part)...)
	}
	return pcm
}

func synthesizeTone(tone toneSpec) []int16 {
	n := samplesForDuration(tone.duration)
	if n <= 0 || tone.frequencyHz <= 0 || tone.volume <= 0 {
		return nil
	}

	// 5ms linear attack and release to avoid clicks.
	ramp := min(max(n/10, 1), sampleRate/200)

	pcm := make([]int16, n)
	for i := range n {
		envelope := 1.0
		if i < ramp {
			envelope = float64(i) / float64(ramp)
		}
		if tail := n - i - 1; tail < ramp {
			envelope = min(envelope, float64(tail)/float64(ramp))
		}
		t := float64(i) / sampleRate
		pcm[i] = int16(math.Round(math.Sin(2*math.Pi*tone.frequencyHz*t) * tone.volume * envelope * 32767))
	}
	return pcm
}

func samplesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * sampleRate))
}
