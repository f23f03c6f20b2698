package indicator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"

	"github.com/rbright/hubdrive/internal/config"
)

type cueKind int

const (
	cueReady cueKind = iota + 1
	cueDisconnect
	cueError
)

func (k cueKind) String() string {
	switch k {
	case cueReady:
		return "ready"
	case cueDisconnect:
		return "disconnect"
	case cueError:
		return "error"
	default:
		return fmt.Sprintf("cue(%d)", int(k))
	}
}

const (
	sampleRate = 16000
	cueVolume  = 0.18
	noteGap    = 22 * time.Millisecond
	maxRamp    = 5 * time.Millisecond
	fileLimit  = 4 * time.Second
)

// note is one sine tone of a cue phrase.
type note struct {
	hz  float64
	dur time.Duration
}

// Rising for ready, a single mid tone for disconnect, falling for failure.
var phrases = map[cueKind][]note{
	cueReady:      {{hz: 740, dur: 65 * time.Millisecond}, {hz: 988, dur: 90 * time.Millisecond}},
	cueDisconnect: {{hz: 620, dur: 120 * time.Millisecond}},
	cueError:      {{hz: 480, dur: 75 * time.Millisecond}, {hz: 360, dur: 90 * time.Millisecond}},
}

var renderedCues = sync.OnceValue(func() map[cueKind][]int16 {
	out := make(map[cueKind][]int16, len(phrases))
	for kind, notes := range phrases {
		out[kind] = renderPhrase(notes, cueVolume)
	}
	return out
})

// emitCue plays the configured file for kind, falling back to the
// synthesized phrase when no file is set or it cannot be played.
func emitCue(ctx context.Context, kind cueKind, cfg config.IndicatorConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if path := cuePath(kind, cfg); path != "" {
		if err := playCueFile(ctx, path); err == nil {
			return nil
		}
	}

	pcm := renderedCues()[kind]
	if len(pcm) == 0 {
		return nil
	}
	return playPCM(kind, pcm)
}

func cuePath(kind cueKind, cfg config.IndicatorConfig) string {
	switch kind {
	case cueReady:
		return expandHome(cfg.SoundReadyFile)
	case cueDisconnect:
		return expandHome(cfg.SoundDisconnectFile)
	case cueError:
		return expandHome(cfg.SoundErrorFile)
	default:
		return ""
	}
}

func expandHome(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw != "~" && !strings.HasPrefix(raw, "~/") {
		return raw
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return raw
	}
	return filepath.Join(home, strings.TrimPrefix(raw[1:], "/"))
}

// filePlayers are tried in order; the first one installed plays the file.
var filePlayers = [][]string{
	{"pw-play", "--media-role", "Notification"},
	{"paplay"},
}

var errNoPlayer = errors.New("no audio file player found (pw-play, paplay)")

func playCueFile(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("stat cue file %q: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(ctx, fileLimit)
	defer cancel()

	for _, player := range filePlayers {
		bin, err := exec.LookPath(player[0])
		if err != nil {
			continue
		}
		args := append(append([]string(nil), player[1:]...), path)
		if err := exec.CommandContext(ctx, bin, args...).Run(); err != nil {
			return fmt.Errorf("play cue file %q with %s: %w", path, player[0], err)
		}
		return nil
	}
	return errNoPlayer
}

func playPCM(kind cueKind, pcm []int16) error {
	client, err := NewPulseClient()
	if err != nil {
		return err
	}
	defer client.Close()

	offset := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		n := copy(buf, pcm[offset:])
		offset += n
		if offset >= len(pcm) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("hubdrive "+kind.String()+" cue"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play %s cue: %w", kind, err)
	}
	return nil
}

// renderPhrase concatenates notes separated by noteGap of silence.
func renderPhrase(notes []note, volume float64) []int16 {
	gap := sampleCount(noteGap)
	var pcm []int16
	for i, n := range notes {
		if i > 0 {
			pcm = append(pcm, make([]int16, gap)...)
		}
		pcm = append(pcm, renderNote(n, volume)...)
	}
	return pcm
}

// renderNote synthesizes a sine with linear attack and release ramps to
// avoid clicks at the edges.
func renderNote(n note, volume float64) []int16 {
	count := sampleCount(n.dur)
	if count == 0 || n.hz <= 0 || volume <= 0 {
		return nil
	}

	ramp := max(min(count/10, sampleCount(maxRamp)), 1)
	pcm := make([]int16, count)
	for i := range pcm {
		edge := min(i, count-1-i)
		envelope := 1.0
		if edge < ramp {
			envelope = float64(edge) / float64(ramp)
		}
		phase := 2 * math.Pi * n.hz * float64(i) / sampleRate
		pcm[i] = int16(math.Round(math.Sin(phase) * volume * envelope * math.MaxInt16))
	}
	return pcm
}

func sampleCount(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * sampleRate))
}

// NewPulseClient connects to the session pulse server as hubdrive.
func NewPulseClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("hubdrive"),
		pulse.ClientApplicationIconName("input-gaming"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}
