// Package indicator plays audio cues for hub session state changes.
package indicator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rbright/hubdrive/internal/config"
	"github.com/rbright/hubdrive/internal/fsm"
	"github.com/rbright/hubdrive/internal/worker"
)

// Cues is a worker observer that sounds a cue when the hub becomes ready,
// when a ready session ends and when a session fails.
type Cues struct {
	worker.NopObserver

	cfg    config.IndicatorConfig
	logger *slog.Logger
	play   func(context.Context, cueKind, config.IndicatorConfig) error

	mu      sync.Mutex
	wasLive bool
	soundMu sync.Mutex
	pending sync.WaitGroup
}

// NewCues creates a cue observer from config.
func NewCues(cfg config.IndicatorConfig, logger *slog.Logger) *Cues {
	return &Cues{cfg: cfg, logger: logger, play: emitCue}
}

// StateChanged cues ready and the end of a session that reached ready.
func (c *Cues) StateChanged(_ context.Context, state fsm.State) {
	c.mu.Lock()
	var kind cueKind
	switch state {
	case fsm.StateReady:
		c.wasLive = true
		kind = cueReady
	case fsm.StateDisconnected:
		if c.wasLive {
			kind = cueDisconnect
		}
		c.wasLive = false
	}
	c.mu.Unlock()

	if kind != 0 {
		c.playCue(kind)
	}
}

// SessionFailed cues a discovery, connect or readiness failure.
func (c *Cues) SessionFailed(context.Context, error) {
	c.playCue(cueError)
}

// Wait blocks until queued cues finish playing.
func (c *Cues) Wait() {
	c.pending.Wait()
}

// playCue serializes cue playback and emits audio asynchronously.
func (c *Cues) playCue(kind cueKind) {
	if !c.cfg.SoundEnable {
		return
	}
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		c.soundMu.Lock()
		defer c.soundMu.Unlock()
		if err := c.play(context.Background(), kind, c.cfg); err != nil {
			c.log("indicator audio cue failed", err)
		}
	}()
}

// log emits debug-only indicator failures to the runtime logger.
func (c *Cues) log(message string, err error) {
	if c.logger == nil || err == nil {
		return
	}
	c.logger.Debug(message, "error", err.Error())
}
