package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rbright/hubdrive/internal/config"
	"github.com/rbright/hubdrive/internal/indicator"
	"github.com/rbright/hubdrive/internal/ipc"
	"github.com/rbright/hubdrive/internal/mqttbridge"
	"github.com/rbright/hubdrive/internal/pattern"
	"github.com/rbright/hubdrive/internal/protocol"
	"github.com/rbright/hubdrive/internal/transport"
	"github.com/rbright/hubdrive/internal/tui"
	"github.com/rbright/hubdrive/internal/worker"
)

type ownerMode int

const (
	ownerConnect ownerMode = iota
	ownerDrive
	ownerPattern
)

// commandOwner runs the process that owns the hub session: it serves IPC,
// optionally bridges MQTT and, for drive, runs the terminal UI. In pattern
// mode it replays the demo loop cycles times (zero until interrupted).
func (r Runner) commandOwner(ctx context.Context, cfg config.Config, logger *slog.Logger, mode ownerMode, cycles int) int {
	sel, err := transport.ParseSelector(cfg.Transport.Selector)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintf(r.Stderr, "error: %v; use `hubdrive status` or `hubdrive disconnect`\n", err)
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	t, err := buildTransport(cfg, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	cues := indicator.NewCues(cfg.Indicator, logger)
	observers := []worker.Observer{cues}

	var w *worker.Worker
	var bridge *mqttbridge.Bridge
	if cfg.MQTT.Enable {
		client, err := mqttbridge.Dial(ctx, logger, mqttbridge.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         byte(cfg.MQTT.QoS),
		})
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		defer client.Disconnect(250)
		bridge = mqttbridge.New(logger, client, mqttbridge.SubmitFunc(func(cmd protocol.Command) bool {
			return w.Submit(cmd)
		}), cfg.MQTT.TopicPrefix, byte(cfg.MQTT.QoS))
		observers = append(observers, bridge)
	}

	w = worker.New(logger, t, workerOptions(cfg, sel), observers...)
	if bridge != nil {
		if err := bridge.Start(); err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		defer bridge.Close()
	}

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, w)
	}()

	w.Start(ctx)
	switch mode {
	case ownerDrive:
		uiErr := tui.Run(ctx, w, tui.Options{
			SpeedPercent: cfg.Drive.SpeedPercent,
			SteerAngle:   cfg.Drive.SteerAngle,
			Hold:         ms(cfg.Drive.HoldMS),
		})
		if uiErr != nil {
			logger.Error("terminal ui failed", "error", uiErr.Error())
		}
	case ownerPattern:
		fmt.Fprintf(r.Stdout, "running pattern on %s\n", sel)
		patternErr := pattern.Run(ctx, w, pattern.Default(cfg.Drive.SpeedPercent), pattern.Options{
			Cycles: cycles,
			Logger: logger,
		})
		if patternErr != nil {
			logger.Warn("pattern ended early", "error", patternErr.Error())
		}
	default:
		fmt.Fprintf(r.Stdout, "connecting to %s\n", sel)
		select {
		case <-w.Done():
		case <-ctx.Done():
		}
	}
	w.Stop()

	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}
	cues.Wait()

	logSessionResult(logger, w.SessionID(), w.Err())
	if err := w.Err(); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintln(r.Stdout, "disconnected")
	return 0
}

func logSessionResult(logger *slog.Logger, sessionID string, err error) {
	if logger == nil {
		return
	}
	if err != nil {
		kind := "session"
		switch {
		case errors.Is(err, transport.ErrNotFound):
			kind = "discovery"
		case errors.Is(err, worker.ErrReadyTimeout):
			kind = "ready"
		case errors.Is(err, transport.ErrConnect):
			kind = "connect"
		}
		logger.Error("session failed", "session", sessionID, "kind", kind, "error", err.Error())
		return
	}
	logger.Info("session complete", "session", sessionID)
}
