// Package interpreter runs the hub-side command loop: it frames the inbound
// byte stream, decodes drive commands and applies them to actuators.
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/hubdrive/internal/protocol"
)

const (
	DefaultPollInterval = 5 * time.Millisecond
	DefaultSteerSpeed   = 300
	// DefaultMaxSteerAngle limits steering targets on the reference linkage.
	DefaultMaxSteerAngle = 100
)

// Phase is the interpreter lifecycle position.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseReady        Phase = "ready"
	PhaseRunning      Phase = "running"
)

// Input is a non-blocking byte source such as hub stdin.
type Input interface {
	// Ready reports whether ReadByte would return without waiting.
	Ready() bool
	ReadByte() (byte, error)
}

// Drainer is implemented by inputs that can end. Run returns once Drained
// reports true, after every buffered byte has been applied.
type Drainer interface {
	Drained() bool
}

// Options tunes one interpreter.
type Options struct {
	Ports         Ports
	SteerSpeed    int
	MaxSteerAngle int
	PollInterval  time.Duration
}

// ActuatorState is the last-applied actuator snapshot.
type ActuatorState struct {
	Throttle    int   `json:"throttle"`
	SteerTarget int   `json:"steer_target"`
	Driving     bool  `json:"driving"`
	Light       Color `json:"light"`
}

// Interpreter owns the actuator handles for one hub program run.
type Interpreter struct {
	logger *slog.Logger
	hub    Hub
	opts   Options

	right    Motor
	left     Motor
	steering SteeringMotor
	light    Light

	framer protocol.Framer

	mu       sync.RWMutex
	phase    Phase
	state    ActuatorState
	degraded []Degraded
}

// New returns an interpreter in PhaseInitializing. Nothing is bound until
// Init or Run.
func New(logger *slog.Logger, hub Hub, opts Options) *Interpreter {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if opts.Ports == (Ports{}) {
		opts.Ports = DefaultPorts()
	}
	if opts.SteerSpeed <= 0 {
		opts.SteerSpeed = DefaultSteerSpeed
	}
	if opts.MaxSteerAngle <= 0 || opts.MaxSteerAngle > protocol.MaxSteerAngle {
		opts.MaxSteerAngle = DefaultMaxSteerAngle
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	return &Interpreter{
		logger: logger,
		hub:    hub,
		opts:   opts,
		phase:  PhaseInitializing,
		state:  ActuatorState{Light: ColorOff},
	}
}

// Init binds every actuator independently, reports readiness on out and
// moves to PhaseReady. Bind failures are recorded in Degraded.
func (i *Interpreter) Init(out io.Writer) error {
	if i.Phase() != PhaseInitializing {
		return nil
	}

	var degraded []Degraded
	record := func(capability Capability, port Port, err error) {
		degraded = append(degraded, Degraded{Capability: capability, Port: port, Err: err})
		i.logger.Warn("actuator unavailable", "capability", capability, "port", port, "error", err)
	}

	if i.hub == nil {
		record(CapabilityLight, "", errors.New("no hub"))
		record(CapabilityRightDrive, i.opts.Ports.Right, errors.New("no hub"))
		record(CapabilityLeftDrive, i.opts.Ports.Left, errors.New("no hub"))
		record(CapabilitySteering, i.opts.Ports.Steering, errors.New("no hub"))
	} else {
		if light, err := i.hub.Light(); err != nil {
			record(CapabilityLight, "", err)
		} else {
			i.light = light
		}
		i.setLight(ColorOrange)

		if m, err := i.hub.Motor(i.opts.Ports.Right); err != nil {
			record(CapabilityRightDrive, i.opts.Ports.Right, err)
		} else {
			i.right = m
		}
		if m, err := i.hub.Motor(i.opts.Ports.Left); err != nil {
			record(CapabilityLeftDrive, i.opts.Ports.Left, err)
		} else {
			i.left = m
		}
		if s, err := i.hub.SteeringMotor(i.opts.Ports.Steering); err != nil {
			record(CapabilitySteering, i.opts.Ports.Steering, err)
		} else if err := s.ResetAngle(0); err != nil {
			record(CapabilitySteering, i.opts.Ports.Steering, fmt.Errorf("reset angle: %w", err))
		} else {
			i.steering = s
		}
	}

	i.mu.Lock()
	i.degraded = degraded
	i.mu.Unlock()

	i.setLight(ColorGreen)
	if out != nil {
		if _, err := out.Write(protocol.ReadyMarker); err != nil {
			return fmt.Errorf("write ready marker: %w", err)
		}
	}

	i.setPhase(PhaseReady)
	i.logger.Info("interpreter ready", "degraded", len(degraded))
	return nil
}

// Run initializes if needed, then polls in until ctx ends or a Drainer input
// is drained.
func (i *Interpreter) Run(ctx context.Context, in Input, out io.Writer) error {
	if err := i.Init(out); err != nil {
		return err
	}
	i.setPhase(PhaseRunning)

	timer := time.NewTimer(i.opts.PollInterval)
	defer timer.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		consumed, err := i.Step(in)
		if err != nil && !errors.Is(err, io.EOF) {
			i.logger.Warn("read input failed", "error", err)
		}
		if consumed {
			continue
		}
		if d, ok := in.(Drainer); ok && d.Drained() {
			i.logger.Debug("input closed")
			return nil
		}

		timer.Reset(i.opts.PollInterval)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

// Step consumes at most one byte from in. It reports whether a byte was read.
func (i *Interpreter) Step(in Input) (bool, error) {
	if in == nil || !in.Ready() {
		return false, nil
	}
	b, err := in.ReadByte()
	if err != nil {
		return false, err
	}
	i.Feed(b)
	return true, nil
}

// Feed pushes one byte through the framer and dispatches a completed frame.
func (i *Interpreter) Feed(b byte) {
	frame, ok := i.framer.Feed(b)
	if !ok {
		return
	}

	cmd, err := protocol.Decode(frame)
	if err != nil {
		i.logger.Debug("frame discarded", "frame", frame, "error", err)
		return
	}
	i.apply(cmd)
}

func (i *Interpreter) apply(cmd protocol.Command) {
	switch cmd.Action {
	case protocol.ActionStop:
		i.stopDrive()
	case protocol.ActionThrottle:
		i.drive(cmd.Magnitude)
	case protocol.ActionSteer:
		i.steer(cmd.Magnitude)
	case protocol.ActionCenter:
		i.steer(0)
	}
}

func (i *Interpreter) stopDrive() {
	if i.right != nil {
		if err := i.right.Stop(); err != nil {
			i.logger.Warn("right motor stop failed", "error", err)
		}
	}
	if i.left != nil {
		if err := i.left.Stop(); err != nil {
			i.logger.Warn("left motor stop failed", "error", err)
		}
	}

	i.mu.Lock()
	i.state.Throttle = 0
	i.state.Driving = false
	i.mu.Unlock()
	i.setLight(ColorGreen)
}

// drive runs the motors mirrored; they face opposite directions on the chassis.
func (i *Interpreter) drive(speed int) {
	if i.right != nil {
		if err := i.right.Run(speed); err != nil {
			i.logger.Warn("right motor run failed", "speed", speed, "error", err)
		}
	}
	if i.left != nil {
		if err := i.left.Run(-speed); err != nil {
			i.logger.Warn("left motor run failed", "speed", -speed, "error", err)
		}
	}

	i.mu.Lock()
	i.state.Throttle = speed
	i.state.Driving = speed != 0
	i.mu.Unlock()

	if speed != 0 {
		i.setLight(ColorBlue)
	} else {
		i.setLight(ColorGreen)
	}
}

func (i *Interpreter) steer(target int) {
	limit := i.opts.MaxSteerAngle
	if target > limit {
		target = limit
	}
	if target < -limit {
		target = -limit
	}

	if i.steering != nil {
		if err := i.steering.RunTarget(i.opts.SteerSpeed, target); err != nil {
			i.logger.Warn("steering run target failed", "target", target, "error", err)
		}
	}

	i.mu.Lock()
	i.state.SteerTarget = target
	i.mu.Unlock()
}

func (i *Interpreter) setLight(color Color) {
	if i.light != nil {
		if err := i.light.On(color); err != nil {
			i.logger.Debug("light update failed", "color", color, "error", err)
		}
	}
	i.mu.Lock()
	i.state.Light = color
	i.mu.Unlock()
}

func (i *Interpreter) setPhase(phase Phase) {
	i.mu.Lock()
	i.phase = phase
	i.mu.Unlock()
}

// Phase returns the current lifecycle phase.
func (i *Interpreter) Phase() Phase {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.phase
}

// State returns the last-applied actuator snapshot.
func (i *Interpreter) State() ActuatorState {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// Degraded lists actuators that failed to bind.
func (i *Interpreter) Degraded() []Degraded {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]Degraded(nil), i.degraded...)
}
