package hubsim

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/hubdrive/internal/interpreter"
)

const DefaultTick = 10 * time.Millisecond

// Options describes the simulated hub wiring.
type Options struct {
	Name string
	// MissingPorts have nothing attached; binding them fails.
	MissingPorts []interpreter.Port
	// Tick is the physics step for steering travel.
	Tick time.Duration
}

// Hub implements interpreter.Hub with simulated devices.
type Hub struct {
	name string
	tick time.Duration

	mu       sync.Mutex
	missing  map[interpreter.Port]bool
	motors   map[interpreter.Port]*Motor
	steering map[interpreter.Port]*SteeringMotor
	light    *Light
}

var _ interpreter.Hub = (*Hub)(nil)

func NewHub(opts Options) *Hub {
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	missing := make(map[interpreter.Port]bool, len(opts.MissingPorts))
	for _, port := range opts.MissingPorts {
		missing[port] = true
	}
	return &Hub{
		name:     opts.Name,
		tick:     opts.Tick,
		missing:  missing,
		motors:   make(map[interpreter.Port]*Motor),
		steering: make(map[interpreter.Port]*SteeringMotor),
		light:    &Light{},
	}
}

func (h *Hub) Name() string {
	return h.name
}

// Motor binds a drive motor on port.
func (h *Hub) Motor(port interpreter.Port) (interpreter.Motor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkPortLocked(port); err != nil {
		return nil, err
	}
	if _, taken := h.steering[port]; taken {
		return nil, fmt.Errorf("port %s already bound to steering", port)
	}
	m, ok := h.motors[port]
	if !ok {
		m = &Motor{port: port}
		h.motors[port] = m
	}
	return m, nil
}

// SteeringMotor binds a position-controlled motor on port.
func (h *Hub) SteeringMotor(port interpreter.Port) (interpreter.SteeringMotor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkPortLocked(port); err != nil {
		return nil, err
	}
	if _, taken := h.motors[port]; taken {
		return nil, fmt.Errorf("port %s already bound to a drive motor", port)
	}
	s, ok := h.steering[port]
	if !ok {
		s = &SteeringMotor{port: port}
		h.steering[port] = s
	}
	return s, nil
}

func (h *Hub) Light() (interpreter.Light, error) {
	return h.light, nil
}

func (h *Hub) checkPortLocked(port interpreter.Port) error {
	switch port {
	case interpreter.PortA, interpreter.PortB, interpreter.PortC,
		interpreter.PortD, interpreter.PortE, interpreter.PortF:
	default:
		return fmt.Errorf("unknown port %q", port)
	}
	if h.missing[port] {
		return fmt.Errorf("no device on port %s", port)
	}
	return nil
}

// DriveMotor returns the simulated motor bound on port, if any.
func (h *Hub) DriveMotor(port interpreter.Port) (*Motor, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.motors[port]
	return m, ok
}

// Steering returns the simulated steering motor bound on port, if any.
func (h *Hub) Steering(port interpreter.Port) (*SteeringMotor, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.steering[port]
	return s, ok
}

func (h *Hub) StatusLight() *Light {
	return h.light
}

// Advance steps every steering motor by d.
func (h *Hub) Advance(d time.Duration) {
	h.mu.Lock()
	motors := make([]*SteeringMotor, 0, len(h.steering))
	for _, s := range h.steering {
		motors = append(motors, s)
	}
	h.mu.Unlock()

	for _, s := range motors {
		s.Advance(d)
	}
}

// Simulate advances steering travel every tick until ctx ends.
func (h *Hub) Simulate(ctx context.Context) {
	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.Advance(now.Sub(last))
			last = now
		}
	}
}

// MotorSpeeds maps each bound drive port to its commanded speed.
func (h *Hub) MotorSpeeds() map[interpreter.Port]int {
	h.mu.Lock()
	motors := make(map[interpreter.Port]*Motor, len(h.motors))
	for port, m := range h.motors {
		motors[port] = m
	}
	h.mu.Unlock()

	speeds := make(map[interpreter.Port]int, len(motors))
	for port, m := range motors {
		speeds[port] = m.Speed()
	}
	return speeds
}

// SteeringAngles maps each bound steering port to its current angle.
func (h *Hub) SteeringAngles() map[interpreter.Port]float64 {
	h.mu.Lock()
	steering := make(map[interpreter.Port]*SteeringMotor, len(h.steering))
	for port, s := range h.steering {
		steering[port] = s
	}
	h.mu.Unlock()

	angles := make(map[interpreter.Port]float64, len(steering))
	for port, s := range steering {
		angles[port] = s.Angle()
	}
	return angles
}

// ProgramOptions configures the interpreter each attach runs.
type ProgramOptions struct {
	Interpreter interpreter.Options
	// OnStart is called with each new interpreter, e.g. to expose telemetry.
	OnStart func(*interpreter.Interpreter)
}

// Program runs a fresh interpreter against this hub for each attach,
// matching a hub program restart per connection.
func (h *Hub) Program(logger *slog.Logger, opts ProgramOptions) func(ctx context.Context, in interpreter.Input, out io.Writer) error {
	return func(ctx context.Context, in interpreter.Input, out io.Writer) error {
		interp := interpreter.New(logger, h, opts.Interpreter)
		if opts.OnStart != nil {
			opts.OnStart(interp)
		}
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go h.Simulate(runCtx)
		return interp.Run(runCtx, in, out)
	}
}
