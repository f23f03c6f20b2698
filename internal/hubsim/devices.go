// Package hubsim simulates a motor-driving hub for the interpreter.
package hubsim

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rbright/hubdrive/internal/interpreter"
)

var ErrStalled = errors.New("motor stalled")

// Motor is a simulated drive motor.
type Motor struct {
	mu      sync.Mutex
	port    interpreter.Port
	speed   int
	stopped bool
	fail    error
}

func (m *Motor) Port() interpreter.Port {
	return m.port
}

func (m *Motor) Run(speed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.speed = speed
	m.stopped = false
	return nil
}

func (m *Motor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.speed = 0
	m.stopped = true
	return nil
}

// Stopped reports whether Stop was the last command.
func (m *Motor) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// Speed is the last commanded speed; zero after Stop.
func (m *Motor) Speed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speed
}

// Fail makes subsequent calls return err; nil clears it.
func (m *Motor) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// SteeringMotor moves toward its latest target at the commanded speed in
// degrees per second. A new target redirects a move in progress.
type SteeringMotor struct {
	mu     sync.Mutex
	port   interpreter.Port
	angle  float64
	target int
	speed  int
}

func (s *SteeringMotor) Port() interpreter.Port {
	return s.port
}

func (s *SteeringMotor) ResetAngle(angle int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.angle = float64(angle)
	s.target = angle
	return nil
}

func (s *SteeringMotor) RunTarget(speed int, target int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = int(math.Abs(float64(speed)))
	s.target = target
	return nil
}

// Advance moves the simulated linkage by d of travel time.
func (s *SteeringMotor) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := float64(s.target) - s.angle
	if remaining == 0 || s.speed == 0 || d <= 0 {
		return
	}
	step := float64(s.speed) * d.Seconds()
	if math.Abs(remaining) <= step {
		s.angle = float64(s.target)
		return
	}
	if remaining < 0 {
		step = -step
	}
	s.angle += step
}

// Angle is the current linkage position in degrees.
func (s *SteeringMotor) Angle() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.angle
}

func (s *SteeringMotor) Target() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Settled reports whether the linkage has reached its target.
func (s *SteeringMotor) Settled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.angle == float64(s.target)
}

type Light struct {
	mu    sync.Mutex
	color interpreter.Color
}

func (l *Light) On(c interpreter.Color) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.color = c
	return nil
}

func (l *Light) Color() interpreter.Color {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.color == "" {
		return interpreter.ColorOff
	}
	return l.color
}
