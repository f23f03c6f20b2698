// Package protocol encodes drive commands into terminator-framed text and back.
package protocol

import "fmt"

// Action identifies what a Command asks the hub to do.
type Action int

const (
	ActionThrottle Action = iota + 1
	ActionSteer
	ActionStop
	ActionCenter
)

func (a Action) String() string {
	switch a {
	case ActionThrottle:
		return "throttle"
	case ActionSteer:
		return "steer"
	case ActionStop:
		return "stop"
	case ActionCenter:
		return "center"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Category groups actions that supersede each other.
type Category int

const (
	CategoryThrottle Category = iota + 1
	CategorySteering
)

const (
	// MaxThrottle is the largest throttle magnitude in wire units.
	MaxThrottle = 1000
	// MaxSteerAngle bounds steering targets in degrees.
	MaxSteerAngle = 180
	// DefaultSteerAngle is used for bare L/R frames that carry no angle.
	DefaultSteerAngle = 100
)

// Command is one immutable drive intent.
type Command struct {
	Action    Action
	Magnitude int
}

// Throttle returns a throttle command in wire units; negative drives backward.
func Throttle(magnitude int) Command {
	return Command{Action: ActionThrottle, Magnitude: magnitude}
}

// Forward maps a 0..100 UI percentage onto a forward throttle command.
func Forward(percent int) Command {
	return Throttle(ThrottlePercent(percent))
}

// Backward maps a 0..100 UI percentage onto a backward throttle command.
func Backward(percent int) Command {
	return Throttle(-ThrottlePercent(percent))
}

// Steer returns a steering command; negative angles steer left.
func Steer(angle int) Command {
	return Command{Action: ActionSteer, Magnitude: angle}
}

// Left steers left by angle degrees.
func Left(angle int) Command {
	return Steer(-abs(angle))
}

// Right steers right by angle degrees.
func Right(angle int) Command {
	return Steer(abs(angle))
}

// Stop halts the drive motors without touching steering.
func Stop() Command {
	return Command{Action: ActionStop}
}

// Center returns steering to zero.
func Center() Command {
	return Command{Action: ActionCenter}
}

// ThrottlePercent converts a UI percentage to wire units, clamped to 0..100.
func ThrottlePercent(percent int) int {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return percent * 10
}

// Category reports which pending commands this one supersedes.
func (c Command) Category() Category {
	switch c.Action {
	case ActionSteer, ActionCenter:
		return CategorySteering
	default:
		return CategoryThrottle
	}
}

// Validate checks action and magnitude invariants.
func (c Command) Validate() error {
	switch c.Action {
	case ActionThrottle:
		if c.Magnitude < -MaxThrottle || c.Magnitude > MaxThrottle {
			return fmt.Errorf("%w: throttle %d outside ±%d", ErrInvalidCommand, c.Magnitude, MaxThrottle)
		}
	case ActionSteer:
		if c.Magnitude == 0 {
			return fmt.Errorf("%w: steer angle must be non-zero; use center", ErrInvalidCommand)
		}
		if c.Magnitude < -MaxSteerAngle || c.Magnitude > MaxSteerAngle {
			return fmt.Errorf("%w: steer angle %d outside ±%d", ErrInvalidCommand, c.Magnitude, MaxSteerAngle)
		}
	case ActionStop, ActionCenter:
		if c.Magnitude != 0 {
			return fmt.Errorf("%w: %s carries no magnitude", ErrInvalidCommand, c.Action)
		}
	default:
		return fmt.Errorf("%w: unknown action %d", ErrInvalidCommand, int(c.Action))
	}
	return nil
}

func (c Command) String() string {
	switch c.Action {
	case ActionThrottle, ActionSteer:
		return fmt.Sprintf("%s(%d)", c.Action, c.Magnitude)
	default:
		return c.Action.String()
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
