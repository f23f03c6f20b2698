package interpreter

import "fmt"

// Port names a hub I/O port.
type Port string

const (
	PortA Port = "A"
	PortB Port = "B"
	PortC Port = "C"
	PortD Port = "D"
	PortE Port = "E"
	PortF Port = "F"
)

// Color is a status light colour.
type Color string

const (
	ColorOff    Color = "off"
	ColorOrange Color = "orange"
	ColorGreen  Color = "green"
	ColorBlue   Color = "blue"
)

// Motor is a drive motor running at a signed speed.
type Motor interface {
	Run(speed int) error
	Stop() error
}

// SteeringMotor positions the steering linkage. RunTarget must return
// immediately; a newer target supersedes one still in progress.
type SteeringMotor interface {
	ResetAngle(angle int) error
	RunTarget(speed int, target int) error
}

type Light interface {
	On(Color) error
}

// Hub binds actuators by port.
type Hub interface {
	Motor(port Port) (Motor, error)
	SteeringMotor(port Port) (SteeringMotor, error)
	Light() (Light, error)
}

// Capability names one bound actuator role.
type Capability string

const (
	CapabilityRightDrive Capability = "right_drive"
	CapabilityLeftDrive  Capability = "left_drive"
	CapabilitySteering   Capability = "steering"
	CapabilityLight      Capability = "light"
)

// Degraded records an actuator that failed to bind. The interpreter keeps
// running without it.
type Degraded struct {
	Capability Capability
	Port       Port
	Err        error
}

func (d Degraded) String() string {
	if d.Port == "" {
		return fmt.Sprintf("%s: %v", d.Capability, d.Err)
	}
	return fmt.Sprintf("%s (port %s): %v", d.Capability, d.Port, d.Err)
}

// Ports maps actuator roles to hub ports.
type Ports struct {
	Right    Port
	Left     Port
	Steering Port
}

// DefaultPorts matches the reference vehicle wiring.
func DefaultPorts() Ports {
	return Ports{Right: PortA, Left: PortE, Steering: PortC}
}
