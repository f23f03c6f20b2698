package config

import (
	"fmt"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	switch cfg.Transport.Kind {
	case "ble", "grpc", "loopback":
	default:
		return nil, fmt.Errorf("transport.kind must be one of: ble, grpc, loopback")
	}
	if strings.TrimSpace(cfg.Transport.Selector) == "" {
		return nil, fmt.Errorf("transport.selector must not be empty")
	}
	if cfg.Transport.DiscoveryTimeoutMS <= 0 {
		return nil, fmt.Errorf("transport.discovery_timeout_ms must be > 0")
	}
	if cfg.Transport.ConnectTimeoutMS <= 0 {
		return nil, fmt.Errorf("transport.connect_timeout_ms must be > 0")
	}
	if cfg.Transport.Kind == "grpc" && strings.TrimSpace(cfg.Bridge.Address) == "" {
		return nil, fmt.Errorf("bridge.address must not be empty when transport.kind=grpc")
	}
	if cfg.Bridge.DialTimeoutMS <= 0 {
		return nil, fmt.Errorf("bridge.dial_timeout_ms must be > 0")
	}
	if cfg.Transport.Kind != "ble" && cfg.BLE.ProgramPath != "" {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("ble.program_path is ignored when transport.kind=%s", cfg.Transport.Kind)})
	}

	switch cfg.Session.Ready {
	case ReadyAuto, ReadyHandshake, ReadyDelay:
	default:
		return nil, fmt.Errorf("session.ready must be one of: auto, handshake, delay")
	}
	switch cfg.ReadyMode() {
	case ReadyHandshake:
		if cfg.Session.ReadyTimeoutMS <= 0 {
			return nil, fmt.Errorf("session.ready_timeout_ms must be > 0")
		}
		if cfg.Transport.Kind == "ble" && strings.TrimSpace(cfg.BLE.ProgramPath) == "" {
			warnings = append(warnings, Warning{Message: "session.ready=handshake needs a hub program that writes RY; set ble.program_path or load the listener from `hubdrive hub-program`"})
		}
	case ReadyDelay:
		if cfg.Session.SettleMS < 0 {
			return nil, fmt.Errorf("session.settle_ms must be >= 0")
		}
	}
	if cfg.Session.WriteTimeoutMS <= 0 {
		return nil, fmt.Errorf("session.write_timeout_ms must be > 0")
	}
	if cfg.Session.TeardownTimeoutMS <= 0 {
		return nil, fmt.Errorf("session.teardown_timeout_ms must be > 0")
	}

	if cfg.Drive.SpeedPercent < 0 || cfg.Drive.SpeedPercent > 100 {
		return nil, fmt.Errorf("drive.speed_percent must be within 0..100")
	}
	if cfg.Drive.SteerAngle <= 0 || cfg.Drive.SteerAngle > 180 {
		return nil, fmt.Errorf("drive.steer_angle must be within 1..180")
	}
	if cfg.Drive.HoldMS <= 0 {
		return nil, fmt.Errorf("drive.hold_ms must be > 0")
	}
	if cfg.Drive.HoldMS < 100 {
		warnings = append(warnings, Warning{Message: "drive.hold_ms below 100 releases keys between terminal auto-repeats"})
	}

	if cfg.MQTT.Enable {
		if strings.TrimSpace(cfg.MQTT.Broker) == "" {
			return nil, fmt.Errorf("mqtt.broker must not be empty when mqtt.enable=true")
		}
		if strings.TrimSpace(cfg.MQTT.TopicPrefix) == "" {
			return nil, fmt.Errorf("mqtt.topic_prefix must not be empty when mqtt.enable=true")
		}
	}
	if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
		return nil, fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}

	if strings.TrimSpace(cfg.Sim.Name) == "" {
		return nil, fmt.Errorf("sim.name must not be empty")
	}
	if cfg.Sim.SteerSpeed <= 0 {
		return nil, fmt.Errorf("sim.steer_speed must be > 0")
	}
	if cfg.Sim.MaxSteerAngle <= 0 || cfg.Sim.MaxSteerAngle > 180 {
		return nil, fmt.Errorf("sim.max_steer_angle must be within 1..180")
	}
	if cfg.Sim.PollIntervalMS <= 0 || cfg.Sim.PollIntervalMS >= 10 {
		return nil, fmt.Errorf("sim.poll_interval_ms must be within 1..9")
	}
	if cfg.Sim.TelemetryIntervalMS <= 0 {
		return nil, fmt.Errorf("sim.telemetry_interval_ms must be > 0")
	}
	for _, port := range cfg.Sim.MissingPorts {
		if len(port) != 1 || port[0] < 'A' || port[0] > 'F' {
			return nil, fmt.Errorf("sim.missing_ports entry %q must be one of A..F", port)
		}
	}

	return warnings, nil
}
