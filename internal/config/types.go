// Package config resolves, parses, validates, and defaults hubdrive configuration.
package config

import "strings"

// Config is the fully materialized runtime configuration used by hubdrive.
type Config struct {
	Transport TransportConfig
	BLE       BLEConfig
	Bridge    BridgeConfig
	Session   SessionConfig
	Drive     DriveConfig
	Indicator IndicatorConfig
	MQTT      MQTTConfig
	Sim       SimConfig
}

// TransportConfig selects how the host reaches a hub.
type TransportConfig struct {
	// Kind is one of ble, grpc, loopback.
	Kind               string
	Selector           string
	DiscoveryTimeoutMS int
	ConnectTimeoutMS   int
}

// BLEConfig controls the Pybricks BLE transport.
type BLEConfig struct {
	// ProgramPath is a compiled hub program downloaded before start. Empty
	// starts the program already stored on the hub.
	ProgramPath string
}

// BridgeConfig points the grpc transport at a bridge server.
type BridgeConfig struct {
	Address       string
	DialTimeoutMS int
}

// SessionConfig controls readiness, timeouts and queue policy.
type SessionConfig struct {
	// Ready is auto, handshake or delay. See Config.ReadyMode.
	Ready             string
	SettleMS          int
	ReadyTimeoutMS    int
	WriteTimeoutMS    int
	TeardownTimeoutMS int
	Coalesce          bool
}

// DriveConfig holds front-end defaults.
type DriveConfig struct {
	SpeedPercent int
	SteerAngle   int
	// HoldMS is how long a key counts as held after its last repeat.
	HoldMS int
}

// IndicatorConfig controls audio cues.
type IndicatorConfig struct {
	SoundEnable         bool
	SoundReadyFile      string
	SoundDisconnectFile string
	SoundErrorFile      string
}

// MQTTConfig controls the optional broker bridge.
type MQTTConfig struct {
	Enable      bool
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         int
}

// SimConfig controls the simulated hub served by `hubdrive sim`.
type SimConfig struct {
	Listen              string
	Name                string
	SteerSpeed          int
	MaxSteerAngle       int
	PollIntervalMS      int
	MissingPorts        []string
	TelemetryIntervalMS int
}

const (
	ReadyAuto      = "auto"
	ReadyHandshake = "handshake"
	ReadyDelay     = "delay"
)

// ReadyMode resolves session.ready. Auto waits for the ready marker, except
// over BLE without ble.program_path: the program stored on the hub may not
// write the marker, so the settle delay is used instead.
func (c Config) ReadyMode() string {
	if c.Session.Ready != ReadyAuto {
		return c.Session.Ready
	}
	if c.Transport.Kind == "ble" && strings.TrimSpace(c.BLE.ProgramPath) == "" {
		return ReadyDelay
	}
	return ReadyHandshake
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
