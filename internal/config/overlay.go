package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// fileConfig is the on-disk shape shared by JSONC and TOML. Nil fields keep
// the base value.
type fileConfig struct {
	Transport *fileTransport `json:"transport" toml:"transport"`
	BLE       *fileBLE       `json:"ble" toml:"ble"`
	Bridge    *fileBridge    `json:"bridge" toml:"bridge"`
	Session   *fileSession   `json:"session" toml:"session"`
	Drive     *fileDrive     `json:"drive" toml:"drive"`
	Indicator *fileIndicator `json:"indicator" toml:"indicator"`
	MQTT      *fileMQTT      `json:"mqtt" toml:"mqtt"`
	Sim       *fileSim       `json:"sim" toml:"sim"`
}

type fileTransport struct {
	Kind               *string `json:"kind" toml:"kind"`
	Selector           *string `json:"selector" toml:"selector"`
	DiscoveryTimeoutMS *int    `json:"discovery_timeout_ms" toml:"discovery_timeout_ms"`
	ConnectTimeoutMS   *int    `json:"connect_timeout_ms" toml:"connect_timeout_ms"`
}

type fileBLE struct {
	ProgramPath *string `json:"program_path" toml:"program_path"`
}

type fileBridge struct {
	Address       *string `json:"address" toml:"address"`
	DialTimeoutMS *int    `json:"dial_timeout_ms" toml:"dial_timeout_ms"`
}

type fileSession struct {
	Ready             *string `json:"ready" toml:"ready"`
	SettleMS          *int    `json:"settle_ms" toml:"settle_ms"`
	ReadyTimeoutMS    *int    `json:"ready_timeout_ms" toml:"ready_timeout_ms"`
	WriteTimeoutMS    *int    `json:"write_timeout_ms" toml:"write_timeout_ms"`
	TeardownTimeoutMS *int    `json:"teardown_timeout_ms" toml:"teardown_timeout_ms"`
	Coalesce          *bool   `json:"coalesce" toml:"coalesce"`
}

type fileDrive struct {
	SpeedPercent *int `json:"speed_percent" toml:"speed_percent"`
	SteerAngle   *int `json:"steer_angle" toml:"steer_angle"`
	HoldMS       *int `json:"hold_ms" toml:"hold_ms"`
}

type fileIndicator struct {
	SoundEnable         *bool   `json:"sound_enable" toml:"sound_enable"`
	SoundReadyFile      *string `json:"sound_ready_file" toml:"sound_ready_file"`
	SoundDisconnectFile *string `json:"sound_disconnect_file" toml:"sound_disconnect_file"`
	SoundErrorFile      *string `json:"sound_error_file" toml:"sound_error_file"`
}

type fileMQTT struct {
	Enable      *bool   `json:"enable" toml:"enable"`
	Broker      *string `json:"broker" toml:"broker"`
	ClientID    *string `json:"client_id" toml:"client_id"`
	TopicPrefix *string `json:"topic_prefix" toml:"topic_prefix"`
	QoS         *int    `json:"qos" toml:"qos"`
}

type fileSim struct {
	Listen              *string     `json:"listen" toml:"listen"`
	Name                *string     `json:"name" toml:"name"`
	SteerSpeed          *int        `json:"steer_speed" toml:"steer_speed"`
	MaxSteerAngle       *int        `json:"max_steer_angle" toml:"max_steer_angle"`
	PollIntervalMS      *int        `json:"poll_interval_ms" toml:"poll_interval_ms"`
	MissingPorts        *stringList `json:"missing_ports" toml:"missing_ports"`
	TelemetryIntervalMS *int        `json:"telemetry_interval_ms" toml:"telemetry_interval_ms"`
}

// stringList accepts an array of strings or one comma-delimited string.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = trimList(list)
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = trimList(strings.Split(single, ","))
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func (l *stringList) UnmarshalTOML(data any) error {
	switch v := data.(type) {
	case string:
		*l = trimList(strings.Split(v, ","))
		return nil
	case []any:
		list := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("expected string array or comma-delimited string")
			}
			list = append(list, s)
		}
		*l = trimList(list)
		return nil
	default:
		return fmt.Errorf("expected string array or comma-delimited string")
	}
}

func trimList(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// finish overlays payload on base and validates the result.
func finish(payload fileConfig, base Config) (Config, []Warning, error) {
	cfg := base
	warnings := payload.applyTo(&cfg)

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func (payload fileConfig) applyTo(cfg *Config) []Warning {
	warnings := make([]Warning, 0)

	if t := payload.Transport; t != nil {
		setString(&cfg.Transport.Kind, t.Kind)
		setString(&cfg.Transport.Selector, t.Selector)
		setInt(&cfg.Transport.DiscoveryTimeoutMS, t.DiscoveryTimeoutMS)
		setInt(&cfg.Transport.ConnectTimeoutMS, t.ConnectTimeoutMS)
		cfg.Transport.Kind = strings.ToLower(cfg.Transport.Kind)
	}

	if b := payload.BLE; b != nil {
		setString(&cfg.BLE.ProgramPath, b.ProgramPath)
	}

	if b := payload.Bridge; b != nil {
		setString(&cfg.Bridge.Address, b.Address)
		setInt(&cfg.Bridge.DialTimeoutMS, b.DialTimeoutMS)
	}

	if s := payload.Session; s != nil {
		setString(&cfg.Session.Ready, s.Ready)
		cfg.Session.Ready = strings.ToLower(cfg.Session.Ready)
		setInt(&cfg.Session.SettleMS, s.SettleMS)
		setInt(&cfg.Session.ReadyTimeoutMS, s.ReadyTimeoutMS)
		setInt(&cfg.Session.WriteTimeoutMS, s.WriteTimeoutMS)
		setInt(&cfg.Session.TeardownTimeoutMS, s.TeardownTimeoutMS)
		setBool(&cfg.Session.Coalesce, s.Coalesce)
	}

	if d := payload.Drive; d != nil {
		setInt(&cfg.Drive.SpeedPercent, d.SpeedPercent)
		setInt(&cfg.Drive.SteerAngle, d.SteerAngle)
		setInt(&cfg.Drive.HoldMS, d.HoldMS)
	}

	if i := payload.Indicator; i != nil {
		setBool(&cfg.Indicator.SoundEnable, i.SoundEnable)
		setString(&cfg.Indicator.SoundReadyFile, i.SoundReadyFile)
		setString(&cfg.Indicator.SoundDisconnectFile, i.SoundDisconnectFile)
		setString(&cfg.Indicator.SoundErrorFile, i.SoundErrorFile)
	}

	if m := payload.MQTT; m != nil {
		setBool(&cfg.MQTT.Enable, m.Enable)
		setString(&cfg.MQTT.Broker, m.Broker)
		setString(&cfg.MQTT.ClientID, m.ClientID)
		setString(&cfg.MQTT.TopicPrefix, m.TopicPrefix)
		setInt(&cfg.MQTT.QoS, m.QoS)
		if m.TopicPrefix != nil && strings.HasSuffix(cfg.MQTT.TopicPrefix, "/") {
			cfg.MQTT.TopicPrefix = strings.TrimRight(cfg.MQTT.TopicPrefix, "/")
			warnings = append(warnings, Warning{Message: "mqtt.topic_prefix trailing '/' removed"})
		}
	}

	if s := payload.Sim; s != nil {
		setString(&cfg.Sim.Listen, s.Listen)
		setString(&cfg.Sim.Name, s.Name)
		setInt(&cfg.Sim.SteerSpeed, s.SteerSpeed)
		setInt(&cfg.Sim.MaxSteerAngle, s.MaxSteerAngle)
		setInt(&cfg.Sim.PollIntervalMS, s.PollIntervalMS)
		setInt(&cfg.Sim.TelemetryIntervalMS, s.TelemetryIntervalMS)
		if s.MissingPorts != nil {
			cfg.Sim.MissingPorts = make([]string, 0, len(*s.MissingPorts))
			for _, port := range *s.MissingPorts {
				cfg.Sim.MissingPorts = append(cfg.Sim.MissingPorts, strings.ToUpper(port))
			}
		}
	}

	return warnings
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
