package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateDefaults(t *testing.T) {
	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestValidateRejectsInvalidCoreFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "unknown transport", mutate: func(c *Config) { c.Transport.Kind = "usb" }, wantErr: "transport.kind"},
		{name: "empty selector", mutate: func(c *Config) { c.Transport.Selector = " " }, wantErr: "transport.selector"},
		{name: "zero discovery timeout", mutate: func(c *Config) { c.Transport.DiscoveryTimeoutMS = 0 }, wantErr: "discovery_timeout_ms"},
		{name: "grpc without address", mutate: func(c *Config) {
			c.Transport.Kind = "grpc"
			c.Bridge.Address = ""
		}, wantErr: "bridge.address"},
		{name: "unknown ready mode", mutate: func(c *Config) { c.Session.Ready = "never" }, wantErr: "session.ready"},
		{name: "zero ready timeout", mutate: func(c *Config) {
			c.Session.Ready = ReadyHandshake
			c.Session.ReadyTimeoutMS = 0
		}, wantErr: "ready_timeout_ms"},
		{name: "zero ready timeout when auto resolves to handshake", mutate: func(c *Config) {
			c.Transport.Kind = "grpc"
			c.Session.ReadyTimeoutMS = 0
		}, wantErr: "ready_timeout_ms"},
		{name: "negative settle in delay mode", mutate: func(c *Config) {
			c.Session.Ready = "delay"
			c.Session.SettleMS = -1
		}, wantErr: "settle_ms"},
		{name: "speed above 100", mutate: func(c *Config) { c.Drive.SpeedPercent = 101 }, wantErr: "drive.speed_percent"},
		{name: "zero steer angle", mutate: func(c *Config) { c.Drive.SteerAngle = 0 }, wantErr: "drive.steer_angle"},
		{name: "mqtt without broker", mutate: func(c *Config) {
			c.MQTT.Enable = true
			c.MQTT.Broker = ""
		}, wantErr: "mqtt.broker"},
		{name: "bad qos", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: "mqtt.qos"},
		{name: "slow poll", mutate: func(c *Config) { c.Sim.PollIntervalMS = 10 }, wantErr: "poll_interval_ms"},
		{name: "bad port", mutate: func(c *Config) { c.Sim.MissingPorts = []string{"G"} }, wantErr: "missing_ports"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := Default()
	cfg.Transport.Kind = "loopback"
	cfg.BLE.ProgramPath = "/tmp/drive.mpy"
	cfg.Drive.HoldMS = 50

	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 2)
	require.Contains(t, warnings[0].Message, "program_path")
	require.Contains(t, warnings[1].Message, "hold_ms")
}

func TestReadyModeResolution(t *testing.T) {
	cfg := Default()
	require.Equal(t, ReadyAuto, cfg.Session.Ready)
	require.Equal(t, ReadyDelay, cfg.ReadyMode(), "stored ble program may not write RY")

	cfg.BLE.ProgramPath = "/tmp/listener.mpy"
	require.Equal(t, ReadyHandshake, cfg.ReadyMode())

	cfg.BLE.ProgramPath = ""
	for _, kind := range []string{"grpc", "loopback"} {
		cfg.Transport.Kind = kind
		require.Equal(t, ReadyHandshake, cfg.ReadyMode(), kind)
	}

	cfg.Session.Ready = ReadyDelay
	require.Equal(t, ReadyDelay, cfg.ReadyMode())
}

func TestValidateWarnsHandshakeWithStoredBLEProgram(t *testing.T) {
	cfg := Default()
	cfg.Session.Ready = ReadyHandshake

	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "hub-program")

	cfg.BLE.ProgramPath = "/tmp/listener.mpy"
	warnings, err = Validate(cfg)
	require.NoError(t, err)
	require.Empty(t, warnings)
}
