// Package doctor runs readiness diagnostics for config, transport, MQTT, and audio.
package doctor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rbright/hubdrive/internal/config"
	"github.com/rbright/hubdrive/internal/indicator"
	"github.com/rbright/hubdrive/internal/mqttbridge"
	"github.com/rbright/hubdrive/internal/transport/ble"
	"github.com/rbright/hubdrive/internal/transport/grpcbridge"
)

const probeTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{}

	configMessage := fmt.Sprintf("loaded %q (%s)", cfg.Path, cfg.Format)
	if !cfg.Exists {
		configMessage = fmt.Sprintf("no file at %q; using defaults", cfg.Path)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: configMessage})

	checks = append(checks, checkEnv("XDG_RUNTIME_DIR", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "runtime dir available for the control socket", "XDG_RUNTIME_DIR is empty"))

	switch cfg.Config.Transport.Kind {
	case "ble":
		checks = append(checks, checkBLEAdapter())
		if path := strings.TrimSpace(cfg.Config.BLE.ProgramPath); path != "" {
			checks = append(checks, checkProgramFile(path))
		}
	case "grpc":
		checks = append(checks, checkBridge(ctx, cfg.Config.Bridge))
	default:
		checks = append(checks, Check{Name: "transport", Pass: true, Message: "loopback runs in-process"})
	}

	checks = append(checks, checkReady(cfg.Config))

	if cfg.Config.MQTT.Enable {
		checks = append(checks, checkMQTT(ctx, cfg.Config.MQTT))
	}
	if cfg.Config.Indicator.SoundEnable {
		checks = append(checks, checkPulse())
	}

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkBLEAdapter powers up the default host adapter.
func checkBLEAdapter() Check {
	if err := ble.New(nil, ble.Options{}).Enable(); err != nil {
		return Check{Name: "ble.adapter", Pass: false, Message: err.Error()}
	}
	return Check{Name: "ble.adapter", Pass: true, Message: "adapter enabled"}
}

// checkProgramFile validates the hub program that is downloaded on connect.
func checkProgramFile(path string) Check {
	info, err := os.Stat(path)
	if err != nil {
		return Check{Name: "ble.program_path", Pass: false, Message: err.Error()}
	}
	if info.IsDir() || info.Size() == 0 {
		return Check{Name: "ble.program_path", Pass: false, Message: fmt.Sprintf("%s is not a program file", path)}
	}
	return Check{Name: "ble.program_path", Pass: true, Message: fmt.Sprintf("%s (%d bytes)", path, info.Size())}
}

// checkReady reports how the session decides the hub program is alive.
func checkReady(cfg config.Config) Check {
	mode := cfg.ReadyMode()
	storedBLE := cfg.Transport.Kind == "ble" && strings.TrimSpace(cfg.BLE.ProgramPath) == ""
	switch {
	case mode == config.ReadyDelay && storedBLE:
		return Check{Name: "session.ready", Pass: true, Message: fmt.Sprintf(
			"delay %dms after starting the stored hub program; set ble.program_path to a compiled `hubdrive hub-program` for handshake",
			cfg.Session.SettleMS)}
	case mode == config.ReadyDelay:
		return Check{Name: "session.ready", Pass: true, Message: fmt.Sprintf("delay %dms", cfg.Session.SettleMS)}
	case storedBLE:
		return Check{Name: "session.ready", Pass: true, Message: fmt.Sprintf(
			"handshake within %dms; the stored hub program must write RY (see `hubdrive hub-program`)",
			cfg.Session.ReadyTimeoutMS)}
	default:
		return Check{Name: "session.ready", Pass: true, Message: fmt.Sprintf("handshake within %dms", cfg.Session.ReadyTimeoutMS)}
	}
}

// checkBridge waits for the bridge server to accept a connection.
func checkBridge(ctx context.Context, cfg config.BridgeConfig) Check {
	timeout := time.Duration(cfg.DialTimeoutMS) * time.Millisecond
	if err := grpcbridge.Probe(ctx, cfg.Address, timeout); err != nil {
		return Check{Name: "bridge", Pass: false, Message: err.Error()}
	}
	return Check{Name: "bridge", Pass: true, Message: fmt.Sprintf("ready at %s", cfg.Address)}
}

// checkMQTT connects to the broker once.
func checkMQTT(ctx context.Context, cfg config.MQTTConfig) Check {
	client, err := mqttbridge.Dial(ctx, nil, mqttbridge.Options{
		Broker:         cfg.Broker,
		ClientID:       cfg.ClientID + "-doctor",
		TopicPrefix:    cfg.TopicPrefix,
		QoS:            byte(cfg.QoS),
		ConnectTimeout: probeTimeout,
	})
	if err != nil {
		return Check{Name: "mqtt", Pass: false, Message: err.Error()}
	}
	client.Disconnect(100)
	return Check{Name: "mqtt", Pass: true, Message: fmt.Sprintf("connected to %s", cfg.Broker)}
}

// checkPulse connects to the pulse server used for cues.
func checkPulse() Check {
	client, err := indicator.NewPulseClient()
	if err != nil {
		return Check{Name: "audio.pulse", Pass: false, Message: err.Error()}
	}
	client.Close()
	return Check{Name: "audio.pulse", Pass: true, Message: "pulse server reachable"}
}
