package hubsim

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/rbright/hubdrive/internal/interpreter"
)

// Telemetry is one snapshot of the simulated hub.
type Telemetry struct {
	Name      string                       `json:"name"`
	Phase     interpreter.Phase            `json:"phase"`
	State     interpreter.ActuatorState    `json:"state"`
	Motors    map[interpreter.Port]int     `json:"motors"`
	Steering  map[interpreter.Port]float64 `json:"steering"`
	Light     interpreter.Color            `json:"light"`
	Degraded  []string                     `json:"degraded,omitempty"`
	Timestamp float64                      `json:"timestamp"`
	Source    string                       `json:"source"`
}

// Monitor tracks the interpreter currently attached to a hub.
type Monitor struct {
	hub *Hub

	mu     sync.RWMutex
	interp *interpreter.Interpreter
}

func NewMonitor(hub *Hub) *Monitor {
	return &Monitor{hub: hub}
}

// Attach records interp as the running program. It matches
// ProgramOptions.OnStart.
func (m *Monitor) Attach(interp *interpreter.Interpreter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interp = interp
}

// Snapshot captures hub and interpreter state.
func (m *Monitor) Snapshot(now time.Time) Telemetry {
	t := Telemetry{
		Name:      m.hub.Name(),
		Phase:     interpreter.PhaseInitializing,
		Motors:    m.hub.MotorSpeeds(),
		Steering:  m.hub.SteeringAngles(),
		Light:     m.hub.StatusLight().Color(),
		Timestamp: float64(now.UnixNano()) / float64(time.Second),
		Source:    "hubsim",
	}

	m.mu.RLock()
	interp := m.interp
	m.mu.RUnlock()
	if interp != nil {
		t.Phase = interp.Phase()
		t.State = interp.State()
		for _, d := range interp.Degraded() {
			t.Degraded = append(t.Degraded, d.String())
		}
	}
	return t
}

// Publisher sends telemetry snapshots to an MQTT topic.
type Publisher struct {
	client  mqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
}

func NewPublisher(client mqtt.Client, topic string, qos byte) *Publisher {
	return &Publisher{client: client, topic: topic, qos: qos, timeout: 2 * time.Second}
}

// Publish sends one snapshot and waits for the broker acknowledgement.
func (p *Publisher) Publish(t Telemetry) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode telemetry: %w", err)
	}
	token := p.client.Publish(p.topic, p.qos, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish %s: timed out after %s", p.topic, p.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", p.topic, err)
	}
	return nil
}

// Stream publishes a snapshot every interval until ctx ends. Publish
// failures are logged and retried on the next interval.
func Stream(ctx context.Context, logger *slog.Logger, monitor *Monitor, pub *Publisher, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := pub.Publish(monitor.Snapshot(now)); err != nil {
				logger.Warn("telemetry publish failed", "error", err)
			}
		}
	}
}
