// Package mqttbridge feeds drive frames published over MQTT into the worker
// and mirrors connection state back to the broker.
package mqttbridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/rbright/hubdrive/internal/fsm"
	"github.com/rbright/hubdrive/internal/protocol"
	"github.com/rbright/hubdrive/internal/worker"
)

const DefaultTopicPrefix = "hubdrive"

// Options configures the broker connection.
type Options struct {
	Broker         string
	ClientID       string
	TopicPrefix    string
	QoS            byte
	ConnectTimeout time.Duration
}

// Dial connects to the broker once; paho reconnects on later losses.
func Dial(ctx context.Context, logger *slog.Logger, opts Options) (mqtt.Client, error) {
	if strings.TrimSpace(opts.Broker) == "" {
		return nil, errors.New("mqtt broker is not configured")
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(opts.Broker)
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetConnectTimeout(timeout)
	clientOpts.OnConnect = func(mqtt.Client) {
		logger.Info("mqtt connected", "broker", opts.Broker)
	}
	clientOpts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "broker", opts.Broker, "error", err)
	}

	client := mqtt.NewClient(clientOpts)
	token := client.Connect()
	select {
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	case <-token.Done():
	case <-time.After(timeout):
		client.Disconnect(0)
		return nil, fmt.Errorf("connect mqtt %s: timed out after %s", opts.Broker, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect mqtt %s: %w", opts.Broker, err)
	}
	return client, nil
}

// Submitter accepts drive commands; *worker.Worker satisfies it.
type Submitter interface {
	Submit(protocol.Command) bool
}

// SubmitFunc adapts a function to Submitter.
type SubmitFunc func(protocol.Command) bool

func (f SubmitFunc) Submit(cmd protocol.Command) bool {
	return f(cmd)
}

// Bridge subscribes to <prefix>/cmd and publishes retained <prefix>/state.
// It is a worker.Observer.
type Bridge struct {
	worker.NopObserver

	logger  *slog.Logger
	client  mqtt.Client
	target  Submitter
	prefix  string
	qos     byte
	timeout time.Duration
}

func New(logger *slog.Logger, client mqtt.Client, target Submitter, prefix string, qos byte) *Bridge {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &Bridge{
		logger:  logger,
		client:  client,
		target:  target,
		prefix:  prefix,
		qos:     qos,
		timeout: 2 * time.Second,
	}
}

func (b *Bridge) CommandTopic() string {
	return b.prefix + "/cmd"
}

func (b *Bridge) StateTopic() string {
	return b.prefix + "/state"
}

// Start subscribes to the command topic.
func (b *Bridge) Start() error {
	token := b.client.Subscribe(b.CommandTopic(), b.qos, b.onMessage)
	if !token.WaitTimeout(b.timeout) {
		return fmt.Errorf("subscribe %s: timed out", b.CommandTopic())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.CommandTopic(), err)
	}
	b.logger.Info("mqtt bridge subscribed", "topic", b.CommandTopic())
	return nil
}

// Close unsubscribes; the client itself is owned by the caller.
func (b *Bridge) Close() {
	token := b.client.Unsubscribe(b.CommandTopic())
	_ = token.WaitTimeout(b.timeout)
}

func (b *Bridge) onMessage(_ mqtt.Client, msg mqtt.Message) {
	commands, errs := DecodeFrames(msg.Payload())
	for _, err := range errs {
		b.logger.Debug("mqtt frame discarded", "topic", msg.Topic(), "error", err)
	}
	for _, cmd := range commands {
		if !b.target.Submit(cmd) {
			b.logger.Debug("mqtt command not accepted", "command", cmd.String())
		}
	}
}

// StateChanged publishes the new connection state, retained.
func (b *Bridge) StateChanged(_ context.Context, state fsm.State) {
	token := b.client.Publish(b.StateTopic(), b.qos, true, []byte(state))
	// Observers must not block the worker; completion is only logged.
	go func() {
		if !token.WaitTimeout(b.timeout) {
			b.logger.Warn("mqtt state publish timed out", "state", state)
			return
		}
		if err := token.Error(); err != nil {
			b.logger.Warn("mqtt state publish failed", "state", state, "error", err)
		}
	}()
}

// DecodeFrames splits a payload such as "F500;Z;" into commands. A final
// frame without terminator is accepted.
func DecodeFrames(payload []byte) ([]protocol.Command, []error) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return nil, nil
	}
	if !strings.HasSuffix(text, string(protocol.Terminator)) {
		text += string(protocol.Terminator)
	}

	var framer protocol.Framer
	var commands []protocol.Command
	var errs []error
	for _, frame := range framer.Split([]byte(text)) {
		cmd, err := protocol.Decode(frame)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		commands = append(commands, cmd)
	}
	return commands, errs
}
