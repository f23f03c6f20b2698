// Package ble connects to a Pybricks hub over Bluetooth Low Energy.
package ble

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/rbright/hubdrive/internal/transport"
)

const (
	DefaultDiscoveryTimeout = 10 * time.Second
	DefaultConnectTimeout   = 3 * time.Second
)

var (
	serviceUUID      = mustUUID(ServiceUUID)
	commandEventUUID = mustUUID(CommandEventUUID)
	capabilitiesUUID = mustUUID(CapabilitiesUUID)
)

func mustUUID(s string) bluetooth.UUID {
	u, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic(fmt.Sprintf("invalid uuid %q: %v", s, err))
	}
	return u
}

// Options configures discovery and program start.
type Options struct {
	DiscoveryTimeout time.Duration
	ConnectTimeout   time.Duration
	// ProgramPath, when set, is downloaded to the hub before starting it.
	ProgramPath string
}

// Transport discovers hubs by advertised name.
type Transport struct {
	logger  *slog.Logger
	adapter *bluetooth.Adapter
	opts    Options

	enableOnce sync.Once
	enableErr  error
}

var _ transport.Transport = (*Transport)(nil)

func New(logger *slog.Logger, opts Options) *Transport {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if opts.DiscoveryTimeout <= 0 {
		opts.DiscoveryTimeout = DefaultDiscoveryTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	return &Transport{logger: logger, adapter: bluetooth.DefaultAdapter, opts: opts}
}

// Enable powers up the host adapter once.
func (t *Transport) Enable() error {
	t.enableOnce.Do(func() {
		if err := t.adapter.Enable(); err != nil {
			t.enableErr = fmt.Errorf("enable bluetooth adapter: %w", err)
		}
	})
	return t.enableErr
}

// Advertisement is one named device seen during a scan.
type Advertisement struct {
	Name    string
	Address string
	RSSI    int16
}

// Scan reports named advertisements until ctx ends or timeout elapses.
func (t *Transport) Scan(ctx context.Context, timeout time.Duration, fn func(Advertisement)) error {
	if err := t.Enable(); err != nil {
		return err
	}
	_, err := t.scan(ctx, timeout, func(result bluetooth.ScanResult) bool {
		if name := result.LocalName(); name != "" {
			fn(Advertisement{Name: name, Address: result.Address.String(), RSSI: result.RSSI})
		}
		return false
	})
	if errors.Is(err, errScanTimeout) {
		return nil
	}
	return err
}

var errScanTimeout = errors.New("scan timed out")

// scan runs until match returns true, ctx ends or timeout elapses.
func (t *Transport) scan(ctx context.Context, timeout time.Duration, match func(bluetooth.ScanResult) bool) (bluetooth.ScanResult, error) {
	found := make(chan bluetooth.ScanResult, 1)
	scanErr := make(chan error, 1)
	go func() {
		scanErr <- t.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if match(result) {
				select {
				case found <- result:
				default:
				}
				_ = adapter.StopScan()
			}
		})
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	stop := func() {
		_ = t.adapter.StopScan()
		<-scanErr
	}

	select {
	case result := <-found:
		<-scanErr
		return result, nil
	case err := <-scanErr:
		if err == nil {
			err = errors.New("scan ended unexpectedly")
		}
		return bluetooth.ScanResult{}, fmt.Errorf("scan: %w", err)
	case <-ctx.Done():
		stop()
		return bluetooth.ScanResult{}, ctx.Err()
	case <-timer.C:
		stop()
		return bluetooth.ScanResult{}, errScanTimeout
	}
}

// Connect scans for a hub matching sel, connects and enables events.
func (t *Transport) Connect(ctx context.Context, sel transport.Selector) (transport.Session, error) {
	if err := t.Enable(); err != nil {
		return nil, fmt.Errorf("%w: %w", transport.ErrConnect, err)
	}

	t.logger.Info("scanning for hub", "selector", sel.String(), "timeout", t.opts.DiscoveryTimeout)
	result, err := t.scan(ctx, t.opts.DiscoveryTimeout, func(r bluetooth.ScanResult) bool {
		return sel.Match(r.LocalName())
	})
	switch {
	case errors.Is(err, errScanTimeout):
		return nil, fmt.Errorf("%w: no hub named %q within %s", transport.ErrNotFound, sel, t.opts.DiscoveryTimeout)
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil:
		return nil, fmt.Errorf("%w: %w", transport.ErrNotFound, err)
	}

	name := result.LocalName()
	t.logger.Info("hub found", "name", name, "address", result.Address.String(), "rssi", result.RSSI)

	device, err := t.adapter.Connect(result.Address, bluetooth.ConnectionParams{
		ConnectionTimeout: bluetooth.NewDuration(t.opts.ConnectTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", transport.ErrConnect, name, err)
	}

	sess, err := t.open(device)
	if err != nil {
		_ = device.Disconnect()
		return nil, fmt.Errorf("%w: %s: %w", transport.ErrConnect, name, err)
	}
	if err := ctx.Err(); err != nil {
		_ = sess.Disconnect()
		return nil, err
	}
	return sess, nil
}

func (t *Transport) open(device bluetooth.Device) (*session, error) {
	services, err := device.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil {
		return nil, fmt.Errorf("discover pybricks service: %w", err)
	}
	if len(services) == 0 {
		return nil, errors.New("pybricks service not found")
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{commandEventUUID, capabilitiesUUID})
	if err != nil {
		return nil, fmt.Errorf("discover pybricks characteristics: %w", err)
	}

	var commandEvent, capabilities *bluetooth.DeviceCharacteristic
	for i := range chars {
		switch chars[i].UUID() {
		case commandEventUUID:
			commandEvent = &chars[i]
		case capabilitiesUUID:
			capabilities = &chars[i]
		}
	}
	if commandEvent == nil {
		return nil, errors.New("pybricks command characteristic not found")
	}

	caps := Capabilities{MaxWriteSize: DefaultMaxWriteSize}
	if capabilities != nil {
		buf := make([]byte, 32)
		n, err := capabilities.Read(buf)
		if err == nil {
			if parsed, parseErr := ParseCapabilities(buf[:n]); parseErr == nil {
				caps = parsed
			}
		} else {
			t.logger.Debug("read hub capabilities failed", "error", err)
		}
	}
	t.logger.Debug("hub capabilities", "max_write", caps.MaxWriteSize, "max_program", caps.MaxProgramSize)

	sess := newSession(t.logger, commandEvent, caps, t.opts.ProgramPath, device.Disconnect)
	if err := commandEvent.EnableNotifications(sess.onEvent); err != nil {
		return nil, fmt.Errorf("enable notifications: %w", err)
	}
	return sess, nil
}
