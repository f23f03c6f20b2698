package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/rbright/hubdrive/internal/config"
	"github.com/rbright/hubdrive/internal/hubsim"
	"github.com/rbright/hubdrive/internal/interpreter"
	"github.com/rbright/hubdrive/internal/transport"
	"github.com/rbright/hubdrive/internal/transport/ble"
	"github.com/rbright/hubdrive/internal/transport/grpcbridge"
	"github.com/rbright/hubdrive/internal/transport/loopback"
	"github.com/rbright/hubdrive/internal/worker"
)

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// buildTransport selects the transport named by transport.kind.
func buildTransport(cfg config.Config, logger *slog.Logger) (transport.Transport, error) {
	switch cfg.Transport.Kind {
	case "ble":
		return ble.New(logger, ble.Options{
			DiscoveryTimeout: ms(cfg.Transport.DiscoveryTimeoutMS),
			ConnectTimeout:   ms(cfg.Transport.ConnectTimeoutMS),
			ProgramPath:      cfg.BLE.ProgramPath,
		}), nil
	case "grpc":
		return grpcbridge.NewClient(logger, cfg.Bridge.Address, ms(cfg.Bridge.DialTimeoutMS)), nil
	case "loopback":
		network := loopback.NewNetwork(logger)
		hub := newSimHub(cfg.Sim)
		network.Add(loopback.Endpoint{
			Name:    cfg.Sim.Name,
			Program: hub.Program(logger, hubsim.ProgramOptions{Interpreter: interpreterOptions(cfg.Sim)}),
		})
		return network, nil
	default:
		return nil, fmt.Errorf("unsupported transport kind %q", cfg.Transport.Kind)
	}
}

func workerOptions(cfg config.Config, sel transport.Selector) worker.Options {
	opts := worker.DefaultOptions()
	opts.Selector = sel
	opts.Ready = worker.ReadyMode(cfg.ReadyMode())
	opts.ReadyTimeout = ms(cfg.Session.ReadyTimeoutMS)
	opts.SettleDelay = ms(cfg.Session.SettleMS)
	opts.WriteTimeout = ms(cfg.Session.WriteTimeoutMS)
	opts.TeardownTimeout = ms(cfg.Session.TeardownTimeoutMS)
	opts.Coalesce = cfg.Session.Coalesce
	opts.SpeedPercent = cfg.Drive.SpeedPercent
	opts.SteerAngle = cfg.Drive.SteerAngle
	return opts
}

func newSimHub(cfg config.SimConfig) *hubsim.Hub {
	missing := make([]interpreter.Port, 0, len(cfg.MissingPorts))
	for _, port := range cfg.MissingPorts {
		missing = append(missing, interpreter.Port(port))
	}
	return hubsim.NewHub(hubsim.Options{Name: cfg.Name, MissingPorts: missing})
}

func interpreterOptions(cfg config.SimConfig) interpreter.Options {
	return interpreter.Options{
		Ports:         interpreter.DefaultPorts(),
		SteerSpeed:    cfg.SteerSpeed,
		MaxSteerAngle: cfg.MaxSteerAngle,
		PollInterval:  ms(cfg.PollIntervalMS),
	}
}
