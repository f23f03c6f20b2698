package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/rbright/hubdrive/internal/config"
	"github.com/rbright/hubdrive/internal/hubsim"
	"github.com/rbright/hubdrive/internal/mqttbridge"
	"github.com/rbright/hubdrive/internal/transport/grpcbridge"
)

// commandSim serves a simulated hub behind the bridge server until ctx ends.
func (r Runner) commandSim(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	hub := newSimHub(cfg.Sim)
	monitor := hubsim.NewMonitor(hub)
	program := hub.Program(logger, hubsim.ProgramOptions{
		Interpreter: interpreterOptions(cfg.Sim),
		OnStart:     monitor.Attach,
	})

	lis, err := net.Listen("tcp", cfg.Sim.Listen)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: listen %s: %v\n", cfg.Sim.Listen, err)
		return 1
	}

	if cfg.MQTT.Enable {
		client, err := mqttbridge.Dial(ctx, logger, mqttbridge.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID + "-sim",
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         byte(cfg.MQTT.QoS),
		})
		if err != nil {
			_ = lis.Close()
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		defer client.Disconnect(250)
		pub := hubsim.NewPublisher(client, cfg.MQTT.TopicPrefix+"/telemetry", byte(cfg.MQTT.QoS))
		go hubsim.Stream(ctx, logger, monitor, pub, ms(cfg.Sim.TelemetryIntervalMS))
	}

	fmt.Fprintf(r.Stdout, "simulated hub %q listening on %s\n", cfg.Sim.Name, lis.Addr())
	logger.Info("sim serving", "name", cfg.Sim.Name, "listen", lis.Addr().String(), "missing_ports", cfg.Sim.MissingPorts)

	server := grpcbridge.NewServer(logger, cfg.Sim.Name, program)
	if err := server.Serve(ctx, lis); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
