package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Transport: TransportConfig{
			Kind:               "ble",
			Selector:           "SP-7",
			DiscoveryTimeoutMS: 10000,
			ConnectTimeoutMS:   3000,
		},
		Bridge: BridgeConfig{
			Address:       "127.0.0.1:50061",
			DialTimeoutMS: 3000,
		},
		Session: SessionConfig{
			Ready:             ReadyAuto,
			SettleMS:          2000,
			ReadyTimeoutMS:    5000,
			WriteTimeoutMS:    2000,
			TeardownTimeoutMS: 2000,
			Coalesce:          true,
		},
		Drive: DriveConfig{
			SpeedPercent: 50,
			SteerAngle:   100,
			HoldMS:       600,
		},
		Indicator: IndicatorConfig{SoundEnable: true},
		MQTT: MQTTConfig{
			Broker:      "tcp://127.0.0.1:1883",
			ClientID:    "hubdrive",
			TopicPrefix: "hubdrive",
			QoS:         1,
		},
		Sim: SimConfig{
			Listen:              "127.0.0.1:50061",
			Name:                "SP-7",
			SteerSpeed:          300,
			MaxSteerAngle:       100,
			PollIntervalMS:      5,
			TelemetryIntervalMS: 250,
		},
	}
}
