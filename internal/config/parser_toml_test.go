package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTOMLConfig(t *testing.T) {
	input := `
# bench setup
[transport]
kind = "loopback"
selector = "sim-*"

[session]
ready = "handshake"
ready_timeout_ms = 800

[sim]
missing_ports = ["b"]
poll_interval_ms = 4
`

	cfg, warnings, err := Parse(input, Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, "loopback", cfg.Transport.Kind)
	require.Equal(t, "sim-*", cfg.Transport.Selector)
	require.Equal(t, 800, cfg.Session.ReadyTimeoutMS)
	require.Equal(t, []string{"B"}, cfg.Sim.MissingPorts)
	require.Equal(t, 4, cfg.Sim.PollIntervalMS)
	require.Equal(t, Default().Drive, cfg.Drive)
}

func TestParseTOMLUnknownKeyFails(t *testing.T) {
	_, _, err := Parse("[drive]\nturbo = true\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "drive.turbo")
}

func TestParseTOMLSyntaxErrorIncludesLine(t *testing.T) {
	_, _, err := Parse("[drive]\nhold_ms = = 3\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 2")
}

func TestParseTOMLCommaStringList(t *testing.T) {
	cfg, _, err := Parse("[sim]\nmissing_ports = \"a, d\"\n", Default())
	require.NoError(t, err)
	require.Equal(t, []string{"A", "D"}, cfg.Sim.MissingPorts)
}

func TestParseEmptyContentReturnsBase(t *testing.T) {
	cfg, warnings, err := Parse("  \n", Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, Default(), cfg)
}
