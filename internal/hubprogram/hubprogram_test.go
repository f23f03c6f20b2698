package hubprogram

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/hubdrive/internal/interpreter"
	"github.com/rbright/hubdrive/internal/protocol"
)

func TestListenerWritesRawReadyMarker(t *testing.T) {
	src := string(Listener())
	require.Contains(t, src, fmt.Sprintf("usys.stdout.buffer.write(b%q)", string(protocol.ReadyMarker)))
	require.NotContains(t, src, "print(")
}

func TestListenerMatchesInterpreterWiring(t *testing.T) {
	src := string(Listener())
	ports := interpreter.DefaultPorts()
	require.Contains(t, src, fmt.Sprintf("right = bind(Port.%s)", ports.Right))
	require.Contains(t, src, fmt.Sprintf("left = bind(Port.%s)", ports.Left))
	require.Contains(t, src, fmt.Sprintf("steering = bind(Port.%s, reset=True)", ports.Steering))

	require.Contains(t, src, fmt.Sprintf("MAX_STEER = %d", interpreter.DefaultMaxSteerAngle))
	require.Contains(t, src, fmt.Sprintf("STEER_SPEED = %d", interpreter.DefaultSteerSpeed))
	require.Contains(t, src, fmt.Sprintf("DEFAULT_STEER = %d", protocol.DefaultSteerAngle))
	require.Contains(t, src, fmt.Sprintf("MAX_FRAME = %d", protocol.MaxFrameLen))

	for _, action := range []string{"S", "Z", "F", "B", "L", "R"} {
		require.True(t, strings.Contains(src, fmt.Sprintf("action == %q", action)), "action %s", action)
	}
}

func TestListenerReturnsCopy(t *testing.T) {
	a := Listener()
	a[0] = 'X'
	require.NotEqual(t, a[0], Listener()[0])
}
