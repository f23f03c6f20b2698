package protocol

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	commands := []Command{
		Throttle(0),
		Throttle(1),
		Throttle(500),
		Throttle(MaxThrottle),
		Throttle(-1),
		Throttle(-MaxThrottle),
		Steer(-30),
		Steer(30),
		Steer(-MaxSteerAngle),
		Steer(MaxSteerAngle),
		Left(DefaultSteerAngle),
		Right(DefaultSteerAngle),
		Stop(),
		Center(),
	}

	for _, cmd := range commands {
		t.Run(cmd.String(), func(t *testing.T) {
			frame, err := Encode(cmd)
			require.NoError(t, err)
			require.Equal(t, byte(Terminator), frame[len(frame)-1])
			require.Equal(t, 1, strings.Count(string(frame), string(Terminator)))

			decoded, err := Decode(string(frame))
			require.NoError(t, err)
			require.Equal(t, cmd, decoded)
		})
	}
}

func TestEncodeWireFormat(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{cmd: Forward(50), want: "F500;"},
		{cmd: Forward(100), want: "F1000;"},
		{cmd: Backward(25), want: "B250;"},
		{cmd: Left(30), want: "L30;"},
		{cmd: Right(100), want: "R100;"},
		{cmd: Stop(), want: "S;"},
		{cmd: Center(), want: "Z;"},
	}

	for _, tc := range tests {
		frame, err := Encode(tc.cmd)
		require.NoError(t, err)
		require.Equal(t, tc.want, string(frame))
	}
}

func TestThrottlePercentMapping(t *testing.T) {
	require.Equal(t, 500, ThrottlePercent(50))
	require.Equal(t, 1000, ThrottlePercent(100))
	require.Equal(t, 0, ThrottlePercent(-5))
	require.Equal(t, 1000, ThrottlePercent(250))
	require.Equal(t, Throttle(500), Forward(50))
	require.Equal(t, Throttle(-1000), Backward(100))
}

func TestEncodeRejectsInvalidCommands(t *testing.T) {
	invalid := []Command{
		Throttle(MaxThrottle + 1),
		Throttle(-MaxThrottle - 1),
		Steer(0),
		Steer(MaxSteerAngle + 1),
		{Action: ActionStop, Magnitude: 3},
		{Action: ActionCenter, Magnitude: -1},
		{Action: Action(42)},
		{},
	}

	for _, cmd := range invalid {
		_, err := Encode(cmd)
		require.ErrorIs(t, err, ErrInvalidCommand, cmd.String())
	}
}

func TestDecodeLenientForms(t *testing.T) {
	tests := []struct {
		frame string
		want  Command
	}{
		{frame: "F", want: Throttle(0)},
		{frame: " F250 ", want: Throttle(250)},
		{frame: "F-250", want: Throttle(-250)},
		{frame: "B-250", want: Throttle(250)},
		{frame: "L", want: Left(DefaultSteerAngle)},
		{frame: "R", want: Right(DefaultSteerAngle)},
		{frame: "L0", want: Center()},
		{frame: "S1000", want: Stop()},
		{frame: "Zjunk", want: Center()},
		{frame: "F500;", want: Throttle(500)},
	}

	for _, tc := range tests {
		got, err := Decode(tc.frame)
		require.NoError(t, err, tc.frame)
		require.Equal(t, tc.want, got, tc.frame)
	}
}

func TestDecodeMalformedFrames(t *testing.T) {
	for _, frame := range []string{"Xqq", "Fqq", "B1.5", "Rx", "F5000", "L999", "?"} {
		_, err := Decode(frame)
		require.Error(t, err, frame)
		require.ErrorIs(t, err, ErrProtocol, frame)

		var protoErr *ProtocolError
		require.True(t, errors.As(err, &protoErr), frame)
	}

	_, err := Decode("   ")
	require.ErrorIs(t, err, ErrEmptyFrame)
}

func TestCategory(t *testing.T) {
	require.Equal(t, CategoryThrottle, Forward(10).Category())
	require.Equal(t, CategoryThrottle, Stop().Category())
	require.Equal(t, CategorySteering, Left(30).Category())
	require.Equal(t, CategorySteering, Center().Category())
}

func TestFramerSplitsOnTerminatorAndFiltersNewlines(t *testing.T) {
	var f Framer
	frames := f.Split([]byte("F500;\r\nL30;S"))
	require.Equal(t, []string{"F500", "L30"}, frames)
	require.Equal(t, 1, f.Pending())

	frames = f.Split([]byte(";;"))
	require.Equal(t, []string{"S", ""}, frames)
	require.Zero(t, f.Pending())
}

func TestFramerDiscardsOverlongFrame(t *testing.T) {
	var f Framer
	long := strings.Repeat("9", MaxFrameLen+10)

	frames := f.Split([]byte("F" + long + ";Z;"))
	require.Equal(t, []string{"Z"}, frames)
}

func TestReadyDetectorAcrossSplitPayloads(t *testing.T) {
	d := NewReadyDetector()
	d.Feed([]byte("hello R"))
	select {
	case <-d.Ready():
		t.Fatal("ready before marker completed")
	default:
	}

	d.Feed([]byte("Y\n"))
	select {
	case <-d.Ready():
	default:
		t.Fatal("expected ready after split marker")
	}

	d.Feed([]byte("RY"))
}

func TestReadyDetectorRestartsPartialMatch(t *testing.T) {
	d := NewReadyDetector()
	d.Feed([]byte("RRY"))
	select {
	case <-d.Ready():
	default:
		t.Fatal("expected ready after RRY")
	}
}
