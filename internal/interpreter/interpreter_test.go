package interpreter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInitBindsActuatorsAndWritesReadyMarker(t *testing.T) {
	hub := newFakeHub()
	interp := New(nil, hub, Options{})
	require.Equal(t, PhaseInitializing, interp.Phase())

	var out bytes.Buffer
	require.NoError(t, interp.Init(&out))

	require.Equal(t, "RY", out.String())
	require.Equal(t, PhaseReady, interp.Phase())
	require.Empty(t, interp.Degraded())
	require.Equal(t, []Color{ColorOrange, ColorGreen}, hub.light.colors())
	require.Equal(t, []int{0}, hub.steering.resets)

	// second Init is a no-op
	require.NoError(t, interp.Init(&out))
	require.Equal(t, "RY", out.String())
}

func TestInitRecordsDegradedActuators(t *testing.T) {
	hub := newFakeHub()
	hub.missing[PortE] = true
	hub.steering.resetErr = errors.New("stalled")

	interp := New(nil, hub, Options{})
	require.NoError(t, interp.Init(io.Discard))

	degraded := interp.Degraded()
	require.Len(t, degraded, 2)
	require.Equal(t, CapabilityLeftDrive, degraded[0].Capability)
	require.Equal(t, PortE, degraded[0].Port)
	require.Equal(t, CapabilitySteering, degraded[1].Capability)
	require.Contains(t, degraded[1].String(), "reset angle")

	// the remaining drive motor still works
	feedString(interp, "F300;L;")
	require.Equal(t, []int{300}, hub.motors[PortA].runs)
	require.Equal(t, ActuatorState{Throttle: 300, SteerTarget: -100, Driving: true, Light: ColorBlue}, interp.State())
}

func TestInitWithoutHubDegradesEverything(t *testing.T) {
	interp := New(nil, nil, Options{})
	require.NoError(t, interp.Init(nil))
	require.Len(t, interp.Degraded(), 4)

	feedString(interp, "F500;R30;S;")
	require.Equal(t, ActuatorState{SteerTarget: 30, Light: ColorGreen}, interp.State())
}

func TestThrottleDrivesMotorsMirrored(t *testing.T) {
	hub := newFakeHub()
	interp := newReady(t, hub)

	feedString(interp, "F500;")
	require.Equal(t, []int{500}, hub.motors[PortA].runs)
	require.Equal(t, []int{-500}, hub.motors[PortE].runs)
	require.Equal(t, ColorBlue, interp.State().Light)

	feedString(interp, "B250;")
	require.Equal(t, []int{500, -250}, hub.motors[PortA].runs)
	require.Equal(t, []int{-500, 250}, hub.motors[PortE].runs)
	require.Equal(t, -250, interp.State().Throttle)
}

func TestStopIsIdempotentAndLeavesSteering(t *testing.T) {
	hub := newFakeHub()
	interp := newReady(t, hub)

	feedString(interp, "F500;R40;S;")
	first := interp.State()
	feedString(interp, "S;")
	second := interp.State()

	require.Equal(t, first, second)
	require.Equal(t, ActuatorState{Throttle: 0, SteerTarget: 40, Driving: false, Light: ColorGreen}, second)
	require.Equal(t, 2, hub.motors[PortA].stops)
	require.Equal(t, 2, hub.motors[PortE].stops)
	require.Equal(t, []int{40}, hub.steering.targets)
}

func TestMalformedFramesAreDiscarded(t *testing.T) {
	hub := newFakeHub()
	interp := newReady(t, hub)

	feedString(interp, "F200;")
	before := interp.State()

	feedString(interp, "Xqq;")
	feedString(interp, ";")
	feedString(interp, "Fabc;")
	feedString(interp, "F9999;")
	require.Equal(t, before, interp.State())
	require.Equal(t, []int{200}, hub.motors[PortA].runs)

	// the next valid frame still applies
	feedString(interp, "F100;")
	require.Equal(t, 100, interp.State().Throttle)
}

func TestSteeringLastWriteWins(t *testing.T) {
	hub := newFakeHub()
	interp := newReady(t, hub)

	feedString(interp, "L;R;Z;R45;")
	require.Equal(t, []int{-100, 100, 0, 45}, hub.steering.targets)
	require.Equal(t, 45, interp.State().SteerTarget)
	for _, speed := range hub.steering.speeds {
		require.Equal(t, DefaultSteerSpeed, speed)
	}
}

func TestSteeringTargetClampedToMaxAngle(t *testing.T) {
	hub := newFakeHub()
	interp := New(nil, hub, Options{MaxSteerAngle: 60, SteerSpeed: 120})
	require.NoError(t, interp.Init(io.Discard))

	feedString(interp, "R170;L90;")
	require.Equal(t, []int{60, -60}, hub.steering.targets)
	require.Equal(t, []int{120, 120}, hub.steering.speeds)
}

func TestActuatorErrorsDoNotStopProcessing(t *testing.T) {
	hub := newFakeHub()
	hub.motors[PortA].runErr = errors.New("overload")
	interp := newReady(t, hub)

	feedString(interp, "F400;R20;")
	require.Equal(t, 400, interp.State().Throttle)
	require.Equal(t, []int{20}, hub.steering.targets)
}

func TestStepConsumesOneByteAtATime(t *testing.T) {
	hub := newFakeHub()
	interp := newReady(t, hub)
	in := &byteInput{data: []byte("F10;")}

	for n := 0; n < 3; n++ {
		consumed, err := interp.Step(in)
		require.NoError(t, err)
		require.True(t, consumed)
		require.Empty(t, hub.motors[PortA].runs)
	}
	consumed, err := interp.Step(in)
	require.NoError(t, err)
	require.True(t, consumed)
	require.Equal(t, []int{10}, hub.motors[PortA].runs)

	consumed, err = interp.Step(in)
	require.NoError(t, err)
	require.False(t, consumed)
}

func TestRunProcessesInputUntilCancelled(t *testing.T) {
	hub := newFakeHub()
	interp := New(nil, hub, Options{PollInterval: time.Millisecond})
	in := &byteInput{}
	var out syncBuffer

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- interp.Run(ctx, in, &out) }()

	require.Eventually(t, func() bool { return out.String() == "RY" }, time.Second, time.Millisecond)
	require.Equal(t, PhaseRunning, interp.Phase())

	in.push("F700;R15;")
	require.Eventually(t, func() bool {
		s := interp.State()
		return s.Throttle == 700 && s.SteerTarget == 15
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRunAppliesBufferedInputBeforeReturningOnClose(t *testing.T) {
	hub := newFakeHub()
	interp := New(nil, hub, Options{PollInterval: time.Millisecond})
	in := &byteInput{}
	in.push("F700;R15;Z;S;")
	in.close()

	done := make(chan error, 1)
	go func() { done <- interp.Run(context.Background(), in, io.Discard) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not return after input closed")
	}
	require.Equal(t, ActuatorState{Light: ColorGreen}, interp.State())
	require.Equal(t, 1, hub.motors[PortA].stops)
}

func TestRunReportsReadyMarkerWriteFailure(t *testing.T) {
	interp := New(nil, newFakeHub(), Options{})
	err := interp.Run(context.Background(), &byteInput{}, failingWriter{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "ready marker")
}

func newReady(t *testing.T, hub *fakeHub) *Interpreter {
	t.Helper()
	interp := New(nil, hub, Options{})
	require.NoError(t, interp.Init(io.Discard))
	return interp
}

func feedString(interp *Interpreter, s string) {
	for i := 0; i < len(s); i++ {
		interp.Feed(s[i])
	}
}

type fakeHub struct {
	motors   map[Port]*fakeMotor
	steering *fakeSteering
	light    *fakeLight
	missing  map[Port]bool
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		motors:   map[Port]*fakeMotor{PortA: {}, PortE: {}},
		steering: &fakeSteering{},
		light:    &fakeLight{},
		missing:  map[Port]bool{},
	}
}

func (h *fakeHub) Motor(port Port) (Motor, error) {
	m, ok := h.motors[port]
	if !ok || h.missing[port] {
		return nil, errors.New("no device on port " + string(port))
	}
	return m, nil
}

func (h *fakeHub) SteeringMotor(port Port) (SteeringMotor, error) {
	if port != PortC || h.missing[port] {
		return nil, errors.New("no device on port " + string(port))
	}
	return h.steering, nil
}

func (h *fakeHub) Light() (Light, error) {
	return h.light, nil
}

type fakeMotor struct {
	runs   []int
	stops  int
	runErr error
}

func (m *fakeMotor) Run(speed int) error {
	if m.runErr != nil {
		return m.runErr
	}
	m.runs = append(m.runs, speed)
	return nil
}

func (m *fakeMotor) Stop() error {
	m.stops++
	return nil
}

type fakeSteering struct {
	resets   []int
	targets  []int
	speeds   []int
	resetErr error
}

func (s *fakeSteering) ResetAngle(angle int) error {
	if s.resetErr != nil {
		return s.resetErr
	}
	s.resets = append(s.resets, angle)
	return nil
}

func (s *fakeSteering) RunTarget(speed int, target int) error {
	s.speeds = append(s.speeds, speed)
	s.targets = append(s.targets, target)
	return nil
}

type fakeLight struct {
	mu      sync.Mutex
	history []Color
}

func (l *fakeLight) On(c Color) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history = append(l.history, c)
	return nil
}

func (l *fakeLight) colors() []Color {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Color(nil), l.history...)
}

type byteInput struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

func (in *byteInput) close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.closed = true
}

func (in *byteInput) Drained() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.closed && len(in.data) == 0
}

func (in *byteInput) push(s string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.data = append(in.data, s...)
}

func (in *byteInput) Ready() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.data) > 0
}

func (in *byteInput) ReadByte() (byte, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.data) == 0 {
		return 0, io.EOF
	}
	b := in.data[0]
	in.data = in.data[1:]
	return b, nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("stdout closed")
}
