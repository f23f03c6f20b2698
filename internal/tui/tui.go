// Package tui is the terminal driving front end.
//
// Terminals report key presses and auto-repeats but never releases, so a
// direction counts as held until no repeat arrives within the hold window.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rbright/hubdrive/internal/fsm"
	"github.com/rbright/hubdrive/internal/protocol"
)

const (
	speedStep    = 10
	minSpeed     = 10
	tickInterval = 50 * time.Millisecond
)

// Driver is the command sink the UI drives; *worker.Worker satisfies it.
type Driver interface {
	Submit(protocol.Command) bool
	State() fsm.State
	Done() <-chan struct{}
}

// Options holds the initial speed, the steering angle and the hold window.
type Options struct {
	SpeedPercent int
	SteerAngle   int
	Hold         time.Duration
}

type tickMsg time.Time

type sessionEndedMsg struct{}

// Model is the bubbletea model.
type Model struct {
	driver Driver
	opts   Options
	now    func() time.Time

	speed     int
	throttle  int
	steer     int
	throttleT time.Time
	steerT    time.Time
	state     fsm.State
	last      string
	ended     bool
}

func NewModel(driver Driver, opts Options) Model {
	if opts.Hold <= 0 {
		opts.Hold = 600 * time.Millisecond
	}
	if opts.SteerAngle <= 0 {
		opts.SteerAngle = protocol.DefaultSteerAngle
	}
	speed := opts.SpeedPercent
	if speed < minSpeed {
		speed = minSpeed
	}
	if speed > 100 {
		speed = 100
	}
	return Model{
		driver: driver,
		opts:   opts,
		now:    time.Now,
		speed:  speed,
		state:  driver.State(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), waitDone(m.driver.Done()))
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func waitDone(done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-done
		return sessionEndedMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.key(msg.String())
	case tickMsg:
		m.release(time.Time(msg))
		m.state = m.driver.State()
		return m, tick()
	case sessionEndedMsg:
		m.ended = true
		m.state = m.driver.State()
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) key(key string) (tea.Model, tea.Cmd) {
	now := m.now()
	switch key {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "w":
		m.pressThrottle(1, now)
	case "down", "s":
		m.pressThrottle(-1, now)
	case "left", "a":
		m.pressSteer(-1, now)
	case "right", "d":
		m.pressSteer(1, now)
	case " ":
		m.throttle = 0
		m.send(protocol.Stop())
	case "x":
		m.throttle, m.steer = 0, 0
		m.send(protocol.Stop())
		m.send(protocol.Center())
	case "+", "=":
		m.adjustSpeed(speedStep)
	case "-", "_":
		m.adjustSpeed(-speedStep)
	}
	return m, nil
}

// pressThrottle starts a direction or extends its hold on auto-repeat.
func (m *Model) pressThrottle(dir int, now time.Time) {
	m.throttleT = now
	if m.throttle == dir {
		return
	}
	m.throttle = dir
	m.send(m.throttleCommand())
}

func (m *Model) pressSteer(dir int, now time.Time) {
	m.steerT = now
	if m.steer == dir {
		return
	}
	m.steer = dir
	m.send(m.steerCommand())
}

// release ends holds whose last repeat is older than the hold window.
func (m *Model) release(now time.Time) {
	if m.throttle != 0 && now.Sub(m.throttleT) > m.opts.Hold {
		m.throttle = 0
		m.send(protocol.Stop())
	}
	if m.steer != 0 && now.Sub(m.steerT) > m.opts.Hold {
		m.steer = 0
		m.send(protocol.Center())
	}
}

func (m *Model) adjustSpeed(delta int) {
	next := min(max(m.speed+delta, minSpeed), 100)
	if next == m.speed {
		return
	}
	m.speed = next
	if m.throttle != 0 {
		m.send(m.throttleCommand())
	}
}

func (m Model) throttleCommand() protocol.Command {
	if m.throttle < 0 {
		return protocol.Backward(m.speed)
	}
	return protocol.Forward(m.speed)
}

func (m Model) steerCommand() protocol.Command {
	if m.steer < 0 {
		return protocol.Left(m.opts.SteerAngle)
	}
	return protocol.Right(m.opts.SteerAngle)
}

func (m *Model) send(cmd protocol.Command) {
	if m.driver.Submit(cmd) {
		m.last = cmd.String()
		return
	}
	m.last = cmd.String() + " (dropped)"
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	activeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	stateStyles = map[fsm.State]lipgloss.Style{
		fsm.StateDisconnected: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		fsm.StateConnecting:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		fsm.StateReady:        lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		fsm.StateClosing:      lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	}
)

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("hubdrive"))
	b.WriteString("  ")
	b.WriteString(stateStyles[m.state].Render(string(m.state)))
	b.WriteString("\n\n")

	throttle := "stopped"
	switch {
	case m.throttle > 0:
		throttle = activeStyle.Render("forward")
	case m.throttle < 0:
		throttle = activeStyle.Render("backward")
	}
	steer := "center"
	switch {
	case m.steer < 0:
		steer = activeStyle.Render("left")
	case m.steer > 0:
		steer = activeStyle.Render("right")
	}

	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("throttle"), throttle)
	fmt.Fprintf(&b, "%s    %s\n", labelStyle.Render("steer"), steer)
	fmt.Fprintf(&b, "%s    %d%%\n", labelStyle.Render("speed"), m.speed)
	if m.last != "" {
		fmt.Fprintf(&b, "%s     %s\n", labelStyle.Render("sent"), m.last)
	}
	if m.ended {
		b.WriteString("\nsession ended\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("arrows/wasd drive  space stop  x halt  +/- speed  q quit"))
	b.WriteString("\n")
	return b.String()
}

// Run drives the UI until the user quits, ctx ends or the session ends.
func Run(ctx context.Context, driver Driver, opts Options) error {
	p := tea.NewProgram(NewModel(driver, opts), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run terminal ui: %w", err)
	}
	return nil
}
