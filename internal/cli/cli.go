// Package cli parses hubdrive command-line arguments.
package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Command string

const (
	CommandConnect    Command = "connect"
	CommandDrive      Command = "drive"
	CommandPattern    Command = "pattern"
	CommandForward    Command = "forward"
	CommandBackward   Command = "backward"
	CommandStop       Command = "stop"
	CommandLeft       Command = "left"
	CommandRight      Command = "right"
	CommandCenter     Command = "center"
	CommandHalt       Command = "halt"
	CommandDisconnect Command = "disconnect"
	CommandStatus     Command = "status"
	CommandScan       Command = "scan"
	CommandSim        Command = "sim"
	CommandHubProgram Command = "hub-program"
	CommandDoctor     Command = "doctor"
	CommandVersion    Command = "version"
	CommandHelp       Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandConnect:    {},
	CommandDrive:      {},
	CommandPattern:    {},
	CommandForward:    {},
	CommandBackward:   {},
	CommandStop:       {},
	CommandLeft:       {},
	CommandRight:      {},
	CommandCenter:     {},
	CommandHalt:       {},
	CommandDisconnect: {},
	CommandStatus:     {},
	CommandScan:       {},
	CommandSim:        {},
	CommandHubProgram: {},
	CommandDoctor:     {},
	CommandVersion:    {},
	CommandHelp:       {},
}

// valueCommands take one optional integer argument.
var valueCommands = map[Command]struct{}{
	CommandPattern:  {},
	CommandForward:  {},
	CommandBackward: {},
	CommandLeft:     {},
	CommandRight:    {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	// Hub overrides transport.selector.
	Hub      string
	Value    *int
	ShowHelp bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}
	sawCommand := false

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		case "--hub":
			i++
			if i >= len(args) || strings.TrimSpace(args[i]) == "" {
				return Parsed{}, errors.New("--hub requires a name")
			}
			parsed.Hub = args[i]
		default:
			if sawCommand {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", parsed.Command)
			}
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			sawCommand = true

			rest := args[i+1:]
			if _, ok := valueCommands[cmd]; ok && len(rest) > 0 {
				value, err := strconv.Atoi(rest[0])
				if err != nil || value < 0 {
					return Parsed{}, fmt.Errorf("%s expects a non-negative integer, got %q", cmd, rest[0])
				}
				parsed.Value = &value
				rest = rest[1:]
				i++
			}
			if len(rest) > 0 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
		}
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] [--hub NAME] <command> [VALUE]

Session:
  connect         Connect to the hub and accept commands until disconnect
  drive           Connect and drive from the terminal (arrows/WASD)
  pattern [N]     Connect and repeat the demo drive pattern N times (default: until interrupted)
  disconnect      Stop the hub and end the running session
  status          Print the connection state

Driving (sent to the running session):
  forward [PCT]   Drive forward at PCT percent (default: drive.speed_percent)
  backward [PCT]  Drive backward at PCT percent
  stop            Stop the drive motors
  left [DEG]      Steer left to DEG degrees (default: drive.steer_angle)
  right [DEG]     Steer right to DEG degrees
  center          Return steering to center
  halt            Emergency stop: stop then center

Tools:
  scan            List advertising BLE devices
  sim             Serve a simulated hub over the gRPC bridge
  hub-program     Print the MicroPython listener to load onto the hub
  doctor          Run configuration and environment checks
  version         Print version information
  help            Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/hubdrive/config.jsonc)
  --hub NAME      Hub name or prefix ending in * (overrides transport.selector)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
