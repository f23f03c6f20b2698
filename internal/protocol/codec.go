package protocol

import (
	"strconv"
	"strings"
)

// Terminator ends every frame on the wire.
const Terminator = ';'

const (
	wireForward  = 'F'
	wireBackward = 'B'
	wireStop     = 'S'
	wireLeft     = 'L'
	wireRight    = 'R'
	wireCenter   = 'Z'
)

// Encode renders a valid command as one terminated frame.
func Encode(c Command) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	frame := make([]byte, 0, 8)
	switch c.Action {
	case ActionThrottle:
		if c.Magnitude < 0 {
			frame = append(frame, wireBackward)
			frame = strconv.AppendInt(frame, int64(-c.Magnitude), 10)
		} else {
			frame = append(frame, wireForward)
			frame = strconv.AppendInt(frame, int64(c.Magnitude), 10)
		}
	case ActionSteer:
		if c.Magnitude < 0 {
			frame = append(frame, wireLeft)
			frame = strconv.AppendInt(frame, int64(-c.Magnitude), 10)
		} else {
			frame = append(frame, wireRight)
			frame = strconv.AppendInt(frame, int64(c.Magnitude), 10)
		}
	case ActionStop:
		frame = append(frame, wireStop)
	case ActionCenter:
		frame = append(frame, wireCenter)
	}
	return append(frame, Terminator), nil
}

// Decode parses one frame body (terminator optional) into a command.
//
// Failures are *ProtocolError values so callers can discard the frame and
// carry on.
func Decode(frame string) (Command, error) {
	body := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(frame), string(Terminator)))
	if body == "" {
		return Command{}, ErrEmptyFrame
	}

	action := body[0]
	rest := body[1:]

	switch action {
	case wireStop:
		return Stop(), nil
	case wireCenter:
		return Center(), nil
	case wireForward, wireBackward:
		magnitude, err := parseMagnitude(body, rest)
		if err != nil {
			return Command{}, err
		}
		if action == wireBackward {
			magnitude = -magnitude
		}
		cmd := Throttle(magnitude)
		if cmd.Validate() != nil {
			return Command{}, malformed(body, "throttle %d out of range", magnitude)
		}
		return cmd, nil
	case wireLeft, wireRight:
		angle := DefaultSteerAngle
		if rest != "" {
			parsed, err := parseMagnitude(body, rest)
			if err != nil {
				return Command{}, err
			}
			angle = abs(parsed)
		}
		if angle == 0 {
			return Center(), nil
		}
		cmd := Right(angle)
		if action == wireLeft {
			cmd = Left(angle)
		}
		if cmd.Validate() != nil {
			return Command{}, malformed(body, "steer angle %d out of range", angle)
		}
		return cmd, nil
	default:
		return Command{}, malformed(body, "unknown action %q", action)
	}
}

func parseMagnitude(body string, rest string) (int, error) {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(rest)
	if err != nil {
		return 0, malformed(body, "magnitude %q is not an integer", rest)
	}
	return v, nil
}
