package guidance

import "math"

// Command is a discrete steering instruction.
type Command int

const (
	CommandNone Command = iota
	CommandStraight
	CommandTurnLeft
	CommandTurnRight
	CommandTurnAround
	CommandSpotOnLeft
	CommandSpotOnRight
	CommandSpotAhead
)

var commandText = map[Command]string{
	CommandStraight:    "Drive straight ahead",
	CommandTurnLeft:    "Turn left",
	CommandTurnRight:   "Turn right",
	CommandTurnAround:  "Turn around, the spot is behind you",
	CommandSpotOnLeft:  "The spot is on your left",
	CommandSpotOnRight: "The spot is on your right",
	CommandSpotAhead:   "The spot is right in front of you",
}

var commandName = map[Command]string{
	CommandNone:        "none",
	CommandStraight:    "straight",
	CommandTurnLeft:    "turn_left",
	CommandTurnRight:   "turn_right",
	CommandTurnAround:  "turn_around",
	CommandSpotOnLeft:  "spot_on_left",
	CommandSpotOnRight: "spot_on_right",
	CommandSpotAhead:   "spot_ahead",
}

// Text returns the phrase spoken and shown to the driver.
func (c Command) Text() string {
	return commandText[c]
}

func (c Command) String() string {
	if n, ok := commandName[c]; ok {
		return n
	}
	return "unknown"
}

// MarshalText renders the command by name in JSON.
func (c Command) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Steer maps the signed angle to the target (positive = target to the right)
// and the remaining distance to a command.
func Steer(angleDiff, distance float64, cfg Config) Command {
	if distance < cfg.NearDistance {
		switch {
		case angleDiff > 0:
			return CommandSpotOnRight
		case angleDiff < 0:
			return CommandSpotOnLeft
		default:
			return CommandSpotAhead
		}
	}

	switch {
	case math.Abs(angleDiff) > cfg.TurnAroundAngle:
		return CommandTurnAround
	case angleDiff > cfg.TurnAngle:
		return CommandTurnRight
	case angleDiff < -cfg.TurnAngle:
		return CommandTurnLeft
	default:
		return CommandStraight
	}
}
