package mixer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/stalexteam/deej_mixer/pkg/mixer/util"
)

const (
	masterTargetName = "master" // default sink
	inputTargetName  = "mic"    // default source
)

// HardwareEvent is a control change read from the hardware controller
type HardwareEvent interface {
	hardwareEvent()
}

// SliderMoveEvent represents a single slider move captured from the controller
type SliderMoveEvent struct {
	SliderID     int
	PercentValue float32
}

// SwitchEvent represents a switch flipped on the controller
type SwitchEvent struct {
	SwitchID int
	State    bool
}

func (SliderMoveEvent) hardwareEvent() {}
func (SwitchEvent) hardwareEvent()     {}

var (
	potPattern = regexp.MustCompile(`^sensor-pot(\d+)$`)
	swPattern  = regexp.MustCompile(`^binary_sensor-sw(\d+)$`)

	ansiRegexp    = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	jsonLogRegexp = regexp.MustCompile(`\[[A-Z]\]\[json:\d+\]:\s*(\{.*\})`)
)

type stateEvent struct {
	ID    string          `json:"id"`
	Value json.RawMessage `json:"value"`
	State string          `json:"state"`
}

// extractPayload finds the JSON object in a controller line, either bare
// or wrapped in an ESPHome log tag
func extractPayload(line string) ([]byte, bool) {
	clean := ansiRegexp.ReplaceAllString(line, "")
	trimmed := strings.TrimSpace(clean)

	if len(trimmed) > 0 && trimmed[0] == '{' && trimmed[len(trimmed)-1] == '}' {
		return []byte(trimmed), true
	}

	m := jsonLogRegexp.FindStringSubmatch(clean)
	if m == nil {
		return nil, false
	}

	return []byte(m[1]), true
}

// ParseStateEvent decodes a controller state payload into a slider or switch event.
// Slider values are percentages, clamped to 0..100 and scaled to 0..1
func ParseStateEvent(data []byte, invert bool) (HardwareEvent, error) {
	var raw stateEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse state event: %w", err)
	}

	if m := potPattern.FindStringSubmatch(raw.ID); len(m) == 2 {
		var value float64
		if err := json.Unmarshal(raw.Value, &value); err != nil {
			return nil, fmt.Errorf("slider %s: invalid value: %w", raw.ID, err)
		}

		idx, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("slider %s: invalid index: %w", raw.ID, err)
		}

		n := util.ClampScalar(float32(value) / 100.0)
		if invert {
			n = 1 - n
		}

		return SliderMoveEvent{SliderID: idx, PercentValue: n}, nil
	}

	if m := swPattern.FindStringSubmatch(raw.ID); len(m) == 2 {
		var on bool

		if len(raw.Value) > 0 {
			if err := json.Unmarshal(raw.Value, &on); err != nil {
				return nil, fmt.Errorf("switch %s: invalid value: %w", raw.ID, err)
			}
		} else if raw.State != "" {
			on = strings.ToUpper(raw.State) == "ON"
		} else {
			return nil, fmt.Errorf("switch %s: no state", raw.ID)
		}

		idx, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("switch %s: invalid index: %w", raw.ID, err)
		}

		return SwitchEvent{SwitchID: idx, State: on}, nil
	}

	return nil, fmt.Errorf("unknown state event id %q", raw.ID)
}

// ResolveSliderIntents turns a slider position into volume intents for its targets
func ResolveSliderIntents(state State, targets []string, percent float32) []Intent {
	level := VolumeFromScalar(percent)
	intents := []Intent{}

	for _, target := range targets {
		switch strings.ToLower(target) {
		case masterTargetName:
			intents = append(intents, MainVolumeChanged{Channel: Sink, Level: level})
		case inputTargetName:
			intents = append(intents, MainVolumeChanged{Channel: Source, Level: level})
		default:
			for _, stream := range state.Streams {
				if strings.EqualFold(stream.DisplayName, target) {
					intents = append(intents, StreamVolumeChanged{ID: stream.ID, Level: level})
				}
			}
		}
	}

	return intents
}

// ResolveSwitchIntents turns a switch position into mute intents, so that every
// target ends up muted exactly when the switch is on
func ResolveSwitchIntents(state State, targets []string, on bool) []Intent {
	intents := []Intent{}

	for _, target := range targets {
		switch strings.ToLower(target) {
		case masterTargetName:
			if state.Sink.Muted != on {
				intents = append(intents, MainMuteToggled{Channel: Sink, CurrentMuted: state.Sink.Muted})
			}
		case inputTargetName:
			if state.Source.Muted != on {
				intents = append(intents, MainMuteToggled{Channel: Source, CurrentMuted: state.Source.Muted})
			}
		default:
			for _, stream := range state.Streams {
				if strings.EqualFold(stream.DisplayName, target) && stream.Muted != on {
					intents = append(intents, StreamMuteToggled{ID: stream.ID, CurrentMuted: stream.Muted})
				}
			}
		}
	}

	return intents
}
