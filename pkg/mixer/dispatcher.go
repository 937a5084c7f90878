package mixer

import (
	"go.uber.org/zap"
)

// Intent is a discrete user action that maps to exactly one server call
type Intent interface {
	intentMarker()
}

// StreamVolumeChanged is emitted when a stream slider moves
type StreamVolumeChanged struct {
	ID    uint32
	Level int
}

// StreamMuteToggled is emitted when a stream mute button is pressed.
// CurrentMuted is the state the button showed when pressed
type StreamMuteToggled struct {
	ID           uint32
	CurrentMuted bool
}

// MainVolumeChanged is emitted when the sink or source slider moves
type MainVolumeChanged struct {
	Channel ChannelKind
	Level   int
}

// MainMuteToggled is emitted when the sink or source mute button is pressed
type MainMuteToggled struct {
	Channel      ChannelKind
	CurrentMuted bool
}

func (StreamVolumeChanged) intentMarker() {}
func (StreamMuteToggled) intentMarker()   {}
func (MainVolumeChanged) intentMarker()   {}
func (MainMuteToggled) intentMarker()     {}

// CommandDispatcher turns intents into sound server calls.
// Calls are fire-and-forget: the next refresh brings the UI back in line with the server
type CommandDispatcher struct {
	logger *zap.SugaredLogger
	client AudioServerClient
}

func newCommandDispatcher(logger *zap.SugaredLogger, client AudioServerClient) *CommandDispatcher {
	return &CommandDispatcher{
		logger: logger.Named("dispatcher"),
		client: client,
	}
}

// Dispatch issues the server call for intent. Levels are clamped to [0, MaxVolume].
// A stream volume change is also applied to state right away so the slider doesn't snap back
func (d *CommandDispatcher) Dispatch(state *State, intent Intent) {
	switch in := intent.(type) {

	case StreamVolumeChanged:
		level := ClampVolume(in.Level)

		if i := state.indexOf(in.ID); i >= 0 {
			state.Streams[i].VolumeLevel = level
		}

		if err := d.client.SetVolume(in.ID, level); err != nil {
			d.logger.Debugw("Failed to set stream volume", "id", in.ID, "level", level, "error", err)
		}

	case StreamMuteToggled:
		if err := d.client.SetMute(in.ID, !in.CurrentMuted); err != nil {
			d.logger.Debugw("Failed to set stream mute", "id", in.ID, "muted", !in.CurrentMuted, "error", err)
		}

	case MainVolumeChanged:
		level := ClampVolume(in.Level)

		if err := d.client.SetMainVolume(in.Channel, level); err != nil {
			d.logger.Debugw("Failed to set main volume", "channel", in.Channel, "level", level, "error", err)
		}

	case MainMuteToggled:
		if err := d.client.SetMainMute(in.Channel, !in.CurrentMuted); err != nil {
			d.logger.Debugw("Failed to set main mute", "channel", in.Channel, "muted", !in.CurrentMuted, "error", err)
		}

	default:
		d.logger.Warnw("Ignoring unknown intent", "intent", intent)
	}
}
