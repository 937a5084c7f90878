package mixer

import (
	"go.uber.org/zap"
)

// StreamRow is what the UI needs to draw one stream
type StreamRow struct {
	ID          uint32
	DisplayName string
	VolumeLevel uint32
	Muted       bool
}

// Frame is the result of one refresh, ready for rendering
type Frame struct {
	Streams []StreamRow
	Sink    MainChannelState
	Source  MainChannelState

	// at least one step of the refresh failed and older values are shown
	Stale bool
}

// Core runs the per-frame refresh and the dispatch of user intents.
// It holds no mixer state of its own: State is passed in and handed back
type Core struct {
	logger *zap.SugaredLogger
	client AudioServerClient

	mainChannels *MainChannelSync
	dispatcher   *CommandDispatcher
}

// NewCore creates a Core on top of client
func NewCore(logger *zap.SugaredLogger, client AudioServerClient) *Core {
	logger = logger.Named("core")

	c := &Core{
		logger:       logger,
		client:       client,
		mainChannels: newMainChannelSync(logger, client),
		dispatcher:   newCommandDispatcher(logger, client),
	}

	logger.Debug("Created core instance")

	return c
}

// RefreshAll fetches the stream list, then the sink, then the source, and folds
// them into state. A failed step keeps the previous values for that step
func (c *Core) RefreshAll(state State) (State, Frame) {
	stale := false

	snapshot, err := c.client.ListStreams()
	if err != nil {
		c.logger.Debugw("Failed to list streams, keeping previous list", "error", err)
		stale = true
	} else {
		state.Streams, state.Slots = Reconcile(state.Streams, state.Slots, snapshot)
	}

	if err := c.mainChannels.Refresh(Sink, &state.Sink); err != nil {
		stale = true
	}

	if err := c.mainChannels.Refresh(Source, &state.Source); err != nil {
		stale = true
	}

	frame := state.Frame()
	frame.Stale = stale

	return state, frame
}

// Dispatch forwards intent to the sound server, see CommandDispatcher.Dispatch
func (c *Core) Dispatch(state *State, intent Intent) {
	c.dispatcher.Dispatch(state, intent)
}

// Frame builds the render rows from state
func (s State) Frame() Frame {
	rows := make([]StreamRow, len(s.Streams))
	for i, r := range s.Streams {
		rows[i] = StreamRow{
			ID:          r.ID,
			DisplayName: r.DisplayName,
			VolumeLevel: r.VolumeLevel,
			Muted:       r.Muted,
		}
	}

	return Frame{
		Streams: rows,
		Sink:    s.Sink,
		Source:  s.Source,
	}
}
