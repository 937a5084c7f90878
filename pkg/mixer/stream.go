package mixer

import "fmt"

// MaxVolume is the linear level PulseAudio treats as 100%
const MaxVolume = 0x10000

// ChannelKind selects one of the two hardware endpoints
type ChannelKind int

const (
	// Sink is the main playback endpoint
	Sink ChannelKind = iota

	// Source is the main capture endpoint
	Source
)

func (k ChannelKind) String() string {
	switch k {
	case Sink:
		return "sink"
	case Source:
		return "source"
	default:
		return fmt.Sprintf("ChannelKind(%d)", int(k))
	}
}

// StreamSnapshot is one entry of a freshly enumerated stream list
type StreamSnapshot struct {
	ID          uint32
	DisplayName string
	VolumeLevel uint32
	Muted       bool
}

// StreamRecord is the locally held state of one live playback client.
// DisplayName never changes for the lifetime of a record
type StreamRecord struct {
	ID          uint32
	DisplayName string
	VolumeLevel uint32
	Muted       bool
}

func newStreamRecord(s StreamSnapshot) StreamRecord {
	return StreamRecord{
		ID:          s.ID,
		DisplayName: s.DisplayName,
		VolumeLevel: s.VolumeLevel,
		Muted:       s.Muted,
	}
}

// UiSlot holds widget interaction state for the row of one StreamRecord.
// It has no meaning to the sound server and lives exactly as long as its record
type UiSlot struct {
	// slider is being held; DragLevel is where the user left it
	Dragging  bool
	DragLevel uint32

	// mute button state
	Hovered bool
	Pressed bool
}

// SliderLevel is the level the row's slider should show
func (s *UiSlot) SliderLevel(record StreamRecord) uint32 {
	if s != nil && s.Dragging {
		return s.DragLevel
	}
	return record.VolumeLevel
}

// MainChannelState is the volume and mute state of the sink or the source
type MainChannelState struct {
	VolumeLevel uint32
	Muted       bool
}

// State is everything the UI thread owns between frames.
// Streams and Slots are index-aligned and always have the same length
type State struct {
	Streams []StreamRecord
	Slots   []*UiSlot

	Sink   MainChannelState
	Source MainChannelState
}

// Main returns a pointer to the main channel state of the given kind
func (s *State) Main(kind ChannelKind) *MainChannelState {
	if kind == Source {
		return &s.Source
	}
	return &s.Sink
}

func (s *State) indexOf(id uint32) int {
	for i := range s.Streams {
		if s.Streams[i].ID == id {
			return i
		}
	}
	return -1
}

// ClampVolume maps any requested level into [0, MaxVolume]
func ClampVolume(level int) uint32 {
	if level < 0 {
		return 0
	}
	if level > MaxVolume {
		return MaxVolume
	}
	return uint32(level)
}

// VolumePercent converts a linear level to a 0-100 percentage
func VolumePercent(level uint32) int {
	return int((uint64(level)*100 + MaxVolume/2) / MaxVolume)
}

// VolumeFromScalar converts a 0-1 scalar to a linear level
func VolumeFromScalar(v float32) int {
	return int(v * MaxVolume)
}
