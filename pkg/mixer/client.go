package mixer

import (
	"errors"
	"fmt"
)

// AudioServerClient is a blocking connection to the sound server.
// Every call is a full round trip
type AudioServerClient interface {
	ListStreams() ([]StreamSnapshot, error)
	SetVolume(id uint32, level uint32) error
	SetMute(id uint32, muted bool) error

	MainVolume(kind ChannelKind) (MainChannelState, error)
	SetMainVolume(kind ChannelKind, level uint32) error
	SetMainMute(kind ChannelKind, muted bool) error

	Close() error
}

// AudioDeviceInfo represents information about an audio device
type AudioDeviceInfo struct {
	Name        string // Friendly name of the device
	Type        string // "Output" or "Input"
	Description string // Device description (optional, may be empty)
}

var (
	// ErrConnectionFailure means the sound server connection could not be established or was lost
	ErrConnectionFailure = errors.New("sound server connection failure")

	// ErrOperationCancelled means the server rejected or cancelled a single request
	ErrOperationCancelled = errors.New("sound server operation cancelled")
)

// MissingFieldError is returned for a stream entry lacking a required property
type MissingFieldError struct {
	StreamID uint32
	Field    string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("stream %d: missing field %q", e.StreamID, e.Field)
}
