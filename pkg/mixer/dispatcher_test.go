package mixer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestClampVolume(t *testing.T) {
	tests := []struct {
		name  string
		level int
		want  uint32
	}{
		{"negative", -5, 0},
		{"zero", 0, 0},
		{"inside", 30000, 30000},
		{"max", MaxVolume, MaxVolume},
		{"above max", MaxVolume + 1, MaxVolume},
		{"far above", 10 * MaxVolume, MaxVolume},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampVolume(tt.level))
		})
	}
}

func TestDispatch_StreamVolumeIsOptimistic(t *testing.T) {
	client := &mockClient{}
	client.On("SetVolume", uint32(7), uint32(40000)).Return(nil).Once()

	state := State{
		Streams: []StreamRecord{{ID: 3, VolumeLevel: 1}, {ID: 7, VolumeLevel: 2}},
		Slots:   []*UiSlot{{}, {}},
	}

	d := newCommandDispatcher(testLogger(), client)
	d.Dispatch(&state, StreamVolumeChanged{ID: 7, Level: 40000})

	client.AssertExpectations(t)
	assert.Equal(t, uint32(40000), state.Streams[1].VolumeLevel)
	assert.Equal(t, uint32(1), state.Streams[0].VolumeLevel)
}

func TestDispatch_StreamVolumeClamps(t *testing.T) {
	client := &mockClient{}
	client.On("SetVolume", uint32(1), uint32(MaxVolume)).Return(nil).Once()
	client.On("SetVolume", uint32(1), uint32(0)).Return(nil).Once()

	state := State{Streams: []StreamRecord{{ID: 1}}, Slots: []*UiSlot{{}}}
	d := newCommandDispatcher(testLogger(), client)

	d.Dispatch(&state, StreamVolumeChanged{ID: 1, Level: MaxVolume + 500})
	assert.Equal(t, uint32(MaxVolume), state.Streams[0].VolumeLevel)

	d.Dispatch(&state, StreamVolumeChanged{ID: 1, Level: -20})
	assert.Equal(t, uint32(0), state.Streams[0].VolumeLevel)

	client.AssertExpectations(t)
}

func TestDispatch_StreamMuteToggles(t *testing.T) {
	client := &mockClient{}
	client.On("SetMute", uint32(4), true).Return(nil).Once()
	client.On("SetMute", uint32(4), false).Return(nil).Once()

	state := State{}
	d := newCommandDispatcher(testLogger(), client)

	d.Dispatch(&state, StreamMuteToggled{ID: 4, CurrentMuted: false})
	d.Dispatch(&state, StreamMuteToggled{ID: 4, CurrentMuted: true})

	client.AssertExpectations(t)
}

func TestDispatch_MainChannel(t *testing.T) {
	client := &mockClient{}
	client.On("SetMainVolume", Source, uint32(MaxVolume)).Return(nil).Once()
	client.On("SetMainVolume", Sink, uint32(0)).Return(nil).Once()
	client.On("SetMainMute", Sink, false).Return(nil).Once()

	state := State{}
	d := newCommandDispatcher(testLogger(), client)

	d.Dispatch(&state, MainVolumeChanged{Channel: Source, Level: 1 << 20})
	d.Dispatch(&state, MainVolumeChanged{Channel: Sink, Level: -1})
	d.Dispatch(&state, MainMuteToggled{Channel: Sink, CurrentMuted: true})

	client.AssertExpectations(t)
}

func TestDispatch_ErrorsAreSwallowed(t *testing.T) {
	client := &mockClient{}
	client.On("SetVolume", mock.Anything, mock.Anything).Return(ErrConnectionFailure).Once()
	client.On("SetMainMute", mock.Anything, mock.Anything).Return(ErrOperationCancelled).Once()

	state := State{Streams: []StreamRecord{{ID: 9}}, Slots: []*UiSlot{{}}}
	d := newCommandDispatcher(testLogger(), client)

	assert.NotPanics(t, func() {
		d.Dispatch(&state, StreamVolumeChanged{ID: 9, Level: 100})
		d.Dispatch(&state, MainMuteToggled{Channel: Source})
	})

	// the optimistic value stays until the next refresh corrects it
	assert.Equal(t, uint32(100), state.Streams[0].VolumeLevel)
	client.AssertExpectations(t)
}

func TestDispatch_UnknownStreamStillCallsServer(t *testing.T) {
	client := &mockClient{}
	client.On("SetVolume", uint32(99), uint32(5)).Return(nil).Once()

	state := State{}
	newCommandDispatcher(testLogger(), client).Dispatch(&state, StreamVolumeChanged{ID: 99, Level: 5})

	client.AssertExpectations(t)
	assert.Empty(t, state.Streams)
}
