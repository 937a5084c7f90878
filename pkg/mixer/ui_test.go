package mixer

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testStep = 5 * MaxVolume / 100

func newTestUI(t *testing.T, client *mockClient, yaml string) uiModel {
	t.Helper()

	core := NewCore(testLogger(), client)
	return newUIModel(testLogger(), core, newTestConfig(t, yaml), nil)
}

func update(t *testing.T, m uiModel, msg tea.Msg) (uiModel, tea.Cmd) {
	t.Helper()

	next, cmd := m.Update(msg)
	model, ok := next.(uiModel)
	require.True(t, ok)

	return model, cmd
}

func press(t *testing.T, m uiModel, keys ...tea.KeyType) uiModel {
	t.Helper()

	for _, k := range keys {
		m, _ = update(t, m, tea.KeyMsg{Type: k})
	}
	return m
}

func expectMainChannels(client *mockClient, sink, source MainChannelState) {
	client.On("MainVolume", Sink).Return(sink, nil)
	client.On("MainVolume", Source).Return(source, nil)
}

func TestUI_FrameRefreshes(t *testing.T) {
	client := &mockClient{}
	client.On("ListStreams").Return([]StreamSnapshot{
		{ID: 2, DisplayName: "mpv", VolumeLevel: 100},
		{ID: 5, DisplayName: "firefox", VolumeLevel: 200},
	}, nil).Once()
	expectMainChannels(client, MainChannelState{VolumeLevel: MaxVolume}, MainChannelState{Muted: true})

	m := newTestUI(t, client, "")

	m, cmd := update(t, m, frameTickMsg{})
	assert.NotNil(t, cmd, "the next frame is scheduled")

	require.Len(t, m.state.Streams, 2)
	require.Len(t, m.state.Slots, 2)
	assert.Equal(t, uint32(MaxVolume), m.state.Sink.VolumeLevel)
	assert.True(t, m.state.Source.Muted)
	assert.False(t, m.stale)

	client.AssertExpectations(t)
}

func TestUI_InitStartsFrame(t *testing.T) {
	m := newTestUI(t, &mockClient{}, "")

	cmd := m.Init()
	require.NotNil(t, cmd)
	assert.Equal(t, frameTickMsg{}, cmd())
}

func TestUI_AdjustStreamVolume(t *testing.T) {
	client := &mockClient{}
	client.On("ListStreams").Return([]StreamSnapshot{{ID: 2, DisplayName: "mpv", VolumeLevel: 1000}}, nil)
	expectMainChannels(client, MainChannelState{}, MainChannelState{})
	client.On("SetVolume", uint32(2), uint32(1000+testStep)).Return(nil).Once()

	m := newTestUI(t, client, "")
	m, _ = update(t, m, frameTickMsg{})

	m = press(t, m, tea.KeyDown, tea.KeyDown, tea.KeyRight)

	slot := m.state.Slots[0]
	assert.True(t, slot.Hovered)
	assert.True(t, slot.Dragging)
	assert.Equal(t, uint32(1000+testStep), slot.DragLevel)

	// the server still reports the old level, the slider stays where the user left it
	m, _ = update(t, m, frameTickMsg{})
	assert.True(t, slot.Dragging)
	assert.Equal(t, uint32(1000+testStep), slot.SliderLevel(m.state.Streams[0]))

	// a frame without keys lets go
	m, _ = update(t, m, frameTickMsg{})
	assert.False(t, slot.Dragging)
	assert.Equal(t, uint32(1000), slot.SliderLevel(m.state.Streams[0]))

	client.AssertExpectations(t)
}

func TestUI_AdjustClampsAtBounds(t *testing.T) {
	client := &mockClient{}
	client.On("ListStreams").Return([]StreamSnapshot{}, nil)
	expectMainChannels(client, MainChannelState{VolumeLevel: MaxVolume - 10}, MainChannelState{VolumeLevel: 10})
	client.On("SetMainVolume", Sink, uint32(MaxVolume)).Return(nil).Once()
	client.On("SetMainVolume", Source, uint32(0)).Return(nil).Once()

	m := newTestUI(t, client, "")
	m, _ = update(t, m, frameTickMsg{})

	m = press(t, m, tea.KeyRight)
	assert.Equal(t, uint32(MaxVolume), m.state.Sink.VolumeLevel)

	m = press(t, m, tea.KeyDown, tea.KeyLeft)
	assert.Equal(t, uint32(0), m.state.Source.VolumeLevel)

	client.AssertExpectations(t)
}

func TestUI_ToggleMute(t *testing.T) {
	client := &mockClient{}
	client.On("ListStreams").Return([]StreamSnapshot{{ID: 9, DisplayName: "discord", Muted: true}}, nil)
	expectMainChannels(client, MainChannelState{}, MainChannelState{})
	client.On("SetMainMute", Sink, true).Return(nil).Once()
	client.On("SetMute", uint32(9), false).Return(nil).Once()

	m := newTestUI(t, client, "")
	m, _ = update(t, m, frameTickMsg{})

	m = press(t, m, tea.KeyEnter)
	assert.True(t, m.state.Sink.Muted)

	m = press(t, m, tea.KeyDown, tea.KeyDown, tea.KeySpace)
	assert.True(t, m.state.Slots[0].Pressed)
	assert.False(t, m.state.Streams[0].Muted)

	client.AssertExpectations(t)
}

func TestUI_FocusFollowsStream(t *testing.T) {
	client := &mockClient{}
	client.On("ListStreams").Return([]StreamSnapshot{
		{ID: 2, DisplayName: "mpv"},
		{ID: 5, DisplayName: "firefox"},
	}, nil).Once()
	client.On("ListStreams").Return([]StreamSnapshot{{ID: 5, DisplayName: "firefox"}}, nil).Once()
	client.On("ListStreams").Return([]StreamSnapshot{}, nil).Once()
	expectMainChannels(client, MainChannelState{}, MainChannelState{})

	m := newTestUI(t, client, "")
	m, _ = update(t, m, frameTickMsg{})

	m = press(t, m, tea.KeyDown, tea.KeyDown, tea.KeyDown)
	assert.Equal(t, 3, m.focused)

	m, _ = update(t, m, refreshMsg{})
	assert.Equal(t, 2, m.focused)
	assert.True(t, m.state.Slots[0].Hovered)

	// focused stream gone, the focus falls back to the last row
	m, _ = update(t, m, refreshMsg{})
	assert.Equal(t, 1, m.focused)

	client.AssertExpectations(t)
}

func TestUI_HardwareEvents(t *testing.T) {
	client := &mockClient{}
	client.On("ListStreams").Return([]StreamSnapshot{{ID: 2, DisplayName: "mpv"}}, nil)
	expectMainChannels(client, MainChannelState{}, MainChannelState{})
	client.On("SetMainVolume", Sink, uint32(MaxVolume/2)).Return(nil).Once()
	client.On("SetVolume", uint32(2), uint32(MaxVolume/2)).Return(nil).Once()
	client.On("SetMainMute", Source, true).Return(nil).Once()

	m := newTestUI(t, client, `
slider_mapping:
  0:
    - master
    - MPV
switches_mapping:
  1: mic
`)
	m, _ = update(t, m, frameTickMsg{})

	m, _ = update(t, m, hardwareMsg{event: SliderMoveEvent{SliderID: 0, PercentValue: 0.5}})
	m, _ = update(t, m, hardwareMsg{event: SwitchEvent{SwitchID: 1, State: true}})

	// unmapped controls do nothing
	m, _ = update(t, m, hardwareMsg{event: SliderMoveEvent{SliderID: 4, PercentValue: 1}})
	_, _ = update(t, m, hardwareMsg{event: SwitchEvent{SwitchID: 0, State: true}})

	client.AssertExpectations(t)
	client.AssertNumberOfCalls(t, "SetVolume", 1)
	client.AssertNotCalled(t, "SetMute", mock.Anything, mock.Anything)
}

func TestUI_Quit(t *testing.T) {
	m := newTestUI(t, &mockClient{}, "")

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestUI_View(t *testing.T) {
	client := &mockClient{}
	client.On("ListStreams").Return([]StreamSnapshot{{ID: 2, DisplayName: "mpv", VolumeLevel: MaxVolume / 2, Muted: true}}, nil).Once()
	client.On("ListStreams").Return(nil, ErrConnectionFailure).Once()
	expectMainChannels(client, MainChannelState{VolumeLevel: MaxVolume}, MainChannelState{})

	m := newTestUI(t, client, "")
	m, _ = update(t, m, frameTickMsg{})

	view := m.View()
	assert.Contains(t, view, "Output")
	assert.Contains(t, view, "mpv")
	assert.Contains(t, view, "100%")
	assert.Contains(t, view, "[x] Mute")
	assert.NotContains(t, view, "stale")

	m, _ = update(t, m, refreshMsg{})
	assert.Contains(t, m.View(), "stale")
	assert.Contains(t, m.View(), "mpv", "the last known list is still shown")
}

func TestRenderSlider(t *testing.T) {
	assert.Contains(t, renderSlider(MaxVolume/2, 10, nord14), "[=====|-----]  50%")
	assert.Contains(t, renderSlider(0, 4, nord14), "[|----]   0%")
	assert.Contains(t, renderSlider(MaxVolume, 4, nord14), "[====|] 100%")
}
