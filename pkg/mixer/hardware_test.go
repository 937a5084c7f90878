package mixer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPayload(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
		ok   bool
	}{
		{"bare", `{"id":"sensor-pot1","value":40}` + "\r\n", `{"id":"sensor-pot1","value":40}`, true},
		{"log tag", "[12:00:01][D][json:042]: {\"id\": \"sensor-pot2\", \"value\": 73}\n", `{"id": "sensor-pot2", "value": 73}`, true},
		{"ansi colored", "\x1b[0;36m[D][json:7]: {\"id\":\"binary_sensor-sw0\",\"state\":\"ON\"}\x1b[0m", `{"id":"binary_sensor-sw0","state":"ON"}`, true},
		{"noise", "[I][wifi:300]: connected", "", false},
		{"empty", "\n", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractPayload(tt.line)

			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, string(got))
			}
		})
	}
}

func TestParseStateEvent_Slider(t *testing.T) {
	event, err := ParseStateEvent([]byte(`{"id":"sensor-pot2","value":81}`), false)
	require.NoError(t, err)

	move, ok := event.(SliderMoveEvent)
	require.True(t, ok)
	assert.Equal(t, 2, move.SliderID)
	assert.InDelta(t, 0.81, move.PercentValue, 0.0001)
}

func TestParseStateEvent_SliderClampsAndInverts(t *testing.T) {
	event, err := ParseStateEvent([]byte(`{"id":"sensor-pot0","value":130}`), false)
	require.NoError(t, err)
	assert.Equal(t, SliderMoveEvent{SliderID: 0, PercentValue: 1}, event)

	event, err = ParseStateEvent([]byte(`{"id":"sensor-pot0","value":-4}`), false)
	require.NoError(t, err)
	assert.Equal(t, SliderMoveEvent{SliderID: 0, PercentValue: 0}, event)

	event, err = ParseStateEvent([]byte(`{"id":"sensor-pot3","value":25}`), true)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, event.(SliderMoveEvent).PercentValue, 0.0001)
}

func TestParseStateEvent_Switch(t *testing.T) {
	tests := []struct {
		name string
		data string
		want SwitchEvent
	}{
		{"state on", `{"id":"binary_sensor-sw1","state":"ON"}`, SwitchEvent{SwitchID: 1, State: true}},
		{"state off", `{"id":"binary_sensor-sw1","state":"off"}`, SwitchEvent{SwitchID: 1, State: false}},
		{"bool value", `{"id":"binary_sensor-sw12","value":true}`, SwitchEvent{SwitchID: 12, State: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := ParseStateEvent([]byte(tt.data), false)

			require.NoError(t, err)
			assert.Equal(t, tt.want, event)
		})
	}
}

func TestParseStateEvent_Errors(t *testing.T) {
	for _, data := range []string{
		`not json`,
		`{"id":"sensor-pot1"}`,
		`{"id":"sensor-pot1","value":"loud"}`,
		`{"id":"binary_sensor-sw1"}`,
		`{"id":"text_sensor-version","value":"1.2"}`,
		`{}`,
	} {
		_, err := ParseStateEvent([]byte(data), false)
		assert.Error(t, err, data)
	}
}

func TestResolveSliderIntents(t *testing.T) {
	state := State{
		Streams: []StreamRecord{
			{ID: 1, DisplayName: "Firefox"},
			{ID: 2, DisplayName: "mpv"},
			{ID: 3, DisplayName: "firefox"},
		},
		Slots: []*UiSlot{{}, {}, {}},
	}

	intents := ResolveSliderIntents(state, []string{"master", "firefox", "mic", "spotify"}, 0.5)

	assert.Equal(t, []Intent{
		MainVolumeChanged{Channel: Sink, Level: MaxVolume / 2},
		StreamVolumeChanged{ID: 1, Level: MaxVolume / 2},
		StreamVolumeChanged{ID: 3, Level: MaxVolume / 2},
		MainVolumeChanged{Channel: Source, Level: MaxVolume / 2},
	}, intents)

	assert.Empty(t, ResolveSliderIntents(state, nil, 1))
}

func TestResolveSwitchIntents(t *testing.T) {
	state := State{
		Streams: []StreamRecord{
			{ID: 1, DisplayName: "discord", Muted: true},
			{ID: 2, DisplayName: "Discord"},
		},
		Slots:  []*UiSlot{{}, {}},
		Source: MainChannelState{Muted: true},
	}

	intents := ResolveSwitchIntents(state, []string{"discord", "mic", "master"}, true)

	// targets already in the requested state are left alone
	assert.Equal(t, []Intent{
		StreamMuteToggled{ID: 2, CurrentMuted: false},
		MainMuteToggled{Channel: Sink, CurrentMuted: false},
	}, intents)

	intents = ResolveSwitchIntents(state, []string{"discord", "mic"}, false)
	assert.Equal(t, []Intent{
		StreamMuteToggled{ID: 1, CurrentMuted: true},
		MainMuteToggled{Channel: Source, CurrentMuted: true},
	}, intents)
}

func TestTargetMapFromConfig(t *testing.T) {
	m := targetMapFromConfig(map[string][]string{
		"0":   {"Master", " firefox ", "", "FIREFOX"},
		"2":   {"mic"},
		"bad": {"mpv"},
	})

	targets, ok := m.get(0)
	require.True(t, ok)
	assert.Equal(t, []string{"master", "firefox"}, targets)

	targets, ok = m.get(2)
	require.True(t, ok)
	assert.Equal(t, []string{"mic"}, targets)

	_, ok = m.get(1)
	assert.False(t, ok)

	assert.Equal(t, "<2 controls mapped to 3 targets>", m.String())

	var empty *targetMap
	_, ok = empty.get(0)
	assert.False(t, ok)
}
