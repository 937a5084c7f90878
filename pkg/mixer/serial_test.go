package mixer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSerial(t *testing.T, yaml string) (*SerialIO, *[]HardwareEvent) {
	t.Helper()

	events := []HardwareEvent{}
	sio, err := NewSerialIO(newTestConfig(t, yaml), &mockNotifier{}, testLogger(), true, func(e HardwareEvent) {
		events = append(events, e)
	})
	require.NoError(t, err)

	return sio, &events
}

func TestSerialIO_HandleLine(t *testing.T) {
	sio, events := newTestSerial(t, "invert_sliders: true\n")

	sio.handleLine(sio.logger, "[I][app:100]: Running through setup()\n")
	sio.handleLine(sio.logger, `[D][json:12]: {"id":"sensor-pot1","value":20}`+"\n")
	sio.handleLine(sio.logger, `{"id":"binary_sensor-sw0","state":"ON"}`+"\r\n")
	sio.handleLine(sio.logger, `{"id":"sensor-pot1","value":"bogus"}`+"\n")

	require.Len(t, *events, 2)
	assert.InDelta(t, 0.8, (*events)[0].(SliderMoveEvent).PercentValue, 0.0001)
	assert.Equal(t, SwitchEvent{SwitchID: 0, State: true}, (*events)[1])
}

func TestSerialIO_RunDeliversLinesUntilEOF(t *testing.T) {
	sio, events := newTestSerial(t, "")

	input := strings.NewReader(
		`{"id":"sensor-pot0","value":50}` + "\n" +
			`{"id":"sensor-pot2","value":100}` + "\n")

	stopped, err := sio.run(sio.logger, input)

	assert.False(t, stopped)
	assert.Error(t, err)
	assert.Equal(t, []HardwareEvent{
		SliderMoveEvent{SliderID: 0, PercentValue: 0.5},
		SliderMoveEvent{SliderID: 2, PercentValue: 1},
	}, *events)
}

func TestSerialIO_StartWithoutPort(t *testing.T) {
	sio, _ := newTestSerial(t, "")

	err := sio.Start()
	assert.ErrorIs(t, err, errSerialNotConfigured)
	assert.False(t, sio.IsConnected())
	assert.True(t, sio.WaitForStop(10*time.Millisecond))

	// nothing to stop
	assert.NotPanics(t, sio.Stop)
}
