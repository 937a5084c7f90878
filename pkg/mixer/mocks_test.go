package mixer

import (
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// mockClient implements AudioServerClient for tests
type mockClient struct {
	mock.Mock
}

func (m *mockClient) ListStreams() ([]StreamSnapshot, error) {
	args := m.Called()
	streams, _ := args.Get(0).([]StreamSnapshot)
	return streams, args.Error(1)
}

func (m *mockClient) SetVolume(id uint32, level uint32) error {
	return m.Called(id, level).Error(0)
}

func (m *mockClient) SetMute(id uint32, muted bool) error {
	return m.Called(id, muted).Error(0)
}

func (m *mockClient) MainVolume(kind ChannelKind) (MainChannelState, error) {
	args := m.Called(kind)
	state, _ := args.Get(0).(MainChannelState)
	return state, args.Error(1)
}

func (m *mockClient) SetMainVolume(kind ChannelKind, level uint32) error {
	return m.Called(kind, level).Error(0)
}

func (m *mockClient) SetMainMute(kind ChannelKind, muted bool) error {
	return m.Called(kind, muted).Error(0)
}

func (m *mockClient) Close() error {
	return m.Called().Error(0)
}

// mockNotifier records notifications instead of showing them
type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(title string, message string) {
	m.Called(title, message)
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
