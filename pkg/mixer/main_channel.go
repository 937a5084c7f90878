package mixer

import (
	"fmt"

	"go.uber.org/zap"
)

// MainChannelSync keeps the sink and source states in line with the server
type MainChannelSync struct {
	logger *zap.SugaredLogger
	client AudioServerClient
}

func newMainChannelSync(logger *zap.SugaredLogger, client AudioServerClient) *MainChannelSync {
	return &MainChannelSync{
		logger: logger.Named("main_channel"),
		client: client,
	}
}

// Refresh overwrites state with the server's current level and mute flag for kind.
// On error state is left as it was
func (s *MainChannelSync) Refresh(kind ChannelKind, state *MainChannelState) error {
	current, err := s.client.MainVolume(kind)
	if err != nil {
		s.logger.Debugw("Failed to refresh main channel", "channel", kind, "error", err)
		return fmt.Errorf("refresh %s: %w", kind, err)
	}

	*state = current
	return nil
}
