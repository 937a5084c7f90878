package mixer

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/jfreymuth/pulse/proto"
	"go.uber.org/zap"
)

const (
	propApplicationName   = "application.name"
	propDeviceDescription = "device.description"

	// used when a stream's channel count isn't known yet; the server scales a mono volume to all channels
	fallbackChannels = 1
)

// endpoint identifies the current default sink or source
type endpoint struct {
	index    uint32
	channels byte
}

type paClient struct {
	logger *zap.SugaredLogger

	client *proto.Client
	conn   net.Conn

	// channel counts learned from the last stream listing, by sink input index
	mu             sync.Mutex
	streamChannels map[uint32]byte
	endpoints      map[ChannelKind]endpoint
}

// NewPulseClient connects to a PulseAudio (or pipewire-pulse) server.
// server may be empty to use the default server of the session
func NewPulseClient(logger *zap.SugaredLogger, server string, clientName string) (AudioServerClient, error) {
	logger = logger.Named("pulse")

	client, conn, err := proto.Connect(server)
	if err != nil {
		logger.Warnw("Failed to establish PulseAudio connection", "server", server, "error", err)
		return nil, fmt.Errorf("establish PulseAudio connection: %w: %v", ErrConnectionFailure, err)
	}

	request := proto.SetClientName{
		Props: proto.PropList{
			propApplicationName: proto.PropListString(clientName),
		},
	}
	reply := proto.SetClientNameReply{}

	if err := client.Request(&request, &reply); err != nil {
		conn.Close()
		logger.Warnw("Failed to announce client name", "error", err)
		return nil, fmt.Errorf("set client name: %w", classifyError(err))
	}

	pc := &paClient{
		logger:         logger,
		client:         client,
		conn:           conn,
		streamChannels: make(map[uint32]byte),
		endpoints:      make(map[ChannelKind]endpoint),
	}

	logger.Debugw("Created PulseAudio client instance", "server", server)

	return pc, nil
}

func (pc *paClient) ListStreams() ([]StreamSnapshot, error) {
	request := proto.GetSinkInputInfoList{}
	reply := proto.GetSinkInputInfoListReply{}

	if err := pc.client.Request(&request, &reply); err != nil {
		pc.logger.Debugw("Failed to get sink input list", "error", err)
		return nil, fmt.Errorf("get sink input list: %w", classifyError(err))
	}

	streams, channels := streamsFromSinkInputs(pc.logger, reply)

	pc.mu.Lock()
	pc.streamChannels = channels
	pc.mu.Unlock()

	return streams, nil
}

// streamsFromSinkInputs keeps the sink inputs that belong to a client, in server
// order, along with the channel count of each kept stream. Malformed entries are skipped
func streamsFromSinkInputs(logger *zap.SugaredLogger, reply proto.GetSinkInputInfoListReply) ([]StreamSnapshot, map[uint32]byte) {
	streams := make([]StreamSnapshot, 0, len(reply))
	channels := make(map[uint32]byte, len(reply))

	for _, info := range reply {
		if info == nil || info.ClientIndex == proto.Undefined {
			continue
		}

		stream, err := streamFromSinkInput(info)
		if err != nil {
			logger.Debugw("Skipping malformed sink input", "error", err)
			continue
		}

		streams = append(streams, stream)
		channels[stream.ID] = info.Channels
	}

	return streams, channels
}

func (pc *paClient) SetVolume(id uint32, level uint32) error {
	pc.mu.Lock()
	channels, ok := pc.streamChannels[id]
	pc.mu.Unlock()

	if !ok || channels == 0 {
		channels = fallbackChannels
	}

	request := proto.SetSinkInputVolume{
		SinkInputIndex: id,
		ChannelVolumes: createChannelVolumes(channels, clampLevel(level)),
	}

	if err := pc.client.Request(&request, nil); err != nil {
		return fmt.Errorf("set sink input %d volume: %w", id, classifyError(err))
	}

	return nil
}

func (pc *paClient) SetMute(id uint32, muted bool) error {
	request := proto.SetSinkInputMute{
		SinkInputIndex: id,
		Mute:           muted,
	}

	if err := pc.client.Request(&request, nil); err != nil {
		return fmt.Errorf("set sink input %d mute: %w", id, classifyError(err))
	}

	return nil
}

func (pc *paClient) MainVolume(kind ChannelKind) (MainChannelState, error) {
	var (
		state MainChannelState
		ep    endpoint
	)

	if kind == Source {
		request := proto.GetSourceInfo{SourceIndex: proto.Undefined}
		reply := proto.GetSourceInfoReply{}

		if err := pc.client.Request(&request, &reply); err != nil {
			return state, fmt.Errorf("get default source info: %w", classifyError(err))
		}

		state, ep = sourceState(&reply)
	} else {
		request := proto.GetSinkInfo{SinkIndex: proto.Undefined}
		reply := proto.GetSinkInfoReply{}

		if err := pc.client.Request(&request, &reply); err != nil {
			return state, fmt.Errorf("get default sink info: %w", classifyError(err))
		}

		state, ep = sinkState(&reply)
	}

	pc.mu.Lock()
	pc.endpoints[kind] = ep
	pc.mu.Unlock()

	return state, nil
}

func (pc *paClient) SetMainVolume(kind ChannelKind, level uint32) error {
	ep, err := pc.endpoint(kind)
	if err != nil {
		return err
	}

	volumes := createChannelVolumes(ep.channels, clampLevel(level))
	var request proto.RequestArgs

	if kind == Source {
		request = &proto.SetSourceVolume{
			SourceIndex:    ep.index,
			ChannelVolumes: volumes,
		}
	} else {
		request = &proto.SetSinkVolume{
			SinkIndex:      ep.index,
			ChannelVolumes: volumes,
		}
	}

	if err := pc.client.Request(request, nil); err != nil {
		return fmt.Errorf("set %s volume: %w", kind, classifyError(err))
	}

	return nil
}

func (pc *paClient) SetMainMute(kind ChannelKind, muted bool) error {
	ep, err := pc.endpoint(kind)
	if err != nil {
		return err
	}

	var request proto.RequestArgs

	if kind == Source {
		request = &proto.SetSourceMute{
			SourceIndex: ep.index,
			Mute:        muted,
		}
	} else {
		request = &proto.SetSinkMute{
			SinkIndex: ep.index,
			Mute:      muted,
		}
	}

	if err := pc.client.Request(request, nil); err != nil {
		return fmt.Errorf("set %s mute: %w", kind, classifyError(err))
	}

	return nil
}

// Devices lists sinks and non-monitor sources
func (pc *paClient) Devices() ([]AudioDeviceInfo, error) {
	devices := []AudioDeviceInfo{}

	sinkRequest := proto.GetSinkInfoList{}
	sinkReply := proto.GetSinkInfoListReply{}
	if err := pc.client.Request(&sinkRequest, &sinkReply); err != nil {
		return nil, fmt.Errorf("get sink list: %w", classifyError(err))
	}

	for _, sink := range sinkReply {
		if sink == nil {
			continue
		}

		name := sink.SinkName
		if name == "" {
			name = fmt.Sprintf("Sink %d", sink.SinkIndex)
		}

		devices = append(devices, AudioDeviceInfo{
			Name:        name,
			Type:        "Output",
			Description: propString(sink.Properties, propDeviceDescription),
		})
	}

	sourceRequest := proto.GetSourceInfoList{}
	sourceReply := proto.GetSourceInfoListReply{}
	if err := pc.client.Request(&sourceRequest, &sourceReply); err != nil {
		return nil, fmt.Errorf("get source list: %w", classifyError(err))
	}

	for _, source := range sourceReply {
		if source == nil {
			continue
		}

		// monitors of sinks aren't real inputs
		if source.MonitorSourceIndex != proto.Undefined {
			continue
		}

		name := source.SourceName
		if name == "" {
			name = fmt.Sprintf("Source %d", source.SourceIndex)
		}

		devices = append(devices, AudioDeviceInfo{
			Name:        name,
			Type:        "Input",
			Description: propString(source.Properties, propDeviceDescription),
		})
	}

	return devices, nil
}

func (pc *paClient) Close() error {
	if err := pc.conn.Close(); err != nil {
		pc.logger.Warnw("Failed to close PulseAudio connection", "error", err)
		return fmt.Errorf("close PulseAudio connection: %w", err)
	}

	pc.logger.Debug("Released PulseAudio client instance")

	return nil
}

// endpoint returns the cached default endpoint, asking the server if it isn't known yet
func (pc *paClient) endpoint(kind ChannelKind) (endpoint, error) {
	pc.mu.Lock()
	ep, ok := pc.endpoints[kind]
	pc.mu.Unlock()

	if ok {
		return ep, nil
	}

	if _, err := pc.MainVolume(kind); err != nil {
		return endpoint{}, err
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()

	return pc.endpoints[kind], nil
}

func sinkState(reply *proto.GetSinkInfoReply) (MainChannelState, endpoint) {
	state := MainChannelState{VolumeLevel: parseChannelVolumes(reply.ChannelVolumes), Muted: reply.Mute}
	return state, endpoint{index: reply.SinkIndex, channels: reply.Channels}
}

func sourceState(reply *proto.GetSourceInfoReply) (MainChannelState, endpoint) {
	state := MainChannelState{VolumeLevel: parseChannelVolumes(reply.ChannelVolumes), Muted: reply.Mute}
	return state, endpoint{index: reply.SourceIndex, channels: reply.Channels}
}

func streamFromSinkInput(info *proto.GetSinkInputInfoReply) (StreamSnapshot, error) {
	name := propString(info.Properties, propApplicationName)
	if name == "" {
		return StreamSnapshot{}, &MissingFieldError{StreamID: info.SinkInputIndex, Field: propApplicationName}
	}

	return StreamSnapshot{
		ID:          info.SinkInputIndex,
		DisplayName: name,
		VolumeLevel: parseChannelVolumes(info.ChannelVolumes),
		Muted:       info.Muted,
	}, nil
}

func propString(props proto.PropList, key string) string {
	if props == nil {
		return ""
	}

	entry, ok := props[key]
	if !ok {
		return ""
	}

	return entry.String()
}

// classifyError sorts a request error into the connection/operation taxonomy
func classifyError(err error) error {
	var netErr net.Error

	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrConnectionFailure, err)
	}

	return fmt.Errorf("%w: %v", ErrOperationCancelled, err)
}

func clampLevel(level uint32) uint32 {
	if level > MaxVolume {
		return MaxVolume
	}
	return level
}

func createChannelVolumes(channels byte, level uint32) []uint32 {
	volumes := make([]uint32, channels)

	for i := range volumes {
		volumes[i] = level
	}

	return volumes
}

func parseChannelVolumes(volumes []uint32) uint32 {
	if len(volumes) == 0 {
		return 0
	}

	var level uint64

	for _, volume := range volumes {
		level += uint64(volume)
	}

	return uint32(level / uint64(len(volumes)))
}
