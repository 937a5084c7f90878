// Package mixer provides a terminal volume mixer for a PulseAudio compatible
// sound server, optionally driven by a hardware slider controller
package mixer

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/stalexteam/deej_mixer/pkg/mixer/util"
)

const (
	// Delay between stopping the serial reader and starting it again on config reload
	configReloadStopDelay = 50 * time.Millisecond

	// Timeout for waiting for the serial reader to stop
	serialStopTimeout = 3 * time.Second
)

// deviceLister is implemented by clients that can enumerate devices
type deviceLister interface {
	Devices() ([]AudioDeviceInfo, error)
}

// Mixer is the main entity managing access to all sub-components
type Mixer struct {
	logger   *zap.SugaredLogger
	notifier Notifier
	config   *CanonicalConfig
	client   AudioServerClient
	core     *Core
	serial   *SerialIO
	relay    *StateRelay

	program      *tea.Program
	programMutex sync.Mutex

	version  string
	verbose  bool
	withTray bool
	stopping sync.Once
}

// NewMixer creates a Mixer instance
func NewMixer(logger *zap.SugaredLogger, verbose bool) (*Mixer, error) {
	logger = logger.Named("mixer")

	notifier, err := NewToastNotifier(logger)
	if err != nil {
		logger.Errorw("Failed to create ToastNotifier", "error", err)
		return nil, fmt.Errorf("create new ToastNotifier: %w", err)
	}

	config, err := NewConfig(logger, notifier)
	if err != nil {
		logger.Errorw("Failed to create Config", "error", err)
		return nil, fmt.Errorf("create new Config: %w", err)
	}

	m := &Mixer{
		logger:   logger,
		notifier: notifier,
		config:   config,
		verbose:  verbose,
	}

	serial, err := NewSerialIO(config, notifier, logger, verbose, m.handleHardwareEvent)
	if err != nil {
		logger.Errorw("Failed to create SerialIO", "error", err)
		return nil, fmt.Errorf("create new SerialIO: %w", err)
	}
	m.serial = serial

	relay, err := NewStateRelay(logger)
	if err != nil {
		logger.Errorw("Failed to create StateRelay", "error", err)
		return nil, fmt.Errorf("create new StateRelay: %w", err)
	}
	m.relay = relay

	logger.Debug("Created mixer instance")

	return m, nil
}

// Initialize connects to the sound server and runs the UI until the user quits
func (m *Mixer) Initialize() error {
	m.logger.Debug("Initializing")

	// load the config for the first time
	if err := m.config.Load(); err != nil {
		m.logger.Errorw("Failed to load config during initialization", "error", err)
		return fmt.Errorf("load config during init: %w", err)
	}

	settings := m.config.Current()

	client, err := NewPulseClient(m.logger, settings.PulseServer, settings.ClientName)
	if err != nil {
		m.logger.Errorw("Failed to connect to the sound server", "error", err)
		m.notifier.Notify("Can't connect to the sound server!", "Make sure PulseAudio or pipewire-pulse is running.")
		return fmt.Errorf("create pulse client: %w", err)
	}

	m.client = client
	m.core = NewCore(m.logger, client)

	m.logDevices()

	m.setupInterruptHandler()

	if settings.TrayIcon {
		m.logger.Debug("Running with tray icon")
		m.withTray = true
		m.initializeTray(m.run)
	} else {
		m.logger.Debugw("Running without tray icon", "reason", "disabled in config")
		m.run()
	}

	return nil
}

// SetVersion causes the mixer to add a version string to its tray menu if called before Initialize
func (m *Mixer) SetVersion(version string) {
	m.version = version
}

// Verbose returns a boolean indicating whether the mixer is running in verbose mode
func (m *Mixer) Verbose() bool {
	return m.verbose
}

func (m *Mixer) logDevices() {
	lister, ok := m.client.(deviceLister)
	if !ok {
		return
	}

	devices, err := lister.Devices()
	if err != nil {
		m.logger.Warnw("Failed to list audio devices", "error", err)
		return
	}

	for _, device := range devices {
		m.logger.Infow("Found audio device", "name", device.Name, "type", device.Type, "description", device.Description)
	}
}

func (m *Mixer) setupInterruptHandler() {
	interruptChannel := util.SetupCloseHandler()

	go func() {
		signal := <-interruptChannel
		m.logger.Debugw("Interrupted", "signal", signal)
		m.signalStop()
	}()
}

func (m *Mixer) run() {
	m.logger.Info("Run loop starting")

	// watch the config file for changes
	go m.config.WatchConfigFileChanges()
	m.setupOnConfigReload()

	settings := m.config.Current()

	if err := m.relay.Start(settings.ConnectionInfo.SSE_RELAY_PORT); err != nil {
		m.logger.Warnw("Failed to start state relay", "error", err)
	}

	go m.startSerial()

	program := tea.NewProgram(newUIModel(m.logger, m.core, m.config, m.relay), tea.WithAltScreen())

	m.programMutex.Lock()
	m.program = program
	m.programMutex.Unlock()

	exitCode := 0

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		m.logger.Errorw("UI exited with error", "error", err)
		exitCode = 1
	}

	m.logger.Debug("UI finished, terminating")

	if err := m.stop(); err != nil {
		m.logger.Warnw("Failed to stop mixer", "error", err)
		exitCode = 1
	}

	os.Exit(exitCode)
}

// send forwards msg to the UI thread, if the UI is running
func (m *Mixer) send(msg tea.Msg) {
	m.programMutex.Lock()
	program := m.program
	m.programMutex.Unlock()

	if program != nil {
		program.Send(msg)
	}
}

func (m *Mixer) handleHardwareEvent(event HardwareEvent) {
	m.send(hardwareMsg{event: event})
}

func (m *Mixer) signalStop() {
	m.stopping.Do(func() {
		m.logger.Debug("Signalling UI to quit")

		m.programMutex.Lock()
		program := m.program
		m.programMutex.Unlock()

		if program == nil {
			os.Exit(0)
		}

		program.Quit()
	})
}

func (m *Mixer) stop() error {
	m.logger.Info("Stopping")

	m.config.StopWatchingConfigFile()

	m.serial.Stop()
	if !m.serial.WaitForStop(serialStopTimeout) {
		m.logger.Warn("Serial reader did not stop within timeout, proceeding anyway")
	}

	m.relay.Stop()

	if err := m.client.Close(); err != nil {
		m.logger.Errorw("Failed to release pulse client", "error", err)
		return fmt.Errorf("release pulse client: %w", err)
	}

	if m.withTray {
		m.stopTray()
	}

	// attempt to sync on exit - this won't necessarily work but can't harm
	m.logger.Sync()

	return nil
}

func (m *Mixer) startSerial() {
	settings := m.config.Current()

	if settings.ConnectionInfo.SERIAL_Port == "" || settings.ConnectionInfo.SERIAL_BaudRate == 0 {
		m.logger.Debug("No serial port configured, hardware input disabled")
		return
	}

	if err := m.serial.Start(); err != nil {
		m.logger.Warnw("Failed to start first-time serial connection", "error", err)

		port := settings.ConnectionInfo.SERIAL_Port

		if errors.Is(err, os.ErrPermission) {
			m.notifier.Notify(fmt.Sprintf("Can't connect to %s!", port), "This serial port is busy, make sure to close any serial monitor or other mixer instance.")
		} else if errors.Is(err, os.ErrNotExist) {
			m.notifier.Notify(fmt.Sprintf("Can't connect to %s!", port), "This serial port doesn't exist, check your configuration and make sure it's set correctly.")
		}
	}
}

// setupOnConfigReload applies connection changes from a reloaded config
func (m *Mixer) setupOnConfigReload() {
	configReloadedChannel := m.config.SubscribeToChanges()

	pulseServer := m.config.Current().PulseServer

	go func() {
		for {
			if _, ok := <-configReloadedChannel; !ok {
				return
			}

			settings := m.config.Current()

			if settings.PulseServer != pulseServer {
				m.logger.Infow("Sound server address changed, restart the mixer to apply it",
					"old", pulseServer, "new", settings.PulseServer)
			}

			if port := settings.ConnectionInfo.SSE_RELAY_PORT; port > 0 {
				if err := m.relay.Start(port); err != nil {
					m.logger.Warnw("Failed to restart state relay", "error", err)
				}
			} else {
				m.relay.Stop()
			}

			currentPort, currentBaud := m.serial.PortOptions()
			if currentPort == "" && settings.ConnectionInfo.SERIAL_Port == "" {
				continue
			}

			if m.serial.IsConnected() &&
				currentPort == settings.ConnectionInfo.SERIAL_Port &&
				currentBaud == uint(settings.ConnectionInfo.SERIAL_BaudRate) {
				continue
			}

			m.logger.Info("Serial connection parameters changed, renewing connection")

			m.serial.Stop()
			if !m.serial.WaitForStop(serialStopTimeout) {
				m.logger.Warn("Serial reader did not stop within timeout, proceeding anyway")
			}

			<-time.After(configReloadStopDelay)
			m.startSerial()
		}
	}()
}
