package mixer

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Settings is a point-in-time copy of every configurable value
type Settings struct {
	RefreshInterval time.Duration
	VolumeStep      int

	PulseServer string
	ClientName  string

	SliderMapping   *targetMap
	SwitchesMapping *targetMap
	InvertSliders   bool

	ConnectionInfo struct {
		SERIAL_Port     string
		SERIAL_BaudRate int
		SSE_RELAY_PORT  int
	}

	TrayIcon bool
}

// CanonicalConfig provides application-wide access to configuration fields,
// as well as loading/file watching logic for the mixer's configuration file
type CanonicalConfig struct {
	logger             *zap.SugaredLogger
	notifier           Notifier
	stopWatcherChannel chan bool

	lock     sync.RWMutex
	settings Settings

	consumersLock   sync.Mutex
	reloadConsumers []chan bool

	userConfig *viper.Viper
}

const (
	userConfigFilepath = "config.yaml"

	userConfigName = "config"
	userConfigPath = "."

	configType = "yaml"

	configKey_RefreshInterval = "refresh_interval_ms"
	configKey_VolumeStep      = "volume_step"
	configKey_PulseServer     = "pulse_server"
	configKey_ClientName      = "client_name"
	configKey_SliderMapping   = "slider_mapping"
	configKey_SwitchesMapping = "switches_mapping"
	configKey_InvertSliders   = "invert_sliders"
	configKey_TrayIcon        = "tray_icon"

	configKey_SERIAL_PORT     = "SERIAL_Port"
	configKey_SERIAL_BaudRate = "SERIAL_BaudRate"
	configKey_SSE_RELAY_PORT  = "SSE_RELAY_PORT"

	default_RefreshInterval = 250
	default_VolumeStep      = 5
	default_ClientName      = "mixer"

	minRefreshInterval = 20
)

// NewConfig creates a config instance for the mixer and sets up viper for its config file
func NewConfig(logger *zap.SugaredLogger, notifier Notifier) (*CanonicalConfig, error) {
	logger = logger.Named("config")

	cc := &CanonicalConfig{
		logger:             logger,
		notifier:           notifier,
		reloadConsumers:    []chan bool{},
		stopWatcherChannel: make(chan bool),
	}

	userConfig := viper.New()
	userConfig.SetConfigName(userConfigName)
	userConfig.SetConfigType(configType)
	userConfig.AddConfigPath(userConfigPath)

	setConfigDefaults(userConfig)

	cc.userConfig = userConfig

	// usable before the first Load
	cc.settings = settingsFromViper(logger, userConfig)

	logger.Debug("Created config instance")

	return cc, nil
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault(configKey_RefreshInterval, default_RefreshInterval)
	v.SetDefault(configKey_VolumeStep, default_VolumeStep)
	v.SetDefault(configKey_PulseServer, "")
	v.SetDefault(configKey_ClientName, default_ClientName)
	v.SetDefault(configKey_SliderMapping, map[string][]string{})
	v.SetDefault(configKey_SwitchesMapping, map[string][]string{})
	v.SetDefault(configKey_InvertSliders, false)
	v.SetDefault(configKey_TrayIcon, false)
	v.SetDefault(configKey_SERIAL_PORT, "")
	v.SetDefault(configKey_SERIAL_BaudRate, 0)
	v.SetDefault(configKey_SSE_RELAY_PORT, 0)
}

// Load reads the config file from disk and tries to parse it.
// A missing file is fine, defaults apply
func (cc *CanonicalConfig) Load() error {
	cc.logger.Debugw("Loading config", "path", userConfigFilepath)

	if err := cc.userConfig.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError

		if errors.As(err, &notFound) {
			cc.logger.Infow("Config file not found, using defaults", "path", userConfigFilepath)
		} else {
			cc.logger.Warnw("Viper failed to read user config", "error", err)
			if strings.Contains(err.Error(), "yaml:") {
				cc.notifier.Notify("Invalid configuration!",
					fmt.Sprintf("Please make sure %s is in a valid YAML format.", userConfigFilepath))
			} else {
				cc.notifier.Notify("Error loading configuration!", "Please check the mixer's logs for more details.")
			}
			return fmt.Errorf("read user config: %w", err)
		}
	}

	settings := settingsFromViper(cc.logger, cc.userConfig)

	cc.lock.Lock()
	cc.settings = settings
	cc.lock.Unlock()

	cc.logger.Info("Loaded config successfully")
	cc.logger.Infow("Config values",
		"refreshInterval", settings.RefreshInterval,
		"volumeStep", settings.VolumeStep,
		"pulseServer", settings.PulseServer,
		"sliderMapping", settings.SliderMapping,
		"switchesMapping", settings.SwitchesMapping,
		"connectionInfo", settings.ConnectionInfo,
		"invertSliders", settings.InvertSliders,
		"trayIcon", settings.TrayIcon,
	)

	return nil
}

// Current returns the settings as of the last successful load
func (cc *CanonicalConfig) Current() Settings {
	cc.lock.RLock()
	defer cc.lock.RUnlock()

	return cc.settings
}

// SubscribeToChanges allows external components to receive updates when the config is reloaded
func (cc *CanonicalConfig) SubscribeToChanges() chan bool {
	c := make(chan bool, 1)

	cc.consumersLock.Lock()
	cc.reloadConsumers = append(cc.reloadConsumers, c)
	cc.consumersLock.Unlock()

	return c
}

// WatchConfigFileChanges starts watching for configuration file changes
// and attempts reloading the config when they happen
func (cc *CanonicalConfig) WatchConfigFileChanges() {
	cc.logger.Debugw("Starting to watch user config file for changes", "path", userConfigFilepath)

	const (
		minTimeBetweenReloadAttempts = time.Millisecond * 500
		delayBetweenEventAndReload   = time.Millisecond * 50
	)

	lastAttemptedReload := time.Now()

	// establish watch using viper as opposed to doing it ourselves, though our internal cooldown is still required
	cc.userConfig.WatchConfig()
	cc.userConfig.OnConfigChange(func(event fsnotify.Event) {

		// when we get a write event...
		if event.Op&fsnotify.Write == fsnotify.Write {

			now := time.Now()

			// ... check if it's not a duplicate (many editors will write to a file twice)
			if lastAttemptedReload.Add(minTimeBetweenReloadAttempts).Before(now) {

				// and attempt reload if appropriate
				cc.logger.Debugw("Config file modified, attempting reload", "event", event)

				// wait a bit to let the editor actually flush the new file contents to disk
				<-time.After(delayBetweenEventAndReload)

				if err := cc.Load(); err != nil {
					cc.logger.Warnw("Failed to reload config file", "error", err)
				} else {
					cc.logger.Info("Reloaded config successfully")
					cc.notifier.Notify("Configuration reloaded!", "Your changes have been applied.")

					cc.onConfigReloaded()
				}

				// don't forget to update the time
				lastAttemptedReload = now
			}
		}
	})

	// wait till they stop us
	<-cc.stopWatcherChannel
	cc.logger.Debug("Stopping user config file watcher")
	cc.userConfig.OnConfigChange(func(fsnotify.Event) {})
}

// StopWatchingConfigFile signals our filesystem watcher to stop
func (cc *CanonicalConfig) StopWatchingConfigFile() {
	select {
	case cc.stopWatcherChannel <- true:
	default:
		cc.logger.Debug("Config watcher not running")
	}

	// a reload racing with the watcher teardown finds no consumers left
	cc.consumersLock.Lock()
	defer cc.consumersLock.Unlock()

	for _, ch := range cc.reloadConsumers {
		close(ch)
	}
	cc.reloadConsumers = nil
}

func settingsFromViper(logger *zap.SugaredLogger, v *viper.Viper) Settings {
	var s Settings

	interval := v.GetInt(configKey_RefreshInterval)
	if interval < minRefreshInterval {
		logger.Warnw("Refresh interval too small, raising it", "value", interval, "min", minRefreshInterval)
		interval = minRefreshInterval
	}
	s.RefreshInterval = time.Duration(interval) * time.Millisecond

	s.VolumeStep = v.GetInt(configKey_VolumeStep)
	if s.VolumeStep < 1 || s.VolumeStep > 100 {
		logger.Warnw("Volume step out of range, using default", "value", s.VolumeStep)
		s.VolumeStep = default_VolumeStep
	}

	s.PulseServer = v.GetString(configKey_PulseServer)
	s.ClientName = v.GetString(configKey_ClientName)
	if s.ClientName == "" {
		s.ClientName = default_ClientName
	}

	s.SliderMapping = targetMapFromConfig(v.GetStringMapStringSlice(configKey_SliderMapping))
	s.SwitchesMapping = targetMapFromConfig(v.GetStringMapStringSlice(configKey_SwitchesMapping))
	s.InvertSliders = v.GetBool(configKey_InvertSliders)
	s.TrayIcon = v.GetBool(configKey_TrayIcon)

	s.ConnectionInfo.SERIAL_Port = v.GetString(configKey_SERIAL_PORT)
	s.ConnectionInfo.SERIAL_BaudRate = v.GetInt(configKey_SERIAL_BaudRate)
	s.ConnectionInfo.SSE_RELAY_PORT = v.GetInt(configKey_SSE_RELAY_PORT)

	return s
}

func (cc *CanonicalConfig) onConfigReloaded() {
	cc.logger.Debug("Notifying consumers about configuration reload")

	cc.consumersLock.Lock()
	defer cc.consumersLock.Unlock()

	for _, consumer := range cc.reloadConsumers {
		select {
		case consumer <- true:
		default:
			// a reload is already pending for this consumer
		}
	}
}
