package mixer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"go.uber.org/zap"
)

// SerialIO reads control changes from a hardware slider controller over a serial port
type SerialIO struct {
	config   *CanonicalConfig
	notifier Notifier
	logger   *zap.SugaredLogger
	verbose  bool

	onEvent func(HardwareEvent)

	stopChannel chan bool
	mu          sync.Mutex // Protects running, connected, conn, and connOptions
	running     bool
	connected   bool
	connOptions serial.OpenOptions
	conn        io.ReadWriteCloser
}

const (
	// Delay between serial reconnection attempts
	serialRetryDelay = 2 * time.Second

	// timeout between characters before a read operation returns (milliseconds)
	serialInterCharacterTimeout = 50
)

// errSerialNotConfigured is returned by Start when no port is configured
var errSerialNotConfigured = errors.New("serial port or baud rate unset")

// NewSerialIO creates a SerialIO instance that uses the connection info of config.
// onEvent is called on the reader goroutine for every parsed event
func NewSerialIO(config *CanonicalConfig, notifier Notifier, logger *zap.SugaredLogger, verbose bool, onEvent func(HardwareEvent)) (*SerialIO, error) {
	logger = logger.Named("serial")

	sio := &SerialIO{
		config:      config,
		notifier:    notifier,
		logger:      logger,
		verbose:     verbose,
		onEvent:     onEvent,
		stopChannel: make(chan bool),
	}

	logger.Debug("Created serial i/o instance")

	return sio, nil
}

// IsConnected returns whether the serial connection is currently active
func (sio *SerialIO) IsConnected() bool {
	sio.mu.Lock()
	defer sio.mu.Unlock()
	return sio.connected
}

// PortOptions returns the port name and baud rate of the current connection
func (sio *SerialIO) PortOptions() (string, uint) {
	sio.mu.Lock()
	defer sio.mu.Unlock()
	return sio.connOptions.PortName, sio.connOptions.BaudRate
}

// Start attempts to connect to the controller and keeps reconnecting until stopped
func (sio *SerialIO) Start() error {
	sio.mu.Lock()
	if sio.running {
		sio.mu.Unlock()
		return errors.New("serial: already running")
	}
	sio.mu.Unlock()

	if err := sio.connect(sio.logger); err != nil {
		return fmt.Errorf("serial initial connect error: %w", err)
	}

	sio.mu.Lock()
	sio.running = true
	sio.mu.Unlock()

	go func() {
		defer func() {
			sio.mu.Lock()
			sio.running = false
			sio.mu.Unlock()
		}()

		for {
			sio.mu.Lock()
			connected := sio.connected
			conn := sio.conn
			sio.mu.Unlock()

			if connected && conn != nil {
				stopped, err := sio.run(sio.logger, conn)
				if err != nil {
					sio.logger.Warnw("Serial connection lost", "error", err.Error())
				}

				if stopped {
					sio.close(sio.logger)
					return
				}
			}

			sio.close(sio.logger)

			select {
			case <-sio.stopChannel:
				return
			case <-time.After(serialRetryDelay):
			}

			if err := sio.connect(sio.logger); err != nil {
				if errors.Is(err, errSerialNotConfigured) {
					sio.logger.Info("Serial port or baud rate unset in config, giving up on hardware input")
					sio.notifier.Notify("Serial port or baud rate unset in config", "Hardware sliders are disabled.")
					return
				}

				sio.logger.Warnw("Serial reconnect failed", "error", err.Error())
				continue
			}
		}
	}()

	return nil
}

// Stop signals us to shut down our serial connection, if one is active
func (sio *SerialIO) Stop() {
	sio.mu.Lock()
	running := sio.running
	sio.mu.Unlock()

	if !running {
		sio.logger.Debug("Not currently running, nothing to stop")
		return
	}

	sio.logger.Debug("Shutting down serial connection")

	select {
	case sio.stopChannel <- true:
	case <-time.After(serialRetryDelay + time.Second):
		sio.logger.Warn("Serial reader did not acknowledge stop")
	}
}

// WaitForStop waits for the reader goroutine to exit
func (sio *SerialIO) WaitForStop(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		sio.mu.Lock()
		running := sio.running
		sio.mu.Unlock()
		if !running {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func (sio *SerialIO) connect(logger *zap.SugaredLogger) error {
	settings := sio.config.Current()

	if settings.ConnectionInfo.SERIAL_Port == "" || settings.ConnectionInfo.SERIAL_BaudRate <= 0 {
		return errSerialNotConfigured
	}

	sio.mu.Lock()
	if sio.connected {
		sio.mu.Unlock()
		return errors.New("already connected")
	}

	sio.connOptions = serial.OpenOptions{
		PortName:              settings.ConnectionInfo.SERIAL_Port,
		BaudRate:              uint(settings.ConnectionInfo.SERIAL_BaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: serialInterCharacterTimeout,
	}
	options := sio.connOptions
	sio.mu.Unlock()

	logger.Debugw("Attempting serial connection", "port", options.PortName, "baud", options.BaudRate)

	conn, err := serial.Open(options)
	if err != nil {
		errMsg := strings.ToLower(err.Error())
		if errors.Is(err, os.ErrPermission) || strings.Contains(errMsg, "permission denied") {
			logger.Errorw("Serial port access denied - port may be in use by another application",
				"port", options.PortName, "error", err)
			return fmt.Errorf("serial port %s is busy or access denied: %w", options.PortName, err)
		}
		if errors.Is(err, os.ErrNotExist) || strings.Contains(errMsg, "no such file") {
			logger.Errorw("Serial port does not exist - check port name in configuration",
				"port", options.PortName, "error", err)
			return fmt.Errorf("serial port %s does not exist: %w", options.PortName, err)
		}
		logger.Errorw("Failed to open serial port", "port", options.PortName, "error", err)
		return fmt.Errorf("open serial port %s: %w", options.PortName, err)
	}

	sio.mu.Lock()
	sio.conn = conn
	sio.connected = true
	sio.mu.Unlock()

	logger.Infow("Connected to serial port", "port", options.PortName)

	return nil
}

// run pumps lines until the connection drops or a stop is requested.
// It reports whether the stop came from Stop
func (sio *SerialIO) run(logger *zap.SugaredLogger, conn io.Reader) (bool, error) {
	done := make(chan struct{})
	defer close(done)

	lineChannel := sio.readLine(logger, bufio.NewReader(conn), done)

	for {
		select {
		case <-sio.stopChannel:
			return true, nil

		case line, ok := <-lineChannel:
			if !ok {
				return false, errors.New("serial connection lost")
			}
			sio.handleLine(logger, line)
		}
	}
}

func (sio *SerialIO) close(logger *zap.SugaredLogger) {
	sio.mu.Lock()
	conn := sio.conn
	portName := sio.connOptions.PortName
	sio.conn = nil
	sio.connected = false
	sio.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Warnw("Failed to close serial connection", "port", portName, "error", err.Error())
		} else {
			logger.Infow("Serial connection closed", "port", portName)
		}
	}
}

func (sio *SerialIO) readLine(logger *zap.SugaredLogger, reader *bufio.Reader, done <-chan struct{}) chan string {
	ch := make(chan string)

	go func() {
		defer close(ch)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					logger.Infow("Serial read error, connection may be lost", "error", err)
				} else if sio.verbose {
					logger.Debugw("Serial read EOF", "error", err)
				}
				return
			}

			if sio.verbose {
				logger.Debugw("Read new line", "line", line)
			}

			select {
			case ch <- line:
			case <-done:
				return
			}
		}
	}()

	return ch
}

func (sio *SerialIO) handleLine(logger *zap.SugaredLogger, line string) {
	payload, ok := extractPayload(line)
	if !ok {
		return // Not our format
	}

	event, err := ParseStateEvent(payload, sio.config.Current().InvertSliders)
	if err != nil {
		if sio.verbose {
			logger.Debugw("Ignoring controller line", "error", err, "json", string(payload))
		}
		return
	}

	if sio.verbose {
		logger.Debugw("Controller event", "event", event)
	}

	if sio.onEvent != nil {
		sio.onEvent(event)
	}
}
