package mixer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	eventsource "github.com/stalexteam/eventsource_go"
	"go.uber.org/zap"
)

// StateRelay publishes mixer rows as server-sent events so other tools can follow the mixer
type StateRelay struct {
	logger *zap.SugaredLogger

	// server, stopChannel and currentPort belong to one run and change together
	mu          sync.Mutex
	server      *http.Server
	stopChannel chan bool
	currentPort int

	clientsMutex sync.Mutex
	clients      map[chan eventsource.Event]struct{}

	// Event counter for SSE id field
	eventID int64

	// latest rows handed over by the UI thread, and the rows clients have seen
	rowsMutex sync.Mutex
	latest    []relayRow
	published []relayRow
	pending   chan struct{}
}

// relayRow is the wire form of one mixer row
type relayRow struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value int    `json:"value"`
	Muted bool   `json:"muted"`
}

type relayRemoval struct {
	ID      string `json:"id"`
	Removed bool   `json:"removed"`
}

const (
	// SSE retry timeout in milliseconds
	sseRetryTimeout = 30000

	pingInterval = 10 * time.Second

	relayShutdownTimeout = 5 * time.Second

	// events queued per client before it is dropped as too slow
	clientBufferSize = 64

	sinkRowID   = "sink"
	sourceRowID = "source"
)

// NewStateRelay creates a relay; it serves nothing until Start
func NewStateRelay(logger *zap.SugaredLogger) (*StateRelay, error) {
	logger = logger.Named("relay")

	relay := &StateRelay{
		logger:  logger,
		clients: make(map[chan eventsource.Event]struct{}),
		pending: make(chan struct{}, 1),
	}

	logger.Debug("Created state relay instance")

	return relay, nil
}

// Start serves the event stream on port. A port <= 0 leaves the relay off
func (r *StateRelay) Start(port int) error {
	if port <= 0 {
		r.logger.Debug("SSE_RELAY_PORT not configured, relay will not start")
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.server != nil && r.currentPort == port {
		r.logger.Debugw("Relay already running on the same port", "port", port)
		return nil
	}

	if r.server != nil {
		r.logger.Infow("Relay port changed, restarting", "old_port", r.currentPort, "new_port", port)
		r.stopLocked()
	}

	stopChannel := make(chan bool)

	mux := http.NewServeMux()
	// every path serves the same stream
	mux.Handle("/", r.handler(stopChannel))

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	r.server = server
	r.stopChannel = stopChannel
	r.currentPort = port

	go func() {
		r.logger.Infow("Starting state relay", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Errorw("State relay server error", "error", err)
			r.stopServer(server)
		}
	}()

	go r.broadcastLoop(stopChannel)

	return nil
}

// Stop closes every client connection and shuts the server down
func (r *StateRelay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopLocked()
}

// stopServer stops the relay only if server is still the one serving
func (r *StateRelay) stopServer(server *http.Server) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.server != server {
		return
	}

	r.stopLocked()
}

func (r *StateRelay) stopLocked() {
	if r.server == nil {
		return
	}

	r.logger.Debug("Stopping state relay")

	server := r.server
	close(r.stopChannel)

	r.server = nil
	r.stopChannel = nil
	r.currentPort = 0

	count := r.closeClients()
	r.logger.Debugw("Closed all SSE connections", "count", count)

	ctx, cancel := context.WithTimeout(context.Background(), relayShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		r.logger.Warnw("Error during relay shutdown", "error", err)
		server.Close()
	}

	r.logger.Info("State relay stopped")
}

// IsRunning returns whether the relay is currently serving
func (r *StateRelay) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.server != nil
}

// Publish hands the rows of frame to the relay. It never blocks on clients
func (r *StateRelay) Publish(frame Frame) {
	rows := rowsFromFrame(frame)

	r.rowsMutex.Lock()
	r.latest = rows
	r.rowsMutex.Unlock()

	select {
	case r.pending <- struct{}{}:
	default:
		// a broadcast is already pending and will pick up these rows
	}
}

// handler streams the published rows to one client, then every change after them
func (r *StateRelay) handler(stopChannel <-chan bool) http.Handler {
	stream := eventsource.Handler(func(lastID string, encoder *eventsource.Encoder, stop <-chan bool) {
		events := r.addClient()
		defer r.removeClient(events)

		hello := r.pingEvent()
		hello.Retry = strconv.Itoa(sseRetryTimeout)

		if err := encoder.Encode(hello); err != nil {
			r.logger.Debugw("Error sending ping event", "error", err)
			return
		}

		r.rowsMutex.Lock()
		rows := append([]relayRow(nil), r.published...)
		r.rowsMutex.Unlock()

		for _, row := range rows {
			event, err := r.stateEvent(row)
			if err != nil {
				continue
			}
			if err := encoder.Encode(event); err != nil {
				r.logger.Debugw("Error sending state event", "error", err)
				return
			}
		}

		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				if err := encoder.Encode(event); err != nil {
					r.logger.Debugw("Error sending event, dropping client", "error", err)
					return
				}
			case <-stop:
				return
			case <-stopChannel:
				return
			}
		}
	})

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.logger.Infow("New SSE client connected", "remote", req.RemoteAddr, "path", req.URL.Path)
		stream.ServeHTTP(w, req)
		r.logger.Debugw("SSE client disconnected", "remote", req.RemoteAddr, "path", req.URL.Path)
	})
}

func (r *StateRelay) addClient() chan eventsource.Event {
	events := make(chan eventsource.Event, clientBufferSize)

	r.clientsMutex.Lock()
	r.clients[events] = struct{}{}
	r.clientsMutex.Unlock()

	return events
}

func (r *StateRelay) removeClient(events chan eventsource.Event) {
	r.clientsMutex.Lock()
	defer r.clientsMutex.Unlock()

	if _, ok := r.clients[events]; ok {
		delete(r.clients, events)
		close(events)
	}
}

func (r *StateRelay) closeClients() int {
	r.clientsMutex.Lock()
	defer r.clientsMutex.Unlock()

	count := len(r.clients)
	for events := range r.clients {
		delete(r.clients, events)
		close(events)
	}

	return count
}

func (r *StateRelay) clientCount() int {
	r.clientsMutex.Lock()
	defer r.clientsMutex.Unlock()

	return len(r.clients)
}

func (r *StateRelay) broadcastLoop(stop <-chan bool) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return

		case <-ticker.C:
			r.broadcast(r.pingEvent())

		case <-r.pending:
			r.rowsMutex.Lock()
			changed, removed := diffRows(r.published, r.latest)
			r.published = r.latest
			r.rowsMutex.Unlock()

			for _, id := range removed {
				data, err := json.Marshal(relayRemoval{ID: id, Removed: true})
				if err != nil {
					r.logger.Warnw("Failed to marshal removal", "error", err, "id", id)
					continue
				}
				r.broadcast(r.newEvent("state", data))
			}

			for _, row := range changed {
				event, err := r.stateEvent(row)
				if err != nil {
					continue
				}
				r.broadcast(event)
			}
		}
	}
}

// broadcast queues event for every client; a client with a full queue is dropped
// and reconnects on its own
func (r *StateRelay) broadcast(event eventsource.Event) {
	r.clientsMutex.Lock()
	defer r.clientsMutex.Unlock()

	for events := range r.clients {
		select {
		case events <- event:
		default:
			r.logger.Debug("SSE client too slow, dropping it")
			delete(r.clients, events)
			close(events)
		}
	}
}

func (r *StateRelay) stateEvent(row relayRow) (eventsource.Event, error) {
	data, err := json.Marshal(row)
	if err != nil {
		r.logger.Warnw("Failed to marshal state data", "error", err, "id", row.ID)
		return eventsource.Event{}, fmt.Errorf("marshal row %s: %w", row.ID, err)
	}

	return r.newEvent("state", data), nil
}

func (r *StateRelay) pingEvent() eventsource.Event {
	data, _ := json.Marshal(map[string]interface{}{
		"title": "Mixer",
		"lang":  "en",
	})

	return r.newEvent("ping", data)
}

func (r *StateRelay) newEvent(eventType string, data []byte) eventsource.Event {
	return eventsource.Event{
		ID:   strconv.FormatInt(atomic.AddInt64(&r.eventID, 1), 10),
		Type: eventType,
		Data: data,
	}
}

func rowsFromFrame(frame Frame) []relayRow {
	rows := make([]relayRow, 0, len(frame.Streams)+2)

	rows = append(rows,
		relayRow{ID: sinkRowID, Name: "Output", Value: VolumePercent(frame.Sink.VolumeLevel), Muted: frame.Sink.Muted},
		relayRow{ID: sourceRowID, Name: "Input", Value: VolumePercent(frame.Source.VolumeLevel), Muted: frame.Source.Muted},
	)

	for _, s := range frame.Streams {
		rows = append(rows, relayRow{
			ID:    fmt.Sprintf("stream-%d", s.ID),
			Name:  s.DisplayName,
			Value: VolumePercent(s.VolumeLevel),
			Muted: s.Muted,
		})
	}

	return rows
}

// diffRows returns the rows of next that are new or differ from prev, in next order,
// and the ids of prev rows missing from next, in prev order
func diffRows(prev, next []relayRow) ([]relayRow, []string) {
	before := make(map[string]relayRow, len(prev))
	for _, row := range prev {
		before[row.ID] = row
	}

	after := make(map[string]struct{}, len(next))
	changed := []relayRow{}

	for _, row := range next {
		after[row.ID] = struct{}{}

		if old, ok := before[row.ID]; !ok || old != row {
			changed = append(changed, row)
		}
	}

	removed := []string{}
	for _, row := range prev {
		if _, ok := after[row.ID]; !ok {
			removed = append(removed, row.ID)
		}
	}

	return changed, removed
}
