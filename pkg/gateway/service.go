package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"stickergif/pkg/bus"
	"stickergif/pkg/channel"
	"stickergif/pkg/config"
	"stickergif/pkg/dispatch"
	"stickergif/pkg/logger"
)

const (
	defaultStatusHost = "127.0.0.1"
	defaultStatusPort = config.DefaultStatusPort
)

// EventHandler is the intake entry point the service feeds adapters into.
type EventHandler interface {
	Handle(ctx context.Context, event bus.IncomingEvent)
}

// Service runs channel adapters against the pipeline and serves status.
type Service struct {
	cfg        *config.Config
	log        *slog.Logger
	channels   []channel.Adapter
	dispatcher *dispatch.Dispatcher
	intake     EventHandler
	hub        *bus.Hub

	mu            sync.RWMutex
	startedAt     time.Time
	channelStates map[string]channelState
	eventCounts   map[bus.EventType]uint64
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status        string                  `json:"status"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	Channels      map[string]channelState `json:"channels"`
}

type statsResponse struct {
	Dispatcher dispatch.Stats    `json:"dispatcher"`
	Events     map[string]uint64 `json:"events"`
}

func NewService(cfg *config.Config, adapters []channel.Adapter, dispatcher *dispatch.Dispatcher, intake EventHandler, hub *bus.Hub, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if dispatcher == nil || intake == nil {
		return nil, errors.New("dispatcher and intake are required")
	}

	channelStates := make(map[string]channelState, len(adapters))
	for _, adapter := range adapters {
		channelStates[adapter.Name()] = channelState{}
	}

	return &Service{
		cfg:           cfg,
		log:           logger.Component(log, "gateway.service"),
		channels:      adapters,
		dispatcher:    dispatcher,
		intake:        intake,
		hub:           hub,
		channelStates: channelStates,
		eventCounts:   make(map[bus.EventType]uint64),
	}, nil
}

// Run serves until ctx is done or an adapter or the status server fails, then
// drains the pipeline: polling stops, the dispatcher closes, queued jobs finish.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	countersDone := s.countEvents()

	runCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()

	serverErrors := make(chan error, 1)
	if s.cfg.Status.Port >= 0 {
		go s.runStatusServer(runCtx, serverErrors)
	}

	var adapters sync.WaitGroup
	errCh := make(chan error, len(s.channels))
	for _, adapter := range s.channels {
		s.setChannelState(adapter.Name(), channelState{Running: true})

		adapters.Go(func() {
			err := adapter.Run(runCtx, s.intake.Handle)
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
		})
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErrors:
	case runErr = <-errCh:
	}

	s.log.Info("Stopping intake")
	stopPolling()
	adapters.Wait()

	s.dispatcher.Shutdown()
	if err := s.dispatcher.Wait(context.Background()); err != nil {
		s.log.Error("Dispatcher drain failed", "error", err)
	}

	s.hub.Close()
	<-countersDone

	s.log.Info("Gateway stopped", "stats", s.dispatcher.Stats())
	return runErr
}

// Events subscribes to pipeline lifecycle events. The channel closes once Run has drained.
func (s *Service) Events(ctx context.Context) (<-chan bus.Event, func()) {
	if s.hub == nil {
		ch := make(chan bus.Event)
		close(ch)
		return ch, func() {}
	}
	return s.hub.SubscribeEvents(ctx, 0)
}

// Stats reports dispatcher counters.
func (s *Service) Stats() dispatch.Stats {
	return s.dispatcher.Stats()
}

// countEvents tallies lifecycle events until the hub closes.
func (s *Service) countEvents() <-chan struct{} {
	done := make(chan struct{})
	if s.hub == nil {
		close(done)
		return done
	}

	events, _ := s.hub.SubscribeEvents(context.Background(), 0)
	go func() {
		defer close(done)
		for event := range events {
			s.mu.Lock()
			s.eventCounts[event.Type]++
			s.mu.Unlock()
		}
	}()
	return done
}

func (s *Service) runStatusServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Status.Host)
	if host == "" {
		host = defaultStatusHost
	}

	port := s.cfg.Status.Port
	if port == 0 {
		port = defaultStatusPort
	}

	addr := host + ":" + strconv.Itoa(port)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/stats", s.handleStats)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.currentStats())
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	s.writeJSON(w, statusCode, s.currentStatus(status))
}

func (s *Service) writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		Channels:      channels,
	}
}

func (s *Service) currentStats() statsResponse {
	s.mu.RLock()
	events := make(map[string]uint64, len(s.eventCounts))
	for eventType, count := range s.eventCounts {
		events[string(eventType)] = count
	}
	s.mu.RUnlock()

	return statsResponse{Dispatcher: s.dispatcher.Stats(), Events: events}
}

// isReady requires a running channel and an open dispatcher.
func (s *Service) isReady() bool {
	if s.dispatcher != nil && s.dispatcher.Stats().Closed {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, state := range s.channelStates {
		if state.Running {
			return true
		}
	}
	return false
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
