package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"alertgroups/internal/api"
	"alertgroups/internal/clock"
	"alertgroups/internal/config"
	"alertgroups/internal/fetch"
	"alertgroups/internal/ingest"
	"alertgroups/internal/logging"
	"alertgroups/internal/state"
	"alertgroups/internal/view"
)

// Service composes runtime dependencies and process lifecycle.
// Params: config source and shared runtime components.
// Returns: runnable alert grouping service.
type Service struct {
	cfg       config.Config
	logger    *slog.Logger
	closeLog  func()
	clock     clock.Clock
	registry  *prometheus.Registry
	metrics   *Metrics
	nc        *nats.Conn
	store     state.Store
	status    *StatusBoard
	sessions  *view.Manager
	pollers   []*Poller
	httpSrv   *http.Server
	natsSub   interface{ Close() error }
	readyFlag atomic.Bool
}

// NewService builds service instance from config source.
// Params: config source and clock implementation.
// Returns: initialized service or setup error.
func NewService(source config.ConfigSource, clk clock.Clock) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	service := &Service{
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		clock:    clk,
		registry: registry,
		metrics:  NewMetrics(registry),
		status:   NewStatusBoard(),
	}

	if err := service.buildStore(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	service.buildSessions()
	if err := service.buildPollers(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	service.buildHTTPServer()
	if err := service.buildNATSSubscriber(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}

	return service, nil
}

// Run starts service lifecycle and blocks until shutdown signal.
// Params: root context for service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	workCtx, workCancel := context.WithCancel(ctx)
	defer workCancel()
	var workers sync.WaitGroup

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "listen", s.cfg.HTTP.Listen)
		err := s.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	for _, poller := range s.pollers {
		workers.Add(1)
		go func(p *Poller) {
			defer workers.Done()
			p.Run(workCtx)
		}(poller)
	}

	workers.Add(1)
	go func() {
		defer workers.Done()
		s.runJanitor(workCtx)
	}()

	s.readyFlag.Store(true)
	s.logger.Info("service started", "mode", s.cfg.Service.Mode, "sources", len(s.cfg.Source), "pollers", len(s.pollers))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errChan:
		runErr = fmt.Errorf("http server failed: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	}

	s.readyFlag.Store(false)
	workCancel()
	workers.Wait()
	if err := s.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Ready reports whether the service accepts traffic.
func (s *Service) Ready() bool {
	return s.readyFlag.Load()
}

// runJanitor evicts idle sessions until ctx ends.
func (s *Service) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.cfg.Service.JanitorIntervalSec) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepSessions()
		}
	}
}

func (s *Service) sweepSessions() {
	if removed := s.sessions.EvictIdle(); removed > 0 {
		s.metrics.SessionsEvicted.Add(float64(removed))
		s.logger.Info("idle sessions evicted", "evicted", removed, "idle_sec", s.cfg.Service.SessionIdleSec)
	}
	s.metrics.SessionsActive.Set(float64(s.sessions.Len()))
}

// shutdown closes runtime resources in dependency order.
// Params: none.
// Returns: first close error.
func (s *Service) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown failed", "error", err.Error())
		markErr(fmt.Errorf("http shutdown: %w", err))
	}
	if s.natsSub != nil {
		if err := s.natsSub.Close(); err != nil {
			s.logger.Error("nats subscriber close failed", "error", err.Error())
			markErr(fmt.Errorf("nats subscriber close: %w", err))
		}
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("store close failed", "error", err.Error())
		markErr(fmt.Errorf("store close: %w", err))
	}
	if s.nc != nil {
		s.nc.Close()
	}
	s.logger.Info("service stopped")
	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failures.
// Params: none.
// Returns: all acquired resources closed best-effort.
func (s *Service) cleanupInitResources() {
	if s.natsSub != nil {
		_ = s.natsSub.Close()
		s.natsSub = nil
	}
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
		s.httpSrv = nil
	}
	if s.store != nil {
		_ = s.store.Close()
		s.store = nil
	}
	if s.nc != nil {
		s.nc.Close()
		s.nc = nil
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

// buildStore creates the snapshot backend from config.
// Params: none.
// Returns: connection or bucket setup error.
func (s *Service) buildStore() error {
	if isSingleMode(s.cfg) {
		s.store = state.NewMemoryStore()
		return nil
	}
	nc, err := nats.Connect(strings.Join(s.cfg.NATS.URL, ","), nats.Name(s.cfg.Service.Name))
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	s.nc = nc
	store, err := state.NewNATSStore(nc, s.cfg.NATS.SnapshotBucket, s.cfg.NATS.SnapshotTTL())
	if err != nil {
		return err
	}
	s.store = store
	s.logger.Info("snapshot store ready", "bucket", store.Bucket())
	return nil
}

// buildSessions creates one renderer per source and the session registry.
func (s *Service) buildSessions() {
	s.sessions = view.NewManager(
		renderers(s.cfg),
		s.clock,
		time.Duration(s.cfg.Service.SessionIdleSec)*time.Second,
		s.cfg.Service.SessionMax,
		s.metrics.RegroupObserver(),
	)
}

// buildPollers creates a retrying fetcher and poller per polled source.
// Params: none.
// Returns: fetcher setup error.
func (s *Service) buildPollers() error {
	for _, src := range s.cfg.Source {
		if !src.Polled() {
			continue
		}
		fetcher, err := newFetcher(src, s.logger)
		if err != nil {
			return err
		}
		poller := NewPoller(src.Name, fetcher, s.store, s.status, s.metrics, s.clock, src.PollInterval(), s.logger)
		if !isSingleMode(s.cfg) {
			poller.SharedStore()
		}
		s.pollers = append(s.pollers, poller)
	}
	return nil
}

// buildHTTPServer wires router with API, ingest, health and metrics endpoints.
func (s *Service) buildHTTPServer() {
	sources := make([]api.SourceInfo, 0, len(s.cfg.Source))
	for _, src := range s.cfg.Source {
		info := api.SourceInfo{Name: src.Name, Kind: src.Kind, URL: src.URL}
		if !src.Polled() && !isSingleMode(s.cfg) {
			info.PushSubject = ingest.PushSubject(src.Name)
		}
		sources = append(sources, info)
	}

	var ingestHandler http.Handler
	if push := pushSources(s.cfg); len(push) > 0 {
		ingestHandler = ingest.NewHTTPHandler(s.sink(), push, s.cfg.HTTP.MaxBodyBytes, s.logger)
	}

	handlers := api.New(api.Deps{
		Logger:    s.logger,
		Sessions:  s.sessions,
		Snapshots: s.store,
		Status:    s.status,
		Sources:   sources,
		Ingest:    ingestHandler,
		Clock:     s.clock,
	})
	metrics := promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})

	s.httpSrv = &http.Server{
		Addr:              s.cfg.HTTP.Listen,
		Handler:           api.NewRouter(s.cfg.HTTP, handlers, s.Ready, metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// buildNATSSubscriber starts NATS push ingest in nats mode.
// Params: none.
// Returns: subscription error.
func (s *Service) buildNATSSubscriber() error {
	if isSingleMode(s.cfg) {
		return nil
	}
	push := pushSources(s.cfg)
	if len(push) == 0 {
		return nil
	}
	subscriber, err := ingest.NewNATSSubscriber(s.nc, s.sink(), push, s.logger)
	if err != nil {
		return err
	}
	s.natsSub = subscriber
	return nil
}

func (s *Service) sink() *snapshotSink {
	return &snapshotSink{store: s.store, status: s.status, metrics: s.metrics, clock: s.clock, logger: s.logger}
}

// newFetcher wraps the Alertmanager client of src with its retry policy.
func newFetcher(src config.SourceConfig, logger *slog.Logger) (fetch.Fetcher, error) {
	client, err := fetch.NewAlertmanager(src)
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", src.Name, err)
	}
	logger.Debug("source fetcher configured", "source", src.Name, "endpoint", client.Endpoint())
	return fetch.WithRetry(client, src.Retry, logger.With("source", src.Name)), nil
}

func renderers(cfg config.Config) []view.Renderer {
	caps := view.Capabilities{
		Silence:   cfg.Access.SilenceAllowed(),
		SeeSource: cfg.Access.SeeSourceAllowed(),
	}
	out := make([]view.Renderer, 0, len(cfg.Source))
	for _, src := range cfg.Source {
		out = append(out, view.NewRenderer(src.Name, src.SilenceBaseURL(), caps))
	}
	return out
}

func pushSources(cfg config.Config) []string {
	var names []string
	for _, src := range cfg.Source {
		if !src.Polled() {
			names = append(names, src.Name)
		}
	}
	return names
}

func isSingleMode(cfg config.Config) bool {
	return config.NormalizeServiceMode(cfg.Service.Mode) == config.ServiceModeSingle
}
