package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rbright/hark/internal/bus"
	"github.com/rbright/hark/internal/config"
	"github.com/rbright/hark/internal/cue"
	"github.com/rbright/hark/internal/engine"
	"github.com/rbright/hark/internal/history"
	"github.com/rbright/hark/internal/ipc"
	"github.com/rbright/hark/internal/permission"
	"github.com/rbright/hark/internal/popup"
	"github.com/rbright/hark/internal/session"
	"github.com/rbright/hark/internal/stream"
	"github.com/rbright/hark/internal/telemetry"
	"github.com/rbright/hark/internal/version"
)

const (
	healthInterval  = 5 * time.Second
	pruneInterval   = 6 * time.Hour
	shutdownTimeout = 5 * time.Second
)

// PermissionStore is the authorizer the daemon can also reset.
type PermissionStore interface {
	session.Authorizer
	Set(session.AuthState) error
}

// DaemonOptions overrides collaborators normally built from config.
type DaemonOptions struct {
	Config       config.Config
	Logger       *slog.Logger
	Factory      session.HandleFactory
	Languages    session.LanguageLister
	Availability session.Availability
	Permissions  PermissionStore
	Popup        session.PopupRecognizer
}

// Daemon owns the session controller and every surface that exposes it.
type Daemon struct {
	cfg          config.Config
	logger       *slog.Logger
	controller   *session.Controller
	languages    session.LanguageLister
	availability session.Availability
	permissions  PermissionStore
	hub          *stream.Hub
	metrics      *telemetry.Metrics
	health       *health.Server
	history      *history.Store
	recorder     *history.Recorder
	publisher    *bus.Publisher
	cues         *cue.Player
}

// NewDaemon builds the controller and its sinks.
func NewDaemon(ctx context.Context, opts DaemonOptions) (*Daemon, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	d := &Daemon{
		cfg:          cfg,
		logger:       logger.With("component", "daemon"),
		languages:    opts.Languages,
		availability: opts.Availability,
		permissions:  opts.Permissions,
		hub:          stream.NewHub(logger),
		health:       health.NewServer(),
	}

	factory := opts.Factory
	if factory == nil || d.languages == nil {
		eng, err := engine.New(engine.Options{
			Backend:     cfg.Engine.Backend,
			Command:     cfg.Engine.Command,
			Endpoint:    cfg.Engine.Endpoint,
			DialTimeout: cfg.Engine.DialTimeout(),
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("configure engine: %w", err)
		}
		if factory == nil {
			factory = eng
		}
		if d.languages == nil {
			d.languages = eng
		}
	}
	if d.availability == nil {
		d.availability = engine.NewAvailability(engine.AvailabilityOptions{
			Backend:      cfg.Engine.Backend,
			Command:      cfg.Engine.Command,
			HealthTarget: cfg.Engine.HealthGRPC,
			DialTimeout:  cfg.Engine.DialTimeout(),
			RequireInput: cfg.Availability.RequireInput,
			Input:        cfg.Availability.Input,
			Logger:       logger,
		})
	}
	if d.permissions == nil {
		path, err := cfg.PermissionPath()
		if err != nil {
			return nil, err
		}
		d.permissions = permission.NewStore(path)
	}

	popupRecognizer := opts.Popup
	if popupRecognizer == nil && cfg.Popup.Command != "" {
		recognizer, err := popup.New(cfg.Popup.Command, cfg.Popup.Timeout(), logger)
		if err != nil {
			return nil, err
		}
		popupRecognizer = recognizer
	}

	sinks := session.MultiSink{session.LogSink{Logger: logger}, d.hub}
	if cfg.Cues.Enable {
		d.cues = cue.New(cfg.Cues, logger)
		sinks = append(sinks, d.cues)
	}
	if cfg.Bus.Enable {
		publisher, err := bus.Connect(cfg.Bus, logger)
		if err != nil {
			d.logger.Warn("event bus unavailable; continuing without it", "error", err)
		} else {
			d.publisher = publisher
			sinks = append(sinks, publisher)
		}
	}
	if cfg.History.Enable {
		if err := d.openHistory(ctx); err != nil {
			d.shutdownSinks(ctx)
			return nil, err
		}
		sinks = append(sinks, d.recorder)
	}

	metrics, err := telemetry.Setup("hark", version.Current().Version)
	if err != nil {
		d.shutdownSinks(ctx)
		return nil, err
	}
	d.metrics = metrics

	d.controller = session.NewController(session.Options{
		Logger:       logger,
		Factory:      factory,
		Availability: d.availability,
		Authorizer:   d.permissions,
		Sink:         sinks,
		Popup:        popupRecognizer,
		Meter:        metrics.Meter("github.com/rbright/hark/internal/session"),
	})
	return d, nil
}

func (d *Daemon) openHistory(ctx context.Context) error {
	path, err := d.cfg.HistoryPath()
	if err != nil {
		return err
	}
	store, err := history.Open(ctx, path, d.logger)
	if err != nil {
		return err
	}
	d.history = store
	d.recorder = history.NewRecorder(store, d.logger)
	d.prune(ctx)
	return nil
}

func (d *Daemon) prune(ctx context.Context) {
	if d.history == nil {
		return
	}
	retention := time.Duration(d.cfg.History.RetentionDays) * 24 * time.Hour
	removed, err := d.history.Prune(ctx, retention)
	if err != nil {
		d.logger.Warn("history prune failed", "error", err)
		return
	}
	if removed > 0 {
		d.logger.Info("history pruned", "sessions", removed)
	}
}

// Controller exposes the session controller.
func (d *Daemon) Controller() *session.Controller {
	return d.controller
}

// Handle serves one IPC request.
func (d *Daemon) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		snap := d.controller.Snapshot()
		return ipc.Response{
			OK:        true,
			State:     string(snap.State),
			SessionID: snap.SessionID,
			Listening: snap.Listening,
		}
	case ipc.CommandListening:
		return ipc.Response{OK: true, Listening: d.controller.IsListening()}
	case ipc.CommandAvailable:
		return ipc.Response{OK: true, Available: d.controller.Available(ctx)}
	case ipc.CommandStart:
		return d.handleStart(ctx, req.Start)
	case ipc.CommandStop:
		if err := d.controller.Stop(ctx); err != nil {
			return ipc.Failure(err)
		}
		return ipc.Response{OK: true, Message: "stopped"}
	case ipc.CommandLanguages:
		languages, err := d.languages.Languages(ctx)
		if err != nil {
			return ipc.Failure(err)
		}
		return ipc.Response{OK: true, Languages: languages}
	case ipc.CommandPermissions:
		return ipc.Response{OK: true, Permission: string(d.controller.Authorization(ctx))}
	case ipc.CommandRequestPermissions:
		state, err := d.controller.RequestAuthorization(ctx)
		if err != nil {
			return ipc.Failure(err)
		}
		return ipc.Response{OK: true, Permission: string(state)}
	case ipc.CommandVersion:
		return ipc.Response{OK: true, Version: version.Current().Version}
	default:
		return ipc.Failure(fmt.Errorf("unknown command %q", req.Command))
	}
}

func (d *Daemon) handleStart(ctx context.Context, opts *ipc.StartOptions) ipc.Response {
	cfg := d.sessionConfig(opts)
	call, err := d.controller.Start(ctx, cfg)
	if err != nil {
		return ipc.Failure(err)
	}

	outcome, err := call.Wait(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil && !call.Settled() {
			// Client went away before a result arrived.
			d.logger.Info("start client disconnected; stopping session", "session_id", call.SessionID())
			_ = d.controller.Stop(context.Background())
		}
		return ipc.Failure(err)
	}
	// Non-partial final results resolve the call without reaching sinks.
	if !outcome.Acknowledged && d.recorder != nil {
		d.recorder.RecordResult(call.SessionID(), outcome.Matches)
	}

	snap := d.controller.Snapshot()
	return ipc.Response{
		OK:        true,
		State:     string(snap.State),
		SessionID: call.SessionID(),
		Listening: snap.Listening,
		Matches:   outcome.Matches,
	}
}

// sessionConfig overlays request options on configured session defaults.
func (d *Daemon) sessionConfig(opts *ipc.StartOptions) session.Config {
	defaults := d.cfg.Session
	cfg := session.Config{
		Language:       defaults.Language,
		MaxResults:     defaults.MaxResults,
		PartialResults: defaults.PartialResults,
		SilenceTimeout: time.Duration(defaults.SilenceTimeoutMS) * time.Millisecond,
	}
	if opts == nil {
		return cfg
	}
	if opts.Language != "" {
		cfg.Language = opts.Language
	}
	if opts.MaxResults > 0 {
		cfg.MaxResults = opts.MaxResults
	}
	if opts.SilenceTimeoutMS > 0 {
		cfg.SilenceTimeout = time.Duration(opts.SilenceTimeoutMS) * time.Millisecond
	}
	cfg.Prompt = opts.Prompt
	cfg.PartialResults = cfg.PartialResults || opts.PartialResults
	cfg.Popup = opts.Popup
	return cfg
}

// HTTPHandler serves health, readiness, metrics, and the event stream.
func (d *Daemon) HTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !d.controller.Available(r.Context()) {
			http.Error(w, "engine unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})
	mux.Handle("GET /metrics", d.metrics.Handler())
	mux.Handle("GET /events", d.hub)
	return mux
}

// Run serves IPC on listener plus the configured HTTP and gRPC listeners
// until ctx is cancelled, then tears everything down.
func (d *Daemon) Run(ctx context.Context, listener net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
		cancel()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ipc.Serve(ctx, listener, ipc.HandlerFunc(d.Handle)); err != nil {
			fail(fmt.Errorf("ipc server: %w", err))
		}
	}()

	if bind := d.cfg.HTTP.Bind; bind != "" {
		httpListener, err := net.Listen("tcp", bind)
		if err != nil {
			cancel()
			wg.Wait()
			d.shutdown()
			return fmt.Errorf("listen http %s: %w", bind, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.serveHTTP(ctx, httpListener); err != nil {
				fail(err)
			}
		}()
	}

	if bind := d.cfg.GRPC.Bind; bind != "" {
		grpcListener, err := net.Listen("tcp", bind)
		if err != nil {
			cancel()
			wg.Wait()
			d.shutdown()
			return fmt.Errorf("listen grpc %s: %w", bind, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.serveGRPC(ctx, grpcListener); err != nil {
				fail(err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.maintain(ctx)
	}()

	d.logger.Info("daemon ready", "http", d.cfg.HTTP.Bind, "grpc", d.cfg.GRPC.Bind)
	<-ctx.Done()
	wg.Wait()
	d.shutdown()
	return errors.Join(errs...)
}

func (d *Daemon) serveHTTP(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{Handler: d.HTTPHandler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		d.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn("http shutdown timed out", "error", err)
			_ = srv.Close()
		}
	}()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (d *Daemon) serveGRPC(ctx context.Context, listener net.Listener) error {
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, d.health)
	d.updateHealth(ctx)

	go func() {
		<-ctx.Done()
		d.health.Shutdown()

		stopped := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(shutdownTimeout):
			d.logger.Warn("graceful stop timed out, forcing stop")
			srv.Stop()
		}
	}()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc server: %w", err)
	}
	return nil
}

// maintain refreshes health status and prunes history on intervals.
func (d *Daemon) maintain(ctx context.Context) {
	var healthC <-chan time.Time
	if d.cfg.GRPC.Bind != "" {
		healthTick := time.NewTicker(healthInterval)
		defer healthTick.Stop()
		healthC = healthTick.C
	}
	pruneTick := time.NewTicker(pruneInterval)
	defer pruneTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-healthC:
			d.updateHealth(ctx)
		case <-pruneTick.C:
			d.prune(ctx)
		}
	}
}

func (d *Daemon) updateHealth(ctx context.Context) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if d.controller.Available(ctx) {
		status = healthpb.HealthCheckResponse_SERVING
	}
	d.health.SetServingStatus("", status)
}

func (d *Daemon) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := d.controller.Close(ctx); err != nil {
		d.logger.Warn("controller close failed", "error", err)
	}
	d.hub.Close()
	d.shutdownSinks(ctx)
	if err := d.metrics.Shutdown(ctx); err != nil {
		d.logger.Debug("metrics shutdown failed", "error", err)
	}
	d.logger.Info("daemon stopped")
}

func (d *Daemon) shutdownSinks(ctx context.Context) {
	if d.cues != nil {
		if err := d.cues.Close(ctx); err != nil {
			d.logger.Debug("cue player close failed", "error", err)
		}
	}
	if d.recorder != nil {
		if err := d.recorder.Close(ctx); err != nil {
			d.logger.Warn("history flush failed", "error", err)
		}
	}
	if d.history != nil {
		if err := d.history.Close(); err != nil {
			d.logger.Warn("history close failed", "error", err)
		}
	}
	if d.publisher != nil {
		if err := d.publisher.Close(); err != nil {
			d.logger.Warn("event bus close failed", "error", err)
		}
	}
}
