// Package app wires the trntxt subsystems into a running service.
//
// New builds every component from config; Run owns the process lifecycle:
// the HTTP webhook server and the session sweeper run until the context is
// cancelled, then the server drains in-flight pipelines and shuts down.
//
// For testing, inject doubles via functional options (WithRunner,
// WithSender, ...). When an option is not given, New creates the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trntxt/trntxt/internal/calllog"
	"github.com/trntxt/trntxt/internal/config"
	"github.com/trntxt/trntxt/internal/health"
	"github.com/trntxt/trntxt/internal/notify"
	"github.com/trntxt/trntxt/internal/pipeline"
	"github.com/trntxt/trntxt/internal/rail"
	"github.com/trntxt/trntxt/internal/resilience"
	"github.com/trntxt/trntxt/internal/server"
	"github.com/trntxt/trntxt/internal/session"
	"github.com/trntxt/trntxt/internal/stations"
	"github.com/trntxt/trntxt/internal/telephony"
	"github.com/trntxt/trntxt/internal/transcribe"
)

// shutdownTimeout bounds the graceful HTTP shutdown on exit.
const shutdownTimeout = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	sessions *session.Cache
	runner   server.Runner
	sender   notify.Sender
	store    *calllog.Store
	srv      *server.Server

	// closers are called in reverse order during Close.
	closers []func()
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRunner injects a pipeline runner instead of building one from config.
func WithRunner(r server.Runner) Option {
	return func(a *App) { a.runner = r }
}

// WithSender injects an SMS sender instead of creating one from config.
func WithSender(s notify.Sender) Option {
	return func(a *App) { a.sender = s }
}

// WithCallLog injects a call log store instead of connecting from config.
func WithCallLog(s *calllog.Store) Option {
	return func(a *App) { a.store = s }
}

// New creates an App by wiring all subsystems from cfg. Config must have
// passed [config.Config.Validate] first; New trusts defaults are filled in.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	a.sessions = session.New(cfg.Sessions.TTL, cfg.Sessions.SweepInterval)

	checkers := []health.Checker{
		health.HTTPChecker("transcriber", cfg.Transcriber.BaseURL, nil),
		health.HTTPChecker("rail", cfg.Rail.BaseURL, nil),
	}

	if a.store == nil && cfg.CallLog.PostgresDSN != "" {
		s, closePool, err := calllog.Connect(ctx, cfg.CallLog.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("app: call log: %w", err)
		}
		a.store = s
		a.closers = append(a.closers, closePool)
	}
	if a.store != nil {
		checkers = append(checkers, health.DBChecker("calllog", a.store))
	}

	if a.runner == nil {
		runner, err := a.buildPipeline(cfg, a.store)
		if err != nil {
			return nil, err
		}
		a.runner = runner
	}

	a.srv = server.New(a.sessions, a.runner, health.New(checkers...), nil)
	return a, nil
}

// buildPipeline constructs the real stage implementations from config.
func (a *App) buildPipeline(cfg *config.Config, store *calllog.Store) (*pipeline.Pipeline, error) {
	creds, err := telephony.NewCredentials(cfg.Telephony.ApplicationID, cfg.Telephony.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("app: telephony credentials: %w", err)
	}
	fetcher, err := telephony.NewFetcher(creds, cfg.Telephony.RecordingDir)
	if err != nil {
		return nil, fmt.Errorf("app: recording fetcher: %w", err)
	}

	transcriber, err := transcribe.New(cfg.Transcriber.BaseURL,
		transcribe.WithLanguage(cfg.Transcriber.Language),
		transcribe.WithModel(cfg.Transcriber.Model),
		transcribe.WithTimeout(cfg.Transcriber.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("app: transcriber: %w", err)
	}

	dir, err := a.stationDirectory(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: station directory: %w", err)
	}
	resolver := stations.NewResolver(dir)

	railClient, err := rail.New(cfg.Rail.BaseURL, cfg.Rail.AccessToken,
		rail.WithTimeout(cfg.Rail.Timeout),
		rail.WithBreaker(resilience.NewBreaker(resilience.BreakerConfig{Name: "rail"})),
	)
	if err != nil {
		return nil, fmt.Errorf("app: rail client: %w", err)
	}

	if a.sender == nil {
		smsOpts := []telephony.SMSOption{}
		if cfg.Telephony.SMSBaseURL != "" {
			smsOpts = append(smsOpts, telephony.WithSMSBaseURL(cfg.Telephony.SMSBaseURL))
		}
		sender, err := telephony.NewSMSSender(
			cfg.Telephony.APIKey, cfg.Telephony.APISecret, cfg.Telephony.SMSFrom, smsOpts...)
		if err != nil {
			return nil, fmt.Errorf("app: sms sender: %w", err)
		}
		a.sender = sender
	}
	notifier := notify.NewNotifier(a.sessions, a.sender, nil, nil)

	var pipeOpts []pipeline.Option
	if store != nil {
		pipeOpts = append(pipeOpts, pipeline.WithCallLog(store))
	}
	return pipeline.New(fetcher, transcriber, resolver, railClient, notifier, pipeOpts...), nil
}

func (a *App) stationDirectory(cfg *config.Config) (*stations.Directory, error) {
	if cfg.Stations.File != "" {
		return stations.NewDirectoryFromFile(cfg.Stations.File)
	}
	return stations.NewDirectory()
}

// Sessions exposes the session cache, mainly for tests.
func (a *App) Sessions() *session.Cache { return a.sessions }

// Run serves HTTP and sweeps the session cache until ctx is cancelled,
// then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:        a.cfg.Server.ListenAddr,
		Handler:     a.srv.Handler(),
		ReadTimeout: 30 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.sessions.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: shutdown: %w", err)
		}
		a.srv.Drain()
		return nil
	})

	return g.Wait()
}

// Close releases held resources (database pools). Call after Run returns.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
