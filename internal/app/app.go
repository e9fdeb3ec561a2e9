package app

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"sheetvault/internal/artifact"
	"sheetvault/internal/config"
	"sheetvault/internal/infrastructure"
	customMiddleware "sheetvault/internal/middleware"
	"sheetvault/internal/paillier"
	"sheetvault/internal/pipeline"
	"sheetvault/internal/security"
	handlers "sheetvault/internal/transport/http"
	"sheetvault/internal/watcher"
	ws "sheetvault/internal/websocket"
)

const (
	AppName = "sheetvault"
)

var (
	// BuildTime is set at compile time
	BuildTime = time.Now().Format(time.RFC3339)
	// BuildID is a unique identifier for this build
	BuildID = generateBuildID()
)

func generateBuildID() string {
	h := sha256.New()
	h.Write([]byte(infrastructure.ServiceVersion))
	h.Write([]byte(time.Now().Format("2006-01-02")))
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}

// Application wires the watcher, pipeline, websocket hub and HTTP API
// together and owns their lifecycle.
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.PipelineMetrics

	Watcher      *watcher.Watcher
	WebSocketHub *ws.Hub
	Runner       *pipeline.Runner
	Status       *pipeline.StatusTracker
	Codec        *artifact.Codec
	PublicKey    *paillier.PublicKey

	group *errgroup.Group
}

// NewApplication creates a fully wired application from the given
// configuration file. An empty path falls back to config.yaml beside
// the binary, then to environment variables and defaults.
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := infrastructure.InitializeLogger(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger := infrastructure.GetLogger()

	logger.Info("application_starting",
		slog.String("name", AppName),
		slog.String("version", infrastructure.ServiceVersion),
		slog.String("build_id", BuildID))

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}

	otelCfg := infrastructure.DefaultOTelConfig()
	otelCfg.TraceExporter = cfg.Telemetry.TraceExporter
	otelCfg.MetricExporter = cfg.Telemetry.MetricExporter
	otelCfg.SampleRatio = cfg.Telemetry.SampleRatio
	otelProviders, err := infrastructure.InitializeOTel(otelCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	metrics, err := infrastructure.CreatePipelineMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
		Metrics:       metrics,
	}

	if err := app.initializePipeline(); err != nil {
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializePipeline builds the processing chain: key material, the
// directory watcher, the websocket hub and the stage runner.
func (a *Application) initializePipeline() error {
	pub, err := a.loadPublicKey()
	if err != nil {
		return err
	}
	a.PublicKey = pub

	codec, err := artifact.NewCodec()
	if err != nil {
		return fmt.Errorf("failed to create artifact codec: %w", err)
	}
	a.Codec = codec

	a.WebSocketHub = ws.NewHub(a.Logger)
	a.Watcher = watcher.New(a.Config.Watch.Dir, a.Config.Watch.PollInterval, a.Logger)
	a.Status = pipeline.NewStatusTracker()

	stages := []pipeline.Stage{
		pipeline.NewValidateStage(a.Config.Paths.ValidatedDir, a.Config.Validation.MissingThreshold, a.Logger),
		pipeline.NewCleanStage(a.Config.Paths.CleanedDir, a.Metrics, a.Logger),
		pipeline.NewEncryptStage(a.Config.Paths.EncryptedDir, a.PublicKey, a.Codec, a.Metrics, a.Logger),
	}
	a.Runner = pipeline.NewRunner(a.Watcher.Files(), stages, a.Status, a.WebSocketHub, a.Metrics, a.Logger)

	a.Logger.Info("pipeline_initialized",
		slog.String("watch_dir", a.Config.Watch.Dir),
		slog.Duration("poll_interval", a.Config.Watch.PollInterval),
		slog.Float64("missing_threshold", a.Config.Validation.MissingThreshold),
		slog.String("key_fingerprint", a.PublicKey.Fingerprint()))

	return nil
}

// loadPublicKey resolves the Paillier key pair for the encrypt stage.
// With a configured key file the sealed store is opened or created;
// without one an ephemeral pair is generated, so artifacts from this
// run cannot be decrypted after the process exits.
func (a *Application) loadPublicKey() (*paillier.PublicKey, error) {
	if a.Config.Crypto.KeyFile == "" {
		a.Logger.Warn("ephemeral_key_in_use",
			slog.Int("key_bits", a.Config.Crypto.KeyBits))
		priv, err := paillier.GenerateKey(rand.Reader, a.Config.Crypto.KeyBits)
		if err != nil {
			return nil, fmt.Errorf("failed to generate key pair: %w", err)
		}
		return &priv.PublicKey, nil
	}

	store, err := security.NewStore(a.Config.Crypto.KeyFile, a.Config.Crypto.Passphrase, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open key store: %w", err)
	}
	priv, err := store.LoadOrGenerate(a.Config.Crypto.KeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to load key pair: %w", err)
	}
	return &priv.PublicKey, nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Minimal middleware first; these don't wrap the ResponseWriter and
	// are safe for the websocket upgrade.
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	// WebSocket route stays outside the full middleware group.
	r.Get("/ws", a.WebSocketHub.ServeWS)

	r.Group(func(r chi.Router) {
		instr := customMiddleware.NewInstrumentation(a.OTelProviders, a.Metrics)
		r.Use(instr.Handler)
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.Logger))
		r.Use(customMiddleware.SecurityHeaders)
		r.Use(customMiddleware.Compress(5))

		if a.Config.Server.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Server.RateLimit.RPS,
				a.Config.Server.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		a.setupAPIRoutes(r)
	})

	// Prometheus endpoint outside the middleware group.
	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		healthHandler := handlers.NewHealthHandler(a.Config.Watch.Dir, a.Logger)
		r.Mount("/health", healthHandler.Routes())

		statusHandler := handlers.NewStatusHandler(a.Status, a.WebSocketHub, a.Watcher, a.Logger)
		r.Mount("/status", statusHandler.Routes())

		artifactHandler := handlers.NewArtifactHandler(a.Config.Paths.EncryptedDir, a.Codec, a.Logger)
		r.Mount("/artifacts", artifactHandler.Routes())
	})
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Start launches the background goroutines and the HTTP server. The
// pipeline runs until ctx is cancelled; a server failure cancels the
// whole application through cancel.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "application_started",
		slog.Int("port", a.Config.Server.Port),
		slog.String("watch_dir", a.Config.Watch.Dir),
		slog.String("level", a.Config.Logging.Level))

	group, groupCtx := errgroup.WithContext(ctx)
	a.group = group

	group.Go(func() error { return a.WebSocketHub.Run(groupCtx) })
	group.Go(func() error { return a.Watcher.Run(groupCtx) })
	group.Go(func() error { return a.Runner.Run(groupCtx) })

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("server_error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	return nil
}

// Stop drains the HTTP server, waits for the pipeline goroutines to
// unwind and flushes telemetry. The run context must already be
// cancelled when Stop is called.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "application_stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "server_shutdown_error", slog.String("error", err.Error()))
	}

	if a.group != nil {
		if err := a.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.ErrorContext(ctx, "pipeline_stop_error", slog.String("error", err.Error()))
		}
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "otel_shutdown_error", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "application_stopped")

	if err := infrastructure.CloseLogFile(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

// Run runs the application until interrupted.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case sig := <-sigChan:
		a.Logger.Info("shutdown_signal_received", slog.String("signal", sig.String()))
	case <-ctx.Done():
	}

	cancel()
	return a.Stop(context.Background())
}
