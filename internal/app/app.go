package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"aquadetect/internal/config"
	"aquadetect/internal/handlers"
	"aquadetect/internal/logger"
	"aquadetect/internal/repository"
	"aquadetect/internal/repository/sqlite"
	"aquadetect/internal/routes"
	"aquadetect/internal/services/ai"
	"aquadetect/internal/services/annotate"
	"aquadetect/internal/services/ingest"
	"aquadetect/internal/services/publish"
	"aquadetect/internal/services/websocket"

	"golang.org/x/sync/errgroup"
)

type App struct {
	config     *config.Config
	logger     *logger.Logger
	db         *sqlite.DB
	history    repository.RequestRepository
	detections repository.DetectionRepository
	hubService *websocket.HubService
	handler    http.Handler
}

// NewApp prepares directories and wires every service. Nothing is started yet.
func NewApp(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*App, error) {
	for _, dir := range []string{cfg.UploadDirectory, cfg.ResultDirectory} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	uploader, err := newUploader(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		config:     cfg,
		logger:     logger,
		hubService: websocket.NewHubService(logger),
	}

	var recorder handlers.Recorder
	if cfg.HistoryDatabase != "" {
		db, err := sqlite.New(cfg.HistoryDatabase)
		if err != nil {
			return nil, err
		}
		repo := sqlite.NewRequestRepository(db)
		a.db = db
		a.history = repo
		a.detections = sqlite.NewDetectionRepository(db)
		recorder = repo
	}

	deps := handlers.DetectDeps{
		Ingest:     ingest.NewService(cfg.UploadDirectory, cfg.JPEGQuality, logger),
		Detector:   ai.NewClient(cfg.Roboflow, cfg.HTTPTimeout, logger),
		Annotator:  annotate.NewAnnotator(annotate.DefaultOptions(), logger),
		Publisher:  publish.NewPublisher(cfg.ResultDirectory, uploader, logger),
		Recorder:   recorder,
		Notifier:   a.hubService,
		Confidence: cfg.Roboflow.Confidence,
		NMS: ai.NMSOptions{
			Enabled:       cfg.NMS.Enabled,
			IoUThreshold:  cfg.NMS.IoUThreshold,
			ClassAgnostic: cfg.NMS.ClassAgnostic,
		},
	}

	a.handler = routes.SetupRoutes(routes.Deps{
		Detect:     deps,
		History:    a.history,
		Detections: a.detections,
		Viewers:    a.hubService,
	}, cfg, logger)

	return a, nil
}

func newUploader(ctx context.Context, cfg *config.Config, logger *logger.Logger) (publish.Uploader, error) {
	switch cfg.Blob.Backend {
	case "s3":
		return publish.NewS3Uploader(ctx, cfg.Blob.S3, logger)
	default:
		if cfg.Blob.Token == "" {
			logger.Warning("⚠️  BLOB_TOKEN is empty - uploads will be rejected")
		}
		return publish.NewVercelUploader(cfg.Blob.Endpoint, cfg.Blob.Token, cfg.HTTPTimeout), nil
	}
}

// Handler exposes the fully wrapped router.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run serves HTTP and the live feed until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.hubService.Run(gctx)
	})

	g.Go(func() error {
		a.logger.Info("🚀 Aquaponic detection server on http://localhost:%d", a.config.Port)
		a.logger.Info("📁 Uploads: %s, results: %s", a.config.UploadDirectory, a.config.ResultDirectory)
		a.logger.Info("🤖 Model: %s/%d (confidence %d)", a.config.Roboflow.Project, a.config.Roboflow.Version, a.config.Roboflow.Confidence)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *App) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Failed to close history database: %v", err)
		}
	}
}
