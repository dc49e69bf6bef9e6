package routes

import (
	"net/http"

	"aquadetect/internal/config"
	"aquadetect/internal/handlers"
	"aquadetect/internal/logger"
	"aquadetect/internal/middleware"
	"aquadetect/internal/repository"
)

// Deps holds what the router needs beyond config and logger. History and
// Detections are nil when history is disabled.
type Deps struct {
	Detect     handlers.DetectDeps
	History    repository.RequestRepository
	Detections repository.DetectionRepository
	Viewers    handlers.Viewers
}

// SetupRoutes registers the detection endpoint, static file serving, history,
// live feed and log endpoints, and wraps the mux with body limit and request logging.
func SetupRoutes(deps Deps, cfg *config.Config, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/uploads/", handlers.StaticHandler("/static/uploads/", cfg.UploadDirectory))
	mux.Handle("/static/results/", handlers.StaticHandler("/static/results/", cfg.ResultDirectory))
	mux.Handle("/assets/", handlers.StaticHandler("/assets/", cfg.AssetsDirectory))

	// API endpoints
	mux.HandleFunc("/api/history", handlers.HistoryHandler(deps.History, logger))
	mux.HandleFunc("/api/history/stats", handlers.HistoryStatsHandler(deps.History, logger))
	mux.HandleFunc("/api/history/record", handlers.HistoryRecordHandler(deps.History, cfg.ResultDirectory, logger))
	mux.HandleFunc("/api/history/filters", handlers.HistoryFiltersHandler(deps.Detections, logger))
	if deps.Viewers != nil {
		mux.HandleFunc("/api/live", handlers.LiveWebsocketHandler(deps.Viewers, logger))
	}

	// Log endpoints
	for path, file := range map[string]string{
		"/logs/info":    "info.log",
		"/logs/warning": "warning.log",
		"/logs/error":   "error.log",
	} {
		mux.HandleFunc(path, handlers.ShowLogsHandler(logger, file))
		mux.HandleFunc(path+"/clear", handlers.ClearLogsHandler(logger, file))
	}

	// GET / -> index page, POST / -> detection
	mux.HandleFunc("/", handlers.IndexHandler(cfg.IndexFile, handlers.DetectHandler(deps.Detect, logger), logger))

	return middleware.Chain(mux,
		middleware.RequestLogger(logger),
		middleware.LimitBody(cfg.MaxRequestBodySize),
	)
}
