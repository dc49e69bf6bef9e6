package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"aquadetect/internal/logger"
	"aquadetect/internal/models"
	"aquadetect/internal/repository"
)

const defaultHistoryLimit = 24

// HistoryData is a paginated response payload for the detection history.
type HistoryData struct {
	Records     []models.DetectionRecord `json:"records"`
	Length      int                      `json:"length"`
	TotalPages  int                      `json:"totalPages"`
	CurrentPage int                      `json:"currentPage"`
	Limit       int                      `json:"pageSize"`
}

// HistoryHandler lists recorded requests newest first.
// Query: page, limit, status.
func HistoryHandler(repo repository.RequestRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			http.Error(w, "History not enabled", http.StatusServiceUnavailable)
			return
		}

		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), defaultHistoryLimit)

		filter := &models.HistoryFilter{
			Status: q.Get("status"),
			Limit:  limit,
			Offset: (page - 1) * limit,
		}

		records, err := repo.GetAll(filter)
		if err != nil {
			logger.Error("Error querying history: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		totalCount, err := repo.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting history: %v", err)
			totalCount = len(records)
		}

		writeJSON(w, http.StatusOK, HistoryData{
			Records:     records,
			Length:      totalCount,
			TotalPages:  (totalCount + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		}, logger)
	}
}

// HistoryStatsHandler returns totals per status and the most detected classes.
func HistoryStatsHandler(repo repository.RequestRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			http.Error(w, "History not enabled", http.StatusServiceUnavailable)
			return
		}

		stats, err := repo.GetStats()
		if err != nil {
			logger.Error("Failed to get stats: %v", err)
			http.Error(w, "Failed to retrieve stats", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, stats, logger)
	}
}

// HistoryFiltersHandler returns the values the history view can filter on.
func HistoryFiltersHandler(detections repository.DetectionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if detections == nil {
			http.Error(w, "History not enabled", http.StatusServiceUnavailable)
			return
		}

		classes, err := detections.GetAllClassNames()
		if err != nil {
			logger.Error("Failed to get class names: %v", err)
			classes = []string{}
		}
		if classes == nil {
			classes = []string{}
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"statuses": []string{
				models.StatusPublished,
				models.StatusNoDetections,
				models.StatusPublishFailed,
				models.StatusImported,
			},
			"classes": classes,
		}, logger)
	}
}

// HistoryRecordHandler serves one recorded request by id. GET returns it,
// DELETE removes it together with its annotated file in resultDir.
func HistoryRecordHandler(repo repository.RequestRepository, resultDir string, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			http.Error(w, "History not enabled", http.StatusServiceUnavailable)
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "Valid id required", http.StatusBadRequest)
			return
		}

		rec, err := repo.GetByID(id)
		if err != nil {
			logger.Error("Error loading history record %d: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if rec == nil {
			http.Error(w, "Record not found", http.StatusNotFound)
			return
		}

		if r.Method == http.MethodGet {
			writeJSON(w, http.StatusOK, rec, logger)
			return
		}

		if rec.AnnotatedPath != "" {
			filePath := filepath.Join(resultDir, filepath.Base(rec.AnnotatedPath))
			if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
				logger.Error("Failed to delete file %s: %v", filePath, err)
			}
		}
		if err := repo.Delete(id); err != nil {
			logger.Error("Failed to delete history record %d: %v", id, err)
			http.Error(w, "Failed to delete record", http.StatusInternalServerError)
			return
		}

		logger.Info("Deleted history record %d", id)
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "deleted", "id": id}, logger)
	}
}
