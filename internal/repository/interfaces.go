package repository

import "aquadetect/internal/models"

// RequestRepository defines the interface for detection history operations.
type RequestRepository interface {
	// Create operations
	Insert(rec *models.DetectionRecord) (int64, error)

	// Read operations
	GetByID(id int64) (*models.DetectionRecord, error)
	GetAll(filter *models.HistoryFilter) ([]models.DetectionRecord, error)
	GetTotalCount(filter *models.HistoryFilter) (int, error)
	GetStats() (*models.HistoryStats, error)
	ExistsByAnnotatedPath(path string) (bool, error)

	// Delete operations
	Delete(id int64) error
}

// DetectionRepository defines the interface for per-object detection rows.
type DetectionRepository interface {
	GetAllClassNames() ([]string, error)
}
