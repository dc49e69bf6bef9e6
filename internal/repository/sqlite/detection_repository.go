package sqlite

import (
	"fmt"

	"aquadetect/internal/models"
)

// DetectionRepository implements repository.DetectionRepository for SQLite.
type DetectionRepository struct {
	db *DB
}

// NewDetectionRepository creates a new SQLite detection repository.
func NewDetectionRepository(db *DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

func insertDetections(ex execer, requestID int64, detections []models.Detection) error {
	if len(detections) == 0 {
		return nil
	}

	stmt, err := ex.Prepare(`
		INSERT INTO detections (request_id, class_name, class_id, confidence, x_min, y_min, x_max, y_max, label)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, d := range detections {
		if _, err := stmt.Exec(requestID, d.ClassName, d.ClassID, d.Confidence,
			d.Box.XMin, d.Box.YMin, d.Box.XMax, d.Box.YMax, d.Label); err != nil {
			return fmt.Errorf("failed to insert detection: %w", err)
		}
	}
	return nil
}

// GetAllClassNames returns a list of all unique detected class names.
func (r *DetectionRepository) GetAllClassNames() ([]string, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`SELECT DISTINCT class_name FROM detections ORDER BY class_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query class names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan class name: %w", err)
		}
		names = append(names, name)
	}

	return names, rows.Err()
}
