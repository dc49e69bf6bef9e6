package sqlite

import (
	"database/sql"
	"fmt"

	"aquadetect/internal/models"
)

// RequestRepository implements repository.RequestRepository for SQLite.
type RequestRepository struct {
	db *DB
}

// NewRequestRepository creates a new SQLite request repository.
func NewRequestRepository(db *DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Insert stores a request together with its detections in one transaction
// and sets rec.ID.
func (r *RequestRepository) Insert(rec *models.DetectionRecord) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO requests (source, image_path, annotated_path, annotated_url, status, reply, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.Source, rec.ImagePath, rec.AnnotatedPath, rec.AnnotatedURL, rec.Status, rec.Reply, rec.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	if err := insertDetections(tx, id, rec.Detections); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit request: %w", err)
	}

	rec.ID = id
	return id, nil
}

// GetByID retrieves a request with its detections. Returns nil when missing.
func (r *RequestRepository) GetByID(id int64) (*models.DetectionRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var rec models.DetectionRecord
	err := r.db.Conn().QueryRow(`
		SELECT id, source, image_path, annotated_path, annotated_url, status, reply, created_at
		FROM requests WHERE id = ?
	`, id).Scan(&rec.ID, &rec.Source, &rec.ImagePath, &rec.AnnotatedPath, &rec.AnnotatedURL,
		&rec.Status, &rec.Reply, &rec.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}

	rec.Detections, err = r.detectionsOf(rec.ID)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetAll retrieves requests newest first, with their detections.
func (r *RequestRepository) GetAll(filter *models.HistoryFilter) ([]models.DetectionRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `
		SELECT id, source, image_path, annotated_path, annotated_url, status, reply, created_at
		FROM requests WHERE 1=1
	`
	args := []interface{}{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}

	records := []models.DetectionRecord{}
	for rows.Next() {
		var rec models.DetectionRecord
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.ImagePath, &rec.AnnotatedPath, &rec.AnnotatedURL,
			&rec.Status, &rec.Reply, &rec.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		records = append(records, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Single connection: rows must be closed before the next query.
	for i := range records {
		dets, err := r.detectionsOf(records[i].ID)
		if err != nil {
			return nil, err
		}
		records[i].Detections = dets
	}

	return records, nil
}

// GetTotalCount returns the number of requests matching the filter.
func (r *RequestRepository) GetTotalCount(filter *models.HistoryFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `SELECT COUNT(*) FROM requests WHERE 1=1`
	args := []interface{}{}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	var count int
	if err := r.db.Conn().QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count requests: %w", err)
	}
	return count, nil
}

// ExistsByAnnotatedPath checks if a request already references the annotated file.
func (r *RequestRepository) ExistsByAnnotatedPath(path string) (bool, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var count int
	err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM requests WHERE annotated_path = ?`, path).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check request existence: %w", err)
	}
	return count > 0, nil
}

// GetStats returns statistics about recorded requests.
func (r *RequestRepository) GetStats() (*models.HistoryStats, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	stats := &models.HistoryStats{
		PerStatus:   make(map[string]int),
		ClassCounts: make(map[string]int),
	}

	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM requests`).Scan(&stats.TotalRequests); err != nil {
		return nil, err
	}

	rows, err := r.db.Conn().Query(`SELECT status, COUNT(*) FROM requests GROUP BY status`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.PerStatus[status] = count
	}
	rows.Close()

	// Most detected classes
	classRows, err := r.db.Conn().Query(`
		SELECT class_name, COUNT(*) as cnt
		FROM detections
		GROUP BY class_name
		ORDER BY cnt DESC
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer classRows.Close()

	for classRows.Next() {
		var name string
		var count int
		if err := classRows.Scan(&name, &count); err != nil {
			return nil, err
		}
		stats.ClassCounts[name] = count
	}

	return stats, classRows.Err()
}

// Delete removes a request; its detections go with it.
func (r *RequestRepository) Delete(id int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM detections WHERE request_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete detections: %w", err)
	}
	if _, err := r.db.Conn().Exec(`DELETE FROM requests WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete request: %w", err)
	}
	return nil
}

// detectionsOf expects the caller to hold a lock.
func (r *RequestRepository) detectionsOf(requestID int64) ([]models.Detection, error) {
	rows, err := r.db.Conn().Query(`
		SELECT class_name, class_id, confidence, x_min, y_min, x_max, y_max, label
		FROM detections WHERE request_id = ? ORDER BY id
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	detections := []models.Detection{}
	for rows.Next() {
		var d models.Detection
		if err := rows.Scan(&d.ClassName, &d.ClassID, &d.Confidence,
			&d.Box.XMin, &d.Box.YMin, &d.Box.XMax, &d.Box.YMax, &d.Label); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		detections = append(detections, d)
	}
	return detections, rows.Err()
}
