package models

import "time"

// Image sources.
const (
	SourceCamera = "camera"
	SourceUpload = "upload"
)

// ImageAsset is an image stored on disk for the duration of a request.
type ImageAsset struct {
	Path   string `json:"path"`
	Source string `json:"source"`
}

// AnnotationResult describes where the annotated image ended up.
type AnnotationResult struct {
	LocalPath string `json:"local_path"`
	PublicURL string `json:"public_url,omitempty"`
}

// Request outcomes stored in history.
const (
	StatusPublished     = "published"
	StatusNoDetections  = "no_detections"
	StatusPublishFailed = "publish_failed"
	StatusImported      = "imported"
)

// DetectionRecord is one completed request as kept in history.
type DetectionRecord struct {
	ID            int64       `json:"id"`
	Source        string      `json:"source"`
	ImagePath     string      `json:"image_path"`
	AnnotatedPath string      `json:"annotated_path,omitempty"`
	AnnotatedURL  string      `json:"annotated_url,omitempty"`
	Status        string      `json:"status"`
	Reply         string      `json:"reply"`
	CreatedAt     time.Time   `json:"created_at"`
	Detections    []Detection `json:"detections"`
}

// HistoryFilter contains paging options for querying history.
type HistoryFilter struct {
	Status string
	Limit  int
	Offset int
}

// HistoryStats contains statistics about recorded requests.
type HistoryStats struct {
	TotalRequests int            `json:"total_requests"`
	PerStatus     map[string]int `json:"per_status"`
	ClassCounts   map[string]int `json:"class_counts"`
}

// DetectionEvent is pushed to live viewers after each completed request.
type DetectionEvent struct {
	Timestamp      time.Time `json:"timestamp"`
	Source         string    `json:"source"`
	Status         string    `json:"status"`
	Count          int       `json:"count"`
	Labels         []string  `json:"labels"`
	AnnotatedImage string    `json:"annotated_image,omitempty"`
}
