package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNoImageProvided means the request carried neither a camera capture nor an upload.
	ErrNoImageProvided = errors.New("no image provided")

	// ErrLocalWrite means the annotated image could not be produced or written to disk.
	ErrLocalWrite = errors.New("failed to write annotated image")

	// ErrPublish means the blob store did not accept the annotated image.
	ErrPublish = errors.New("failed to publish annotated image")
)

// DetectionServiceError wraps any failure talking to the hosted detection model.
type DetectionServiceError struct {
	Op         string
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *DetectionServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("detection service: %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("detection service: %s: %v", e.Op, e.Err)
}

func (e *DetectionServiceError) Unwrap() error {
	return e.Err
}
