package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"time"

	"aquadetect/internal/logger"
	"aquadetect/internal/models"
	"aquadetect/internal/services/ai"
)

// Reply messages shown to the user.
const (
	ReplyPublished     = "✅ Gambar berhasil di-upload ke Vercel Blob!"
	ReplyNoDetections  = "✅ Tidak ada objek yang terdeteksi."
	ReplyNoImage       = "❌ No image provided"
	ReplyTooLarge      = "❌ Image too large"
	ReplyLocalWrite    = "❌ Gagal menyimpan hasil gambar."
	ReplyPublishFailed = "❌ Gagal meng-upload gambar ke Vercel Blob."
	replyErrorPrefix   = "❌ Error: "
)

// multipart parts above this size spill to temporary files
const maxMultipartMemory = 32 << 20

type Ingester interface {
	FromDataURL(dataURL string) (models.ImageAsset, error)
	FromUpload(header *multipart.FileHeader) (models.ImageAsset, error)
}

type Detector interface {
	Detect(ctx context.Context, imagePath string, confidence int) ([]models.Prediction, error)
}

type Annotator interface {
	AnnotateFile(path string, set models.DetectionSet) ([]byte, error)
}

type Publisher interface {
	Publish(ctx context.Context, sourcePath string, data []byte) (models.AnnotationResult, error)
}

// Recorder keeps a history of completed requests.
type Recorder interface {
	Insert(rec *models.DetectionRecord) (int64, error)
}

// Notifier pushes events to live viewers. Must not block.
type Notifier interface {
	Notify(event models.DetectionEvent)
}

// DetectDeps groups the collaborators of DetectHandler. Recorder and Notifier are optional.
type DetectDeps struct {
	Ingest     Ingester
	Detector   Detector
	Annotator  Annotator
	Publisher  Publisher
	Recorder   Recorder
	Notifier   Notifier
	Confidence int
	NMS        ai.NMSOptions
}

// DetectResponse is the body of every completed detection.
type DetectResponse struct {
	Predictions    []models.Prediction `json:"predictions"`
	AnnotatedImage *string             `json:"annotated_image"`
	Reply          string              `json:"reply"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Reply string `json:"reply"`
}

type detectHandler struct {
	DetectDeps
	logger *logger.Logger
}

type cameraPayload struct {
	CameraImage string `json:"camera_image"`
}

// DetectHandler runs ingest → detect → normalize → annotate → publish for a
// single image and answers with DetectResponse or ErrorResponse.
func DetectHandler(deps DetectDeps, logger *logger.Logger) http.HandlerFunc {
	h := &detectHandler{DetectDeps: deps, logger: logger}
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := h.run(r)
		if err != nil {
			status, reply := replyFor(err)
			if status >= http.StatusInternalServerError {
				logger.Error("Detection request failed: %v", err)
			} else {
				logger.Warning("Detection request rejected: %v", err)
			}
			writeJSON(w, status, ErrorResponse{Reply: reply}, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp, logger)
	}
}

func (d *detectHandler) run(r *http.Request) (*DetectResponse, error) {
	ctx := r.Context()

	asset, err := d.readImage(r)
	if err != nil {
		return nil, err
	}

	preds, err := d.Detector.Detect(ctx, asset.Path, d.Confidence)
	if err != nil {
		return nil, err
	}

	if len(preds) == 0 {
		d.finish(asset, nil, models.AnnotationResult{}, models.StatusNoDetections, ReplyNoDetections)
		return &DetectResponse{
			Predictions: []models.Prediction{},
			Reply:       ReplyNoDetections,
		}, nil
	}

	set := ai.SuppressOverlaps(ai.Normalize(preds), d.NMS)

	data, err := d.Annotator.AnnotateFile(asset.Path, set)
	if err != nil {
		return nil, err
	}

	result, err := d.Publisher.Publish(ctx, asset.Path, data)
	if err != nil {
		if errors.Is(err, models.ErrPublish) {
			d.finish(asset, set, result, models.StatusPublishFailed, ReplyPublishFailed)
		}
		return nil, err
	}

	d.finish(asset, set, result, models.StatusPublished, ReplyPublished)
	url := result.PublicURL
	return &DetectResponse{
		Predictions:    preds,
		AnnotatedImage: &url,
		Reply:          ReplyPublished,
	}, nil
}

// readImage prefers a camera capture over a file upload, as the page sends one or the other.
func (d *detectHandler) readImage(r *http.Request) (models.ImageAsset, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "application/json" {
		var payload cameraPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			if isTooLarge(err) {
				return models.ImageAsset{}, err
			}
			return models.ImageAsset{}, models.ErrNoImageProvided
		}
		return d.Ingest.FromDataURL(payload.CameraImage)
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		if isTooLarge(err) {
			return models.ImageAsset{}, err
		}
		return models.ImageAsset{}, models.ErrNoImageProvided
	}

	if dataURL := r.FormValue("camera_image"); dataURL != "" {
		return d.Ingest.FromDataURL(dataURL)
	}
	if r.MultipartForm != nil {
		if files := r.MultipartForm.File["image"]; len(files) > 0 {
			return d.Ingest.FromUpload(files[0])
		}
	}
	return models.ImageAsset{}, models.ErrNoImageProvided
}

// finish records the outcome and tells live viewers. Both are best-effort.
func (d *detectHandler) finish(asset models.ImageAsset, set models.DetectionSet, result models.AnnotationResult, status, reply string) {
	now := time.Now()

	if d.Recorder != nil {
		rec := &models.DetectionRecord{
			Source:        asset.Source,
			ImagePath:     asset.Path,
			AnnotatedPath: result.LocalPath,
			AnnotatedURL:  result.PublicURL,
			Status:        status,
			Reply:         reply,
			CreatedAt:     now,
			Detections:    set,
		}
		// History is optional; a failure here must not change the reply.
		if _, err := d.Recorder.Insert(rec); err != nil {
			d.logger.Warning("⚠️  Failed to record history: %v", err)
		}
	}

	if d.Notifier != nil {
		d.Notifier.Notify(models.DetectionEvent{
			Timestamp:      now,
			Source:         asset.Source,
			Status:         status,
			Count:          len(set),
			Labels:         set.Labels(),
			AnnotatedImage: result.PublicURL,
		})
	}
}

// replyFor is the single place where errors turn into status codes and replies.
func replyFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrNoImageProvided):
		return http.StatusBadRequest, ReplyNoImage
	case isTooLarge(err):
		return http.StatusRequestEntityTooLarge, ReplyTooLarge
	case errors.Is(err, models.ErrLocalWrite):
		return http.StatusInternalServerError, ReplyLocalWrite
	case errors.Is(err, models.ErrPublish):
		return http.StatusInternalServerError, ReplyPublishFailed
	default:
		return http.StatusInternalServerError, replyErrorPrefix + err.Error()
	}
}

func isTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}
