package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"aquadetect/internal/logger"
	"aquadetect/internal/models"
	"aquadetect/internal/services/ingest"
	"aquadetect/internal/services/publish"
)

type fakeDetector struct {
	preds      []models.Prediction
	err        error
	calls      int
	gotPath    string
	confidence int
}

func (f *fakeDetector) Detect(ctx context.Context, imagePath string, confidence int) ([]models.Prediction, error) {
	f.calls++
	f.gotPath = imagePath
	f.confidence = confidence
	return f.preds, f.err
}

type fakeAnnotator struct {
	calls  int
	gotSet models.DetectionSet
}

func (f *fakeAnnotator) AnnotateFile(path string, set models.DetectionSet) ([]byte, error) {
	f.calls++
	f.gotSet = set
	return []byte("annotated:" + filepath.Base(path)), nil
}

type countingPublisher struct {
	Publisher
	calls int
}

func (c *countingPublisher) Publish(ctx context.Context, sourcePath string, data []byte) (models.AnnotationResult, error) {
	c.calls++
	return c.Publisher.Publish(ctx, sourcePath, data)
}

type fakeRecorder struct {
	records []models.DetectionRecord
}

func (f *fakeRecorder) Insert(rec *models.DetectionRecord) (int64, error) {
	f.records = append(f.records, *rec)
	return int64(len(f.records)), nil
}

type fakeNotifier struct {
	events []models.DetectionEvent
}

func (f *fakeNotifier) Notify(event models.DetectionEvent) {
	f.events = append(f.events, event)
}

type testEnv struct {
	uploadDir string
	resultDir string
	detector  *fakeDetector
	annotator *fakeAnnotator
	publisher *countingPublisher
	recorder  *fakeRecorder
	notifier  *fakeNotifier
	blobCalls int
	handler   http.Handler
}

// newTestEnv wires the handler with real ingest and publish services; the blob
// store answers with blobStatus and blobBody.
func newTestEnv(t *testing.T, blobStatus int, blobBody string) *testEnv {
	t.Helper()
	root := t.TempDir()
	env := &testEnv{
		uploadDir: filepath.Join(root, "uploads"),
		resultDir: filepath.Join(root, "results"),
		detector:  &fakeDetector{},
		annotator: &fakeAnnotator{},
		recorder:  &fakeRecorder{},
		notifier:  &fakeNotifier{},
	}
	for _, dir := range []string{env.uploadDir, env.resultDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
	}

	blob := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.blobCalls++
		w.WriteHeader(blobStatus)
		io.WriteString(w, blobBody)
	}))
	t.Cleanup(blob.Close)

	log := logger.NewNop()
	env.publisher = &countingPublisher{
		Publisher: publish.NewPublisher(env.resultDir, publish.NewVercelUploader(blob.URL, "tok", 0), log),
	}
	env.rebuild()
	return env
}

func (env *testEnv) rebuild() {
	log := logger.NewNop()
	env.handler = DetectHandler(DetectDeps{
		Ingest:     ingest.NewService(env.uploadDir, 75, log),
		Detector:   env.detector,
		Annotator:  env.annotator,
		Publisher:  env.publisher,
		Recorder:   env.recorder,
		Notifier:   env.notifier,
		Confidence: 40,
	}, log)
}

func uploadRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(content)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func pngDataURL(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON response, got %q", ct)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON %q: %v", rec.Body.String(), err)
	}
	return body
}

func replyOf(t *testing.T, body map[string]json.RawMessage) string {
	t.Helper()
	var reply string
	if err := json.Unmarshal(body["reply"], &reply); err != nil {
		t.Fatalf("Missing reply: %v", err)
	}
	return reply
}

var rotPrediction = models.Prediction{X: 100, Y: 100, Width: 50, Height: 50, Confidence: 0.9, Class: "rot"}

func TestDetect_UploadPublished(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, `{"url":"https://blob.example/annotated_leaf.jpg"}`)
	env.detector.preds = []models.Prediction{rotPrediction}

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, uploadRequest(t, "image", "leaf.jpg", []byte("jpeg-bytes")))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp DetectResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Predictions) != 1 || resp.Predictions[0].Class != "rot" {
		t.Errorf("Unexpected predictions %+v", resp.Predictions)
	}
	if resp.AnnotatedImage == nil || *resp.AnnotatedImage != "https://blob.example/annotated_leaf.jpg" {
		t.Errorf("Unexpected annotated_image %v", resp.AnnotatedImage)
	}
	if !strings.HasPrefix(resp.Reply, "✅") || resp.Reply != ReplyPublished {
		t.Errorf("Unexpected reply %q", resp.Reply)
	}

	if env.detector.confidence != 40 {
		t.Errorf("Expected confidence 40, got %d", env.detector.confidence)
	}
	if env.detector.gotPath != filepath.Join(env.uploadDir, "leaf.jpg") {
		t.Errorf("Unexpected image path %s", env.detector.gotPath)
	}
	if got := env.annotator.gotSet; len(got) != 1 || got[0].Box != (models.Box{XMin: 75, YMin: 75, XMax: 125, YMax: 125}) || got[0].Label != "rot (0.90)" {
		t.Errorf("Unexpected detections passed to annotator %+v", got)
	}
	if data, err := os.ReadFile(filepath.Join(env.resultDir, "annotated_leaf.jpg")); err != nil || string(data) != "annotated:leaf.jpg" {
		t.Errorf("Annotated file not written: %q %v", data, err)
	}

	if len(env.recorder.records) != 1 || env.recorder.records[0].Status != models.StatusPublished {
		t.Errorf("Unexpected history %+v", env.recorder.records)
	}
	if len(env.notifier.events) != 1 || env.notifier.events[0].Count != 1 {
		t.Errorf("Unexpected events %+v", env.notifier.events)
	}
}

func TestDetect_ResponseKeepsServiceFields(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, `{"url":"https://blob.example/annotated_leaf.jpg"}`)
	var pred models.Prediction
	if err := json.Unmarshal([]byte(`{"x":100,"y":100,"width":50,"height":50,"confidence":0.9,"class":"rot","detection_id":"d-1","points":[{"x":80,"y":90}]}`), &pred); err != nil {
		t.Fatal(err)
	}
	env.detector.preds = []models.Prediction{pred}

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, uploadRequest(t, "image", "leaf.jpg", []byte("jpeg-bytes")))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Predictions []map[string]json.RawMessage `json:"predictions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Predictions) != 1 {
		t.Fatalf("Unexpected predictions %s", rec.Body.String())
	}
	if got := string(body.Predictions[0]["points"]); got != `[{"x":80,"y":90}]` {
		t.Errorf("Expected points to pass through, got %q", got)
	}
	if got := string(body.Predictions[0]["detection_id"]); got != `"d-1"` {
		t.Errorf("Expected detection_id to pass through, got %q", got)
	}
}

func TestDetect_CameraImage(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, `{"url":"https://blob.example/x.jpg"}`)
	env.detector.preds = []models.Prediction{rotPrediction}

	payload, _ := json.Marshal(map[string]string{"camera_image": pngDataURL(t)})
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	name := filepath.Base(env.detector.gotPath)
	if !strings.HasPrefix(name, "camera_") || filepath.Ext(name) != ".jpg" {
		t.Errorf("Unexpected camera file name %s", name)
	}
	if _, err := os.Stat(env.detector.gotPath); err != nil {
		t.Errorf("Camera capture not stored: %v", err)
	}
	if env.recorder.records[0].Source != models.SourceCamera {
		t.Errorf("Expected camera source, got %s", env.recorder.records[0].Source)
	}
}

func TestDetect_NoImageProvided(t *testing.T) {
	tests := []struct {
		name string
		req  func(t *testing.T) *http.Request
	}{
		{"empty multipart", func(t *testing.T) *http.Request { return uploadRequest(t, "", "", nil) }},
		{"wrong field", func(t *testing.T) *http.Request { return uploadRequest(t, "photo", "a.jpg", []byte("x")) }},
		{"empty json", func(t *testing.T) *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
			req.Header.Set("Content-Type", "application/json")
			return req
		}},
		{"broken json", func(t *testing.T) *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"camera_image":`))
			req.Header.Set("Content-Type", "application/json")
			return req
		}},
		{"no body", func(t *testing.T) *http.Request { return httptest.NewRequest(http.MethodPost, "/", nil) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, http.StatusOK, `{}`)
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, tt.req(t))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", rec.Code)
			}
			if reply := replyOf(t, decodeBody(t, rec)); reply != "❌ No image provided" {
				t.Errorf("Unexpected reply %q", reply)
			}
			if env.detector.calls != 0 {
				t.Error("Detector must not run without an image")
			}
		})
	}
}

func TestDetect_NoDetections(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, `{"url":"https://blob.example/x.jpg"}`)
	env.detector.preds = []models.Prediction{}

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, uploadRequest(t, "image", "leaf.jpg", []byte("jpeg-bytes")))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if string(body["annotated_image"]) != "null" {
		t.Errorf("Expected annotated_image null, got %s", body["annotated_image"])
	}
	if string(body["predictions"]) != "[]" {
		t.Errorf("Expected empty predictions, got %s", body["predictions"])
	}
	if reply := replyOf(t, body); reply != "✅ Tidak ada objek yang terdeteksi." {
		t.Errorf("Unexpected reply %q", reply)
	}

	if env.annotator.calls != 0 || env.publisher.calls != 0 || env.blobCalls != 0 {
		t.Errorf("Annotator/publisher must not run: annotate=%d publish=%d blob=%d",
			env.annotator.calls, env.publisher.calls, env.blobCalls)
	}
	if len(env.recorder.records) != 1 || env.recorder.records[0].Status != models.StatusNoDetections {
		t.Errorf("Unexpected history %+v", env.recorder.records)
	}
}

func TestDetect_LocalWriteFails(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, `{"url":"https://blob.example/x.jpg"}`)
	env.detector.preds = []models.Prediction{rotPrediction}

	// Results directory replaced by a regular file: writes below it fail.
	os.RemoveAll(env.resultDir)
	if err := os.WriteFile(env.resultDir, nil, 0644); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, uploadRequest(t, "image", "leaf.jpg", []byte("jpeg-bytes")))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}
	if reply := replyOf(t, decodeBody(t, rec)); reply != "❌ Gagal menyimpan hasil gambar." {
		t.Errorf("Unexpected reply %q", reply)
	}
	if env.blobCalls != 0 {
		t.Error("Nothing must be uploaded after a local write failure")
	}
}

func TestDetect_PublishRejected(t *testing.T) {
	env := newTestEnv(t, http.StatusForbidden, `{"error":"forbidden"}`)
	env.detector.preds = []models.Prediction{rotPrediction}

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, uploadRequest(t, "image", "leaf.jpg", []byte("jpeg-bytes")))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if reply := replyOf(t, body); reply != "❌ Gagal meng-upload gambar ke Vercel Blob." {
		t.Errorf("Unexpected reply %q", reply)
	}
	if _, ok := body["annotated_image"]; ok {
		t.Error("Error replies carry only the reply field")
	}
	if _, err := os.Stat(filepath.Join(env.resultDir, "annotated_leaf.jpg")); err != nil {
		t.Errorf("Annotated file should remain on disk: %v", err)
	}
	if len(env.recorder.records) != 1 || env.recorder.records[0].Status != models.StatusPublishFailed {
		t.Errorf("Unexpected history %+v", env.recorder.records)
	}
}

func TestDetect_DetectionServiceError(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, `{}`)
	env.detector.err = &models.DetectionServiceError{Op: "predict", StatusCode: 401, Err: errors.New("unauthorized")}

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, uploadRequest(t, "image", "leaf.jpg", []byte("jpeg-bytes")))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}
	reply := replyOf(t, decodeBody(t, rec))
	if reply != "❌ Error: detection service: predict: status 401: unauthorized" {
		t.Errorf("Unexpected reply %q", reply)
	}
	if env.annotator.calls != 0 || len(env.recorder.records) != 0 {
		t.Error("Pipeline must stop after a detection failure")
	}
}

func TestDetect_InvalidDataURL(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, `{}`)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"camera_image":"not-a-data-url"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}
	if reply := replyOf(t, decodeBody(t, rec)); !strings.HasPrefix(reply, "❌ Error: ") {
		t.Errorf("Unexpected reply %q", reply)
	}
}

func TestDetect_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, `{}`)
	limited := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1024)
		env.handler.ServeHTTP(w, r)
	})

	rec := httptest.NewRecorder()
	limited.ServeHTTP(rec, uploadRequest(t, "image", "big.jpg", bytes.Repeat([]byte("x"), 64*1024)))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("Expected 413, got %d", rec.Code)
	}
	if reply := replyOf(t, decodeBody(t, rec)); reply != ReplyTooLarge {
		t.Errorf("Unexpected reply %q", reply)
	}
}

func TestReplyFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		reply  string
	}{
		{models.ErrNoImageProvided, 400, ReplyNoImage},
		{&http.MaxBytesError{Limit: 10}, 413, ReplyTooLarge},
		{errors.Join(errors.New("encode"), models.ErrLocalWrite), 500, ReplyLocalWrite},
		{errors.Join(models.ErrPublish, errors.New("status 403")), 500, ReplyPublishFailed},
		{errors.New("boom"), 500, "❌ Error: boom"},
	}

	for _, tt := range tests {
		status, reply := replyFor(tt.err)
		if status != tt.status || reply != tt.reply {
			t.Errorf("replyFor(%v) = %d %q, expected %d %q", tt.err, status, reply, tt.status, tt.reply)
		}
	}
}
