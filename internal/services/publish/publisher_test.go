package publish

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"aquadetect/internal/config"
	"aquadetect/internal/logger"
	"aquadetect/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type blobServer struct {
	server   *httptest.Server
	status   int
	body     string
	gotAuth  string
	gotName  string
	gotBytes []byte
}

func newBlobServer(t *testing.T, status int, body string) *blobServer {
	t.Helper()
	b := &blobServer{status: status, body: body}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.gotAuth = r.Header.Get("Authorization")
		_, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		mr := multipart.NewReader(r.Body, params["boundary"])
		if part, err := mr.NextPart(); err == nil && part.FormName() == "file" {
			b.gotName = part.FileName()
			b.gotBytes, _ = io.ReadAll(part)
		}
		w.WriteHeader(b.status)
		io.WriteString(w, b.body)
	}))
	t.Cleanup(b.server.Close)
	return b
}

func TestPublish_Success(t *testing.T) {
	blob := newBlobServer(t, http.StatusOK, `{"url":"https://blob.example/annotated_leaf.jpg"}`)
	dir := t.TempDir()
	p := NewPublisher(dir, NewVercelUploader(blob.server.URL, "tok", 0), logger.NewNop())

	result, err := p.Publish(context.Background(), "/uploads/leaf.jpg", []byte("annotated"))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if result.LocalPath != filepath.Join(dir, "annotated_leaf.jpg") {
		t.Errorf("Unexpected local path %s", result.LocalPath)
	}
	if result.PublicURL != "https://blob.example/annotated_leaf.jpg" {
		t.Errorf("Unexpected URL %s", result.PublicURL)
	}
	if blob.gotAuth != "Bearer tok" {
		t.Errorf("Expected bearer token, got %q", blob.gotAuth)
	}
	if blob.gotName != "annotated_leaf.jpg" || string(blob.gotBytes) != "annotated" {
		t.Errorf("Unexpected upload: name=%q bytes=%q", blob.gotName, blob.gotBytes)
	}
}

func TestPublisher_ResultPath(t *testing.T) {
	dir := t.TempDir()
	p := NewPublisher(dir, nil, logger.NewNop())
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F', 0}
	png := []byte("\x89PNG\r\n\x1a\n")

	tests := []struct {
		source string
		data   []byte
		want   string
	}{
		{"/uploads/leaf.jpg", jpeg, "annotated_leaf.jpg"},
		{"/uploads/leaf.JPEG", jpeg, "annotated_leaf.JPEG"},
		{"/uploads/leaf.png", png, "annotated_leaf.png"},
		{"/uploads/leaf.webp", jpeg, "annotated_leaf.jpg"},
		{"/uploads/leaf.bmp", jpeg, "annotated_leaf.jpg"},
		{"/uploads/leaf", jpeg, "annotated_leaf.jpg"},
		{"/uploads/leaf.gif", png, "annotated_leaf.png"},
		{"/uploads/leaf.webp", []byte("annotated"), "annotated_leaf.webp"},
	}
	for _, tt := range tests {
		if got := p.ResultPath(tt.source, tt.data); got != filepath.Join(dir, tt.want) {
			t.Errorf("ResultPath(%q) = %q, expected %q", tt.source, filepath.Base(got), tt.want)
		}
	}
}

func TestPublish_NameFollowsEncodedFormat(t *testing.T) {
	blob := newBlobServer(t, http.StatusOK, `{"url":"https://blob.example/annotated_leaf.jpg"}`)
	dir := t.TempDir()
	p := NewPublisher(dir, NewVercelUploader(blob.server.URL, "tok", 0), logger.NewNop())

	result, err := p.Publish(context.Background(), "/uploads/leaf.webp", []byte{0xFF, 0xD8, 0xFF, 0xDB, 0})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if result.LocalPath != filepath.Join(dir, "annotated_leaf.jpg") {
		t.Errorf("Unexpected local path %s", result.LocalPath)
	}
	if blob.gotName != "annotated_leaf.jpg" {
		t.Errorf("Unexpected upload name %q", blob.gotName)
	}
}

func TestPublish_UploadRejected(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"forbidden", http.StatusForbidden, `{"error":"forbidden"}`},
		{"created is not ok", http.StatusCreated, `{"url":"https://blob.example/x"}`},
		{"missing url", http.StatusOK, `{}`},
		{"not json", http.StatusOK, `<html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob := newBlobServer(t, tt.status, tt.body)
			dir := t.TempDir()
			p := NewPublisher(dir, NewVercelUploader(blob.server.URL, "tok", 0), logger.NewNop())

			result, err := p.Publish(context.Background(), "leaf.jpg", []byte("annotated"))
			if !errors.Is(err, models.ErrPublish) {
				t.Fatalf("Expected ErrPublish, got %v", err)
			}
			if result.PublicURL != "" {
				t.Errorf("Expected no URL, got %s", result.PublicURL)
			}
			if _, statErr := os.Stat(result.LocalPath); statErr != nil {
				t.Errorf("Local file should remain after failed upload: %v", statErr)
			}
		})
	}
}

func TestPublish_LocalWriteFails(t *testing.T) {
	// A regular file where the results directory should be makes every write fail.
	blocker := filepath.Join(t.TempDir(), "results")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}

	uploads := 0
	p := NewPublisher(filepath.Join(blocker, "sub"), uploaderFunc(func(ctx context.Context, path string) (string, error) {
		uploads++
		return "https://blob.example/x", nil
	}), logger.NewNop())

	_, err := p.Publish(context.Background(), "leaf.jpg", []byte("annotated"))
	if !errors.Is(err, models.ErrLocalWrite) {
		t.Fatalf("Expected ErrLocalWrite, got %v", err)
	}
	if uploads != 0 {
		t.Errorf("Upload must not run after a local write failure")
	}
}

func TestVercelUploader_Unreachable(t *testing.T) {
	blob := newBlobServer(t, http.StatusOK, `{}`)
	url := blob.server.URL
	blob.server.Close()

	path := filepath.Join(t.TempDir(), "a.jpg")
	os.WriteFile(path, []byte("x"), 0644)

	if _, err := NewVercelUploader(url, "tok", 0).Upload(context.Background(), path); err == nil {
		t.Error("Expected error for unreachable blob store")
	}
}

type uploaderFunc func(ctx context.Context, path string) (string, error)

func (f uploaderFunc) Upload(ctx context.Context, path string) (string, error) { return f(ctx, path) }

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3Uploader_Upload(t *testing.T) {
	putter := &fakePutter{}
	u := &S3Uploader{
		client:    putter,
		bucket:    "annotated",
		prefix:    "results/",
		publicURL: "https://cdn.example",
		logger:    logger.NewNop(),
	}

	path := filepath.Join(t.TempDir(), "annotated_leaf.png")
	os.WriteFile(path, []byte("png-bytes"), 0644)

	url, err := u.Upload(context.Background(), path)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if url != "https://cdn.example/results/annotated_leaf.png" {
		t.Errorf("Unexpected URL %s", url)
	}
	if aws.ToString(putter.input.Bucket) != "annotated" || aws.ToString(putter.input.Key) != "results/annotated_leaf.png" {
		t.Errorf("Unexpected target s3://%s/%s", aws.ToString(putter.input.Bucket), aws.ToString(putter.input.Key))
	}
	if aws.ToString(putter.input.ContentType) != "image/png" {
		t.Errorf("Unexpected content type %s", aws.ToString(putter.input.ContentType))
	}
	if string(putter.body) != "png-bytes" {
		t.Errorf("Unexpected body %q", putter.body)
	}
}

func TestS3Uploader_Error(t *testing.T) {
	u := &S3Uploader{
		client: &fakePutter{err: errors.New("access denied")},
		bucket: "annotated",
		logger: logger.NewNop(),
	}
	path := filepath.Join(t.TempDir(), "a.jpg")
	os.WriteFile(path, []byte("x"), 0644)

	if _, err := u.Upload(context.Background(), path); err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Errorf("Expected access denied, got %v", err)
	}
}

func TestPublicBase(t *testing.T) {
	tests := []struct {
		cfg      config.S3Config
		expected string
	}{
		{config.S3Config{Bucket: "b", Region: "eu-west-1"}, "https://b.s3.eu-west-1.amazonaws.com"},
		{config.S3Config{Bucket: "b", Endpoint: "http://localhost:9000/"}, "http://localhost:9000/b"},
		{config.S3Config{Bucket: "b", Endpoint: "http://localhost:9000", PublicURL: "https://cdn.example/"}, "https://cdn.example"},
	}

	for _, tt := range tests {
		if got := publicBase(tt.cfg); got != tt.expected {
			t.Errorf("publicBase(%+v) = %s, expected %s", tt.cfg, got, tt.expected)
		}
	}
}
