package publish

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"aquadetect/internal/logger"
	"aquadetect/internal/models"
)

// AnnotatedPrefix is prepended to the source file name of every result.
const AnnotatedPrefix = "annotated_"

// Uploader sends a local file to remote blob storage and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// Publisher stores annotated images locally and then in blob storage.
type Publisher struct {
	resultDir string
	uploader  Uploader
	logger    *logger.Logger
}

func NewPublisher(resultDir string, uploader Uploader, logger *logger.Logger) *Publisher {
	return &Publisher{
		resultDir: resultDir,
		uploader:  uploader,
		logger:    logger,
	}
}

// resultExts lists, per sniffed content type, the extensions a result may
// carry. The first one replaces a source extension that does not match.
var resultExts = map[string][]string{
	"image/jpeg": {".jpg", ".jpeg"},
	"image/png":  {".png"},
	"image/bmp":  {".bmp"},
}

// ResultPath returns where the annotated version of sourcePath is written.
// The name keeps the source extension unless data is encoded in another
// format, e.g. a .webp upload annotated as JPEG becomes annotated_<name>.jpg.
func (p *Publisher) ResultPath(sourcePath string, data []byte) string {
	name := filepath.Base(sourcePath)
	if exts, ok := resultExts[http.DetectContentType(data)]; ok {
		ext := filepath.Ext(name)
		if !slices.Contains(exts, strings.ToLower(ext)) {
			name = strings.TrimSuffix(name, ext) + exts[0]
		}
	}
	return filepath.Join(p.resultDir, AnnotatedPrefix+name)
}

// Publish writes data next to the other results and uploads it. A failed
// upload leaves the local file in place and returns ErrPublish together with
// the local path.
func (p *Publisher) Publish(ctx context.Context, sourcePath string, data []byte) (models.AnnotationResult, error) {
	localPath := p.ResultPath(sourcePath, data)

	if err := os.WriteFile(localPath, data, 0644); err != nil {
		return models.AnnotationResult{}, fmt.Errorf("%w: %v", models.ErrLocalWrite, err)
	}
	result := models.AnnotationResult{LocalPath: localPath}
	p.logger.Info("💾 Annotated image saved: %s", localPath)

	url, err := p.uploader.Upload(ctx, localPath)
	if err != nil {
		return result, fmt.Errorf("%w: %v", models.ErrPublish, err)
	}
	if url == "" {
		return result, fmt.Errorf("%w: blob store returned no URL", models.ErrPublish)
	}

	result.PublicURL = url
	p.logger.Info("☁️  Annotated image published: %s", url)
	return result, nil
}
