package ingest

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"aquadetect/internal/logger"
	"aquadetect/internal/models"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// DefaultJPEGQuality bounds the size of stored camera captures.
const DefaultJPEGQuality = 75

// Service stores incoming images under the uploads directory.
type Service struct {
	uploadDir string
	quality   int
	logger    *logger.Logger
	newName   func() string
}

func NewService(uploadDir string, quality int, logger *logger.Logger) *Service {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &Service{
		uploadDir: uploadDir,
		quality:   quality,
		logger:    logger,
		newName: func() string {
			return "camera_" + uuid.NewString() + ".jpg"
		},
	}
}

// FromDataURL decodes a "<mime-prefix>,<base64-payload>" string and stores it
// as a JPEG under a name unique to this call.
func (s *Service) FromDataURL(dataURL string) (models.ImageAsset, error) {
	if strings.TrimSpace(dataURL) == "" {
		return models.ImageAsset{}, models.ErrNoImageProvided
	}

	_, encoded, found := strings.Cut(dataURL, ",")
	if !found {
		return models.ImageAsset{}, errors.New("invalid data URL: missing ',' separator")
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return models.ImageAsset{}, fmt.Errorf("invalid data URL payload: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return models.ImageAsset{}, fmt.Errorf("failed to decode camera image: %w", err)
	}

	path := filepath.Join(s.uploadDir, s.newName())
	if err := imaging.Save(img, path, imaging.JPEGQuality(s.quality)); err != nil {
		return models.ImageAsset{}, fmt.Errorf("failed to save camera image: %w", err)
	}

	s.logger.Info("📷 Camera capture saved: %s (%dx%d, %d bytes in)", path, img.Bounds().Dx(), img.Bounds().Dy(), len(raw))
	return models.ImageAsset{Path: path, Source: models.SourceCamera}, nil
}

// FromUpload stores an uploaded file verbatim under its original base name,
// replacing any file already there.
func (s *Service) FromUpload(header *multipart.FileHeader) (models.ImageAsset, error) {
	if header == nil {
		return models.ImageAsset{}, models.ErrNoImageProvided
	}
	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		return models.ImageAsset{}, models.ErrNoImageProvided
	}

	src, err := header.Open()
	if err != nil {
		return models.ImageAsset{}, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	path := filepath.Join(s.uploadDir, name)
	dst, err := os.Create(path)
	if err != nil {
		return models.ImageAsset{}, fmt.Errorf("failed to create %s: %w", path, err)
	}

	written, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return models.ImageAsset{}, fmt.Errorf("failed to save uploaded file: %w", err)
	}

	s.logger.Info("📁 Upload saved: %s (%d bytes)", path, written)
	return models.ImageAsset{Path: path, Source: models.SourceUpload}, nil
}
