package history

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"aquadetect/internal/logger"
	"aquadetect/internal/models"
	"aquadetect/internal/repository"
	"aquadetect/internal/services/publish"
)

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".bmp": true}

// Summary counts what an import did.
type Summary struct {
	Imported int
	Existing int
	Skipped  int
}

// Importer back-fills history with annotated images already in the results directory.
type Importer struct {
	repo      repository.RequestRepository
	resultDir string
	uploadDir string
	logger    *logger.Logger
}

func NewImporter(repo repository.RequestRepository, resultDir, uploadDir string, logger *logger.Logger) *Importer {
	return &Importer{repo: repo, resultDir: resultDir, uploadDir: uploadDir, logger: logger}
}

// Import adds one "imported" record per annotated file that history does not know yet.
// Detections are not recoverable from the image, so the records carry none.
func (i *Importer) Import() (Summary, error) {
	var summary Summary

	files, err := os.ReadDir(i.resultDir)
	if err != nil {
		return summary, fmt.Errorf("failed to read results directory: %w", err)
	}

	for _, file := range files {
		name := file.Name()
		if file.IsDir() || !strings.HasPrefix(name, publish.AnnotatedPrefix) || !imageExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}

		annotatedPath := filepath.Join(i.resultDir, name)
		exists, err := i.repo.ExistsByAnnotatedPath(annotatedPath)
		if err != nil {
			return summary, err
		}
		if exists {
			summary.Existing++
			continue
		}

		info, err := file.Info()
		if err != nil {
			i.logger.Warning("⚠️  Skipping %s: %v", name, err)
			summary.Skipped++
			continue
		}

		original := strings.TrimPrefix(name, publish.AnnotatedPrefix)
		rec := &models.DetectionRecord{
			Source:        sourceOf(original),
			ImagePath:     filepath.Join(i.uploadDir, original),
			AnnotatedPath: annotatedPath,
			Status:        models.StatusImported,
			CreatedAt:     info.ModTime(),
		}
		if _, err := i.repo.Insert(rec); err != nil {
			return summary, err
		}
		summary.Imported++
	}

	i.logger.Info("History import: %d imported, %d already known, %d skipped", summary.Imported, summary.Existing, summary.Skipped)
	return summary, nil
}

func sourceOf(originalName string) string {
	if strings.HasPrefix(originalName, "camera_") {
		return models.SourceCamera
	}
	return models.SourceUpload
}
