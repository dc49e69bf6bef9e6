package annotate

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"strings"

	"aquadetect/internal/logger"
	"aquadetect/internal/models"

	"gocv.io/x/gocv"
)

// Options controls box and label styling.
type Options struct {
	Thickness     int
	TextScale     float64
	TextThickness int
	TextPadding   int
	Palette       *Palette
}

// DefaultOptions draws 4px boxes with small padded labels.
func DefaultOptions() Options {
	return Options{
		Thickness:     4,
		TextScale:     0.5,
		TextThickness: 1,
		TextPadding:   10,
		Palette:       NewPalette(),
	}
}

// Annotator draws detections onto images.
type Annotator struct {
	opts   Options
	logger *logger.Logger
}

func NewAnnotator(opts Options, logger *logger.Logger) *Annotator {
	if opts.Palette == nil {
		opts.Palette = NewPalette()
	}
	return &Annotator{opts: opts, logger: logger}
}

// Annotate returns a copy of src with a box and a label drawn for every
// detection. src is left untouched; the caller owns the returned Mat.
func (a *Annotator) Annotate(src gocv.Mat, set models.DetectionSet) (gocv.Mat, error) {
	out := src.Clone()

	for _, d := range set {
		rect := toRect(d.Box)
		boxColor := a.opts.Palette.ColorFor(d.ClassID)

		if err := gocv.Rectangle(&out, rect, boxColor, a.opts.Thickness); err != nil {
			out.Close()
			return gocv.Mat{}, fmt.Errorf("failed to draw rectangle: %w", err)
		}
		if err := a.drawLabel(&out, rect, d.Label, boxColor); err != nil {
			out.Close()
			return gocv.Mat{}, err
		}
	}

	return out, nil
}

// drawLabel puts a filled tag above the box's top-left corner, or just inside
// the box when there is no room above it.
func (a *Annotator) drawLabel(img *gocv.Mat, box image.Rectangle, label string, bg color.RGBA) error {
	if label == "" {
		return nil
	}
	textSize := gocv.GetTextSize(label, gocv.FontHersheySimplex, a.opts.TextScale, a.opts.TextThickness)
	pad := a.opts.TextPadding

	tagW := textSize.X + 2*pad
	tagH := textSize.Y + 2*pad

	x := box.Min.X
	y := box.Min.Y - tagH
	if y < 0 {
		y = box.Min.Y
	}
	if y < 0 {
		y = 0
	}
	if x < 0 {
		x = 0
	}
	tag := image.Rect(x, y, x+tagW, y+tagH)

	if err := gocv.Rectangle(img, tag, bg, -1); err != nil {
		return fmt.Errorf("failed to draw label background: %w", err)
	}
	origin := image.Pt(x+pad, y+pad+textSize.Y)
	if err := gocv.PutText(img, label, origin, gocv.FontHersheySimplex, a.opts.TextScale, TextColorOn(bg), a.opts.TextThickness); err != nil {
		return fmt.Errorf("failed to draw text: %w", err)
	}
	return nil
}

// AnnotateFile loads the image at path, draws the detections and returns the
// encoded result in the same format as the source. PNG, JPEG and BMP sources
// keep their format, anything else is encoded as JPEG.
func (a *Annotator) AnnotateFile(path string, set models.DetectionSet) ([]byte, error) {
	src := gocv.IMRead(path, gocv.IMReadColor)
	if src.Empty() {
		src.Close()
		return nil, fmt.Errorf("failed to load image %s", path)
	}
	defer src.Close()

	out, err := a.Annotate(src, set)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	ext := encodingFor(path)
	buf, err := gocv.IMEncode(ext, out)
	if err != nil {
		a.logger.Error("Failed to encode annotated image: %v", err)
		return nil, fmt.Errorf("%w: encode %s: %v", models.ErrLocalWrite, ext, err)
	}
	defer buf.Close()

	encoded := make([]byte, buf.Len())
	copy(encoded, buf.GetBytes())

	a.logger.Info("🖍️  Annotated %d detection(s) on %s", len(set), filepath.Base(path))
	return encoded, nil
}

func encodingFor(path string) gocv.FileExt {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return gocv.PNGFileExt
	case ".jpg", ".jpeg":
		return gocv.JPEGFileExt
	case ".bmp":
		return gocv.FileExt(".bmp")
	default:
		return gocv.JPEGFileExt
	}
}

func toRect(b models.Box) image.Rectangle {
	return image.Rect(
		int(math.Round(b.XMin)),
		int(math.Round(b.YMin)),
		int(math.Round(b.XMax)),
		int(math.Round(b.YMax)),
	)
}
