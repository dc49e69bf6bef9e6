package ai

import (
	"fmt"
	"sort"

	"aquadetect/internal/models"
)

// Normalize converts raw model records into corner-form detections with
// display labels. Order is preserved; nothing is filtered.
func Normalize(preds []models.Prediction) models.DetectionSet {
	set := make(models.DetectionSet, 0, len(preds))
	for _, p := range preds {
		classID := 0
		if p.ClassID != nil {
			classID = *p.ClassID
		}
		set = append(set, models.Detection{
			Box: models.Box{
				XMin: p.X - p.Width/2,
				YMin: p.Y - p.Height/2,
				XMax: p.X + p.Width/2,
				YMax: p.Y + p.Height/2,
			},
			ClassName:  p.Class,
			ClassID:    classID,
			Confidence: p.Confidence,
			Label:      Label(p.Class, p.Confidence),
		})
	}
	return set
}

// Label formats a detection label as "<class> (<confidence>)".
func Label(className string, confidence float64) string {
	return fmt.Sprintf("%s (%.2f)", className, confidence)
}

// NMSOptions controls overlap suppression.
type NMSOptions struct {
	Enabled       bool
	IoUThreshold  float64
	ClassAgnostic bool // compare boxes of different classes too
}

// SuppressOverlaps drops detections that overlap a more confident one by more
// than the IoU threshold. Survivors keep their original relative order.
func SuppressOverlaps(set models.DetectionSet, opts NMSOptions) models.DetectionSet {
	if !opts.Enabled || len(set) < 2 {
		return set
	}

	order := make([]int, len(set))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return set[order[a]].Confidence > set[order[b]].Confidence
	})

	suppressed := make([]bool, len(set))
	for i, a := range order {
		if suppressed[a] {
			continue
		}
		for _, b := range order[i+1:] {
			if suppressed[b] {
				continue
			}
			if !opts.ClassAgnostic && set[a].ClassName != set[b].ClassName {
				continue
			}
			if IoU(set[a].Box, set[b].Box) > opts.IoUThreshold {
				suppressed[b] = true
			}
		}
	}

	kept := make(models.DetectionSet, 0, len(set))
	for i, d := range set {
		if !suppressed[i] {
			kept = append(kept, d)
		}
	}
	return kept
}

// IoU computes the Intersection-over-Union of two boxes.
func IoU(a, b models.Box) float64 {
	inter := models.Box{
		XMin: max(a.XMin, b.XMin),
		YMin: max(a.YMin, b.YMin),
		XMax: min(a.XMax, b.XMax),
		YMax: min(a.YMax, b.YMax),
	}.Area()
	if inter == 0 {
		return 0
	}
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
