package models

import "encoding/json"

// Prediction is one raw record as returned by the hosted detection model.
// X and Y are the box center, Width and Height its size, all in pixels.
// A decoded prediction keeps its source record and encodes back to it
// unchanged, including fields not listed here.
type Prediction struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Confidence  float64 `json:"confidence"`
	Class       string  `json:"class"`
	ClassID     *int    `json:"class_id,omitempty"`
	DetectionID string  `json:"detection_id,omitempty"`

	raw json.RawMessage
}

// prediction has the fields of Prediction without its JSON methods.
type prediction Prediction

// UnmarshalJSON decodes the known fields and keeps a copy of the record.
func (p *Prediction) UnmarshalJSON(data []byte) error {
	var v prediction
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = Prediction(v)
	p.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON returns the source record when there is one.
func (p Prediction) MarshalJSON() ([]byte, error) {
	if len(p.raw) > 0 {
		return p.raw, nil
	}
	return json.Marshal(prediction(p))
}

// Box is an axis-aligned rectangle in corner form.
type Box struct {
	XMin float64 `json:"x_min"`
	YMin float64 `json:"y_min"`
	XMax float64 `json:"x_max"`
	YMax float64 `json:"y_max"`
}

// Width returns the horizontal extent of the box.
func (b Box) Width() float64 { return b.XMax - b.XMin }

// Height returns the vertical extent of the box.
func (b Box) Height() float64 { return b.YMax - b.YMin }

// Area returns the box area, zero for degenerate boxes.
func (b Box) Area() float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Detection represents a detected object ready for annotation.
type Detection struct {
	Box        Box     `json:"box"`
	ClassName  string  `json:"class_name"`
	ClassID    int     `json:"class_id"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label"`
}

// DetectionSet keeps detections in the order the model returned them.
type DetectionSet []Detection

// Labels returns the display labels in set order.
func (s DetectionSet) Labels() []string {
	labels := make([]string, len(s))
	for i, d := range s {
		labels[i] = d.Label
	}
	return labels
}
