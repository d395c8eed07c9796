// Package detector talks to the external face detection service. The
// service owns camera acquisition and neural inference; this package only
// consumes its output: one embedding plus estimated age and gender per
// visible face per frame.
package detector

import "context"

// Detection is one face seen in the current frame.
type Detection struct {
	Embedding []float32 `json:"embedding"`
	Gender    string    `json:"gender"` // "male", "female" or "unknown"
	Age       float64   `json:"age"`
	DetScore  float64   `json:"det_score"`
}

// Detector yields the faces visible in the current frame. A frame with no
// faces returns an empty slice, not an error.
type Detector interface {
	Detect(ctx context.Context) ([]Detection, error)
}

// Func adapts a plain function to the Detector interface.
type Func func(ctx context.Context) ([]Detection, error)

func (f Func) Detect(ctx context.Context) ([]Detection, error) {
	return f(ctx)
}
