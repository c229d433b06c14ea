package ocr

import (
	"context"
	"image"
)

// Region describes a rectangular area in pixel coordinates with the
// origin in the upper-left corner of the image. The pipeline carries
// regions through untouched; only engines interpret them.
type Region struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// IsEmpty reports whether the region has non-positive dimensions.
func (r Region) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Detection is one recognized text fragment: its text, a confidence in
// [0,1], and where in the image it was found.
type Detection struct {
	Text       string
	Confidence float64
	Region     Region
}

// Input encapsulates a single decoded image submitted for recognition.
type Input struct {
	// ID is an optional caller-provided identifier used in engine
	// error messages and logs.
	ID string
	// Image is the decoded pixel buffer to recognize.
	Image image.Image
	// Languages is a list of language hints (e.g., "en", "de") that
	// engines can use to select trained data.
	Languages []string
	// Metadata allows callers to pass through engine-specific knobs
	// without hard-coding them into the API surface.
	Metadata map[string]string
}

// Engine is the recognition provider contract: one image in, a
// sequence of detections out. Implementations must tolerate concurrent
// Recognize calls up to the pipeline's configured concurrency limit.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, in Input) ([]Detection, error)
}
