package server

import (
	"math"
	"time"

	"github.com/wudi/ocrkit/pipeline"
)

// ImageResult is the per-image payload for a successfully processed
// item.
type ImageResult struct {
	Filename   string  `json:"filename"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
}

// ImageError is the per-image payload for a failed item.
type ImageError struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// ExtractResponse is the batch report returned by the extract
// endpoint.
type ExtractResponse struct {
	Status          string        `json:"status"`
	TotalImages     int           `json:"total_images"`
	ProcessedImages int           `json:"processed_images"`
	Results         []ImageResult `json:"results"`
	Errors          []ImageError  `json:"errors,omitempty"`
	ProcessingTime  float64       `json:"processing_time_seconds"`
}

// assembleResponse converts a batch outcome into the wire report.
// Status is "success" only when no item failed; a batch where every
// item failed still reports partial_success with zero results.
func assembleResponse(out pipeline.Outcome, language string, elapsed time.Duration) ExtractResponse {
	resp := ExtractResponse{
		Status:          "success",
		TotalImages:     out.Total,
		ProcessedImages: len(out.Results),
		Results:         make([]ImageResult, 0, len(out.Results)),
		ProcessingTime:  round(elapsed.Seconds(), 2),
	}
	for _, r := range out.Results {
		resp.Results = append(resp.Results, ImageResult{
			Filename:   r.Name,
			Text:       r.Text,
			Confidence: round(r.Confidence, 4),
			Language:   language,
		})
	}
	if len(out.Errors) > 0 {
		resp.Status = "partial_success"
		resp.Errors = make([]ImageError, 0, len(out.Errors))
		for _, e := range out.Errors {
			resp.Errors = append(resp.Errors, ImageError{Filename: e.Name, Error: e.Message})
		}
	}
	return resp
}

func round(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
