// Package textproc turns raw recognition detections into presentable
// text. The steps are order-dependent: confidence filtering first, then
// per-line whitespace stripping, then empty-line removal (which relies
// on stripping having run), then joining.
package textproc

import (
	"strings"

	"github.com/wudi/ocrkit/ocr"
)

// Options controls the post-processing pass.
type Options struct {
	// MinConfidence drops detections below this value when > 0.
	MinConfidence float64
	// StripWhitespace trims each line independently.
	StripWhitespace bool
	// RemoveEmptyLines drops lines that are empty after stripping.
	RemoveEmptyLines bool
	// Paragraph joins lines with a single space instead of a newline.
	Paragraph bool
}

// Output is the assembled text for one image together with its
// aggregate confidence.
type Output struct {
	Text       string
	Confidence float64
}

// Assemble applies the post-processing pipeline to one image's
// detections. An image whose detections are all filtered out yields
// empty text with zero confidence; that is a valid result, not an
// error.
func Assemble(dets []ocr.Detection, opts Options) Output {
	kept := dets
	if opts.MinConfidence > 0 {
		kept = kept[:0:0]
		for _, d := range dets {
			if d.Confidence >= opts.MinConfidence {
				kept = append(kept, d)
			}
		}
	}
	if len(kept) == 0 {
		return Output{}
	}

	lines := make([]string, 0, len(kept))
	var sum float64
	for _, d := range kept {
		sum += d.Confidence
		line := d.Text
		if opts.StripWhitespace {
			line = strings.TrimSpace(line)
		}
		if opts.RemoveEmptyLines && line == "" {
			continue
		}
		lines = append(lines, line)
	}

	sep := "\n"
	if opts.Paragraph {
		sep = " "
	}
	return Output{
		Text:       strings.Join(lines, sep),
		Confidence: sum / float64(len(kept)),
	}
}
