// Package tesseract provides the default ocr.Engine backed by the
// gosseract client.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/otiai10/gosseract/v2"

	"github.com/wudi/ocrkit/ocr"
)

func init() {
	ocr.SetDefaultEngine(New())
}

// Engine implements ocr.Engine using Tesseract. Every Recognize call
// allocates its own gosseract client, so concurrent calls up to the
// pipeline's admission limit are safe without external locking.
type Engine struct {
	clientFactory func() *gosseract.Client
}

// New constructs a Tesseract-backed recognition engine.
func New() *Engine {
	return &Engine{clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize runs Tesseract over the input image and maps recognized
// text lines to detections with confidences scaled into [0,1].
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) ([]ocr.Detection, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, in.Image); err != nil {
		return nil, fmt.Errorf("encode image %s: %w", in.ID, err)
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	if len(in.Languages) > 0 {
		if err := c.SetLanguage(mapLanguages(in.Languages)...); err != nil {
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	for k, v := range in.Metadata {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return nil, fmt.Errorf("set variable %s: %w", k, err)
		}
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}

	dets := make([]ocr.Detection, 0, len(boxes))
	for _, b := range boxes {
		dets = append(dets, ocr.Detection{
			Text:       b.Word,
			Confidence: b.Confidence / 100.0,
			Region: ocr.Region{
				X:      float64(b.Box.Min.X),
				Y:      float64(b.Box.Min.Y),
				Width:  float64(b.Box.Dx()),
				Height: float64(b.Box.Dy()),
			},
		})
	}
	return dets, nil
}

// langCodes maps the two-letter codes the API accepts to Tesseract's
// trained-data names. Unknown codes pass through unchanged so callers
// can address trained data directly.
var langCodes = map[string]string{
	"en": "eng",
	"de": "deu",
	"fr": "fra",
	"es": "spa",
	"it": "ita",
	"pt": "por",
	"nl": "nld",
	"ru": "rus",
	"zh": "chi_sim",
	"ja": "jpn",
	"ko": "kor",
	"ar": "ara",
}

func mapLanguages(langs []string) []string {
	out := make([]string, len(langs))
	for i, l := range langs {
		if mapped, ok := langCodes[l]; ok {
			out[i] = mapped
			continue
		}
		out[i] = l
	}
	return out
}
