// Package ocr defines the text recognition contract used by answer
// extraction, plus the engine-independent filters applied to its output.
package ocr

import (
	"context"
	"fmt"
	"image"
)

// DefaultAllowlist restricts recognition to what answer fragments can contain.
const DefaultAllowlist = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789."

// Detection is one recognized text region. Box is passed through from the
// engine untouched; Confidence is in [0,1].
type Detection struct {
	Box        image.Rectangle
	Text       string
	Confidence float64
}

func (d Detection) String() string {
	return fmt.Sprintf("%q conf=%.2f box=%v", snippet(d.Text, 40), d.Confidence, d.Box)
}

// Params tunes recognition.
type Params struct {
	Allowlist string
	Language  string
	// HeightTolerance drops detections shorter than this fraction of the
	// median detection height.
	HeightTolerance float64
	// WidthTolerance drops detections whose per-character width is below
	// this fraction of the median.
	WidthTolerance float64
	// ContrastThreshold triggers a contrast stretch when the image's
	// normalized RMS contrast is below it.
	ContrastThreshold float64
}

func DefaultParams() Params {
	return Params{
		Allowlist:         DefaultAllowlist,
		Language:          "eng",
		HeightTolerance:   0.4,
		WidthTolerance:    0.4,
		ContrastThreshold: 0.2,
	}
}

// Recognizer turns an image into detections. The order of the returned
// slice carries no meaning.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image, p Params) ([]Detection, error)
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, img image.Image, p Params) ([]Detection, error)

func (f RecognizerFunc) Recognize(ctx context.Context, img image.Image, p Params) ([]Detection, error) {
	return f(ctx, img, p)
}
