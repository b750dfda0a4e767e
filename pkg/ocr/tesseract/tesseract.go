// Package tesseract implements ocr.Recognizer on top of the Tesseract engine.
package tesseract

import (
	"bytes"
	"context"
	"image"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"grader/pkg/gradeerr"
	"grader/pkg/ocr"
)

const op = "tesseract"

// Engine runs one Tesseract client per call, so it is safe for concurrent use.
type Engine struct {
	// Mode is the page segmentation mode. Answer sheets are sparse text.
	Mode gosseract.PageSegMode
}

func New() *Engine {
	return &Engine{Mode: gosseract.PSM_SPARSE_TEXT}
}

// Recognize returns line-level detections. Tesseract cannot be interrupted
// mid-call, so ctx is only checked before starting.
func (e *Engine) Recognize(ctx context.Context, img image.Image, p ocr.Params) ([]ocr.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, gradeerr.New(gradeerr.KindRecognition, op, err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, ocr.Prepare(img, p), imaging.PNG); err != nil {
		return nil, gradeerr.New(gradeerr.KindRecognition, op+" encode", err)
	}

	client := gosseract.NewClient()
	defer client.Close()
	lang := p.Language
	if lang == "" {
		lang = "eng"
	}
	if err := client.SetLanguage(lang); err != nil {
		return nil, gradeerr.New(gradeerr.KindRecognition, op+" language", err)
	}
	if p.Allowlist != "" {
		if err := client.SetWhitelist(p.Allowlist); err != nil {
			return nil, gradeerr.New(gradeerr.KindRecognition, op+" allowlist", err)
		}
	}
	if err := client.SetPageSegMode(e.Mode); err != nil {
		return nil, gradeerr.New(gradeerr.KindRecognition, op+" psm", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, gradeerr.New(gradeerr.KindRecognition, op+" image", err)
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, gradeerr.New(gradeerr.KindRecognition, op, err)
	}
	dets := make([]ocr.Detection, 0, len(boxes))
	for _, b := range boxes {
		text := ocr.NormalizeText(b.Word)
		if text == "" {
			continue
		}
		dets = append(dets, ocr.Detection{Box: b.Box, Text: text, Confidence: b.Confidence / 100})
	}
	return ocr.Suppress(dets, p), nil
}
