package ocr

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"grader/pkg/gradeerr"
)

const lineSelector = "span.ocr_line, span.ocr_textfloat, span.ocr_header, span.ocr_caption"

// ParseHOCR reads line-level detections from an hOCR document. A line's
// text is its words joined by spaces and its confidence is the mean word
// x_wconf scaled to [0,1].
func ParseHOCR(r io.Reader) ([]Detection, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse hocr: %w", err)
	}
	var dets []Detection
	doc.Find(lineSelector).Each(func(_ int, s *goquery.Selection) {
		box, _, ok := parseTitle(s.AttrOr("title", ""))
		if !ok {
			return
		}
		var words []string
		var confSum float64
		var confN int
		s.Find(".ocrx_word").Each(func(_ int, w *goquery.Selection) {
			t := strings.TrimSpace(w.Text())
			if t == "" {
				return
			}
			words = append(words, t)
			if _, c, ok := parseTitle(w.AttrOr("title", "")); ok && c >= 0 {
				confSum += c
				confN++
			}
		})
		text := strings.Join(words, " ")
		if len(words) == 0 {
			text = NormalizeText(s.Text())
		}
		if text == "" {
			return
		}
		d := Detection{Box: box, Text: text}
		if confN > 0 {
			d.Confidence = confSum / float64(confN) / 100
		}
		dets = append(dets, d)
	})
	return dets, nil
}

// parseTitle extracts bbox and x_wconf from an hOCR title attribute such as
// "bbox 10 20 110 48; x_wconf 91". Confidence is -1 when absent.
func parseTitle(title string) (image.Rectangle, float64, bool) {
	var box image.Rectangle
	found := false
	conf := -1.0
	for _, part := range strings.Split(title, ";") {
		f := strings.Fields(part)
		if len(f) == 0 {
			continue
		}
		switch f[0] {
		case "bbox":
			if len(f) != 5 {
				continue
			}
			var c [4]int
			bad := false
			for i := range c {
				n, err := strconv.Atoi(f[i+1])
				if err != nil {
					bad = true
					break
				}
				c[i] = n
			}
			if !bad {
				box = image.Rect(c[0], c[1], c[2], c[3])
				found = true
			}
		case "x_wconf":
			if len(f) == 2 {
				if v, err := strconv.ParseFloat(f[1], 64); err == nil {
					conf = v
				}
			}
		}
	}
	return box, conf, found
}

// HOCRRecognizer serves detections from an hOCR file produced by an earlier
// OCR run, ignoring the image it is given.
type HOCRRecognizer struct {
	Path string
}

func (h HOCRRecognizer) Recognize(ctx context.Context, _ image.Image, p Params) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, gradeerr.New(gradeerr.KindRecognition, "hocr "+h.Path, err)
	}
	f, err := os.Open(h.Path)
	if err != nil {
		return nil, gradeerr.New(gradeerr.KindRecognition, "hocr "+h.Path, err)
	}
	defer f.Close()
	dets, err := ParseHOCR(f)
	if err != nil {
		return nil, gradeerr.New(gradeerr.KindRecognition, "hocr "+h.Path, err)
	}
	for i := range dets {
		dets[i].Text = NormalizeText(Restrict(dets[i].Text, p.Allowlist))
	}
	return Suppress(dets, p), nil
}
