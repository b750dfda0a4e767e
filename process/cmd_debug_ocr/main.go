package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"grader/pkg/config"
	"grader/pkg/extract"
	"grader/pkg/ocr"
	"grader/pkg/ocr/tesseract"
	"grader/pkg/preprocess"
)

// Main: runs recognition on one sheet and prints every detection next to
// the answers proposed from them.
func main() {
	f := flag.String("file", "", "sheet image to recognize")
	hocr := flag.String("hocr", "", "read detections from this hOCR file instead of running tesseract")
	flag.Parse()
	if *f == "" {
		log.Fatalf("-file required")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	store, err := cfg.OpenStore()
	if err != nil {
		log.Fatalf("answer key: %v", err)
	}
	img, err := preprocess.New(cfg.PreprocessOptions()).Process(*f)
	if err != nil {
		log.Fatalf("load: %v", err)
	}

	var rec ocr.Recognizer = tesseract.New()
	if *hocr != "" {
		rec = ocr.HOCRRecognizer{Path: *hocr}
	}
	params := cfg.OCRParams()
	dets, err := rec.Recognize(context.Background(), img, params)
	if err != nil {
		log.Fatalf("ocr error: %v", err)
	}
	fmt.Printf("detections=%d rms_contrast=%.4f\n", len(dets), ocr.RMSContrast(img))
	for _, d := range dets {
		fmt.Printf("  %s -> %v\n", d, extract.ParseFragment(d.Text))
	}
	key := store.Key()
	proposal := extract.Propose(dets, key)
	fmt.Printf("proposed %d/%d:\n", len(proposal), key.Len())
	for _, q := range proposal.Questions() {
		want, _ := key.Answer(q)
		fmt.Printf("  %d: %s (key %s)\n", q, proposal[q], want)
	}
}
