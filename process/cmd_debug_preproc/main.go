package main

import (
	"flag"
	"fmt"
	"image"
	"log"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"grader/pkg/ocr"
	"grader/pkg/preprocess"
)

// Main: writes every preprocessing stage of one sheet as PNG so thresholds
// can be tuned by eye.
func main() {
	in := flag.String("file", "", "sheet image to preprocess")
	out := flag.String("out", "/tmp", "directory for stage images")
	block := flag.Int("block", preprocess.DefaultOptions().BlockSize, "adaptive threshold block size (odd)")
	offset := flag.Float64("offset", preprocess.DefaultOptions().Offset, "adaptive threshold offset")
	clip := flag.Float64("clip", preprocess.DefaultOptions().ClipLimit, "CLAHE clip limit")
	flag.Parse()
	if *in == "" {
		log.Fatalf("-file required")
	}

	opts := preprocess.DefaultOptions()
	opts.BlockSize, opts.Offset, opts.ClipLimit = *block, *offset, *clip
	p := preprocess.New(opts)
	img, err := preprocess.Load(*in)
	if err != nil {
		log.Fatalf("open: %v", err)
	}

	base := strings.TrimSuffix(filepath.Base(*in), filepath.Ext(*in))
	gray := p.Grayscale(img)
	stages := []struct {
		name string
		img  *image.Gray
	}{
		{"gray", gray},
		{"clahe", p.Enhance(img)},
		{"binary", p.Binarize(img)},
	}
	for _, s := range stages {
		dst := filepath.Join(*out, base+"."+s.name+".png")
		if err := imaging.Save(s.img, dst); err != nil {
			log.Fatalf("save %s: %v", dst, err)
		}
		fmt.Println("wrote", dst)
	}
	fmt.Printf("size=%dx%d rms_contrast=%.4f\n", gray.Bounds().Dx(), gray.Bounds().Dy(), ocr.RMSContrast(gray))
}
