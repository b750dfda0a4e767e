// Package preprocess turns a photographed answer sheet into a single-channel,
// contrast-normalized image suited for text recognition.
package preprocess

import (
	"image"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // sheets from phones are often webp

	"grader/pkg/gradeerr"
)

// Options tunes the enhancement pipeline.
type Options struct {
	// BlockSize is the odd neighborhood size of the adaptive threshold.
	BlockSize int
	// Offset is subtracted from the Gaussian-weighted local mean.
	Offset float64
	// ClipLimit bounds each CLAHE tile histogram, relative to a flat histogram.
	ClipLimit float64
	// TileGrid is the number of CLAHE tiles along each axis.
	TileGrid int
	// MinHeight upscales shorter images before processing. 0 disables it.
	MinHeight int
}

func DefaultOptions() Options {
	return Options{BlockSize: 11, Offset: 2, ClipLimit: 2.0, TileGrid: 8}
}

type Preprocessor struct {
	opts Options
}

func New(opts Options) *Preprocessor {
	return &Preprocessor{opts: opts}
}

func (p *Preprocessor) Options() Options { return p.opts }

// Load decodes the image at path, applying EXIF orientation. Failures are
// load errors.
func Load(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, gradeerr.New(gradeerr.KindLoad, "open sheet "+path, err)
	}
	return img, nil
}

// Process loads the sheet at path and returns its enhanced grayscale image.
func (p *Preprocessor) Process(path string) (*image.Gray, error) {
	img, err := Load(path)
	if err != nil {
		return nil, err
	}
	return p.Enhance(img), nil
}

// Enhance applies CLAHE to the grayscale version of img.
func (p *Preprocessor) Enhance(img image.Image) *image.Gray {
	return CLAHE(p.Grayscale(img), p.opts.ClipLimit, p.opts.TileGrid)
}

// Binarize returns the despeckled adaptive-threshold image of img. It shows
// how uneven the illumination is; Enhance does not depend on it.
func (p *Preprocessor) Binarize(img image.Image) *image.Gray {
	bin := AdaptiveThreshold(p.Grayscale(img), p.opts.BlockSize, p.opts.Offset)
	return Despeckle(bin)
}

// Grayscale converts img to luma, upscaling it first when it is shorter
// than MinHeight.
func (p *Preprocessor) Grayscale(img image.Image) *image.Gray {
	if p.opts.MinHeight > 0 && img.Bounds().Dy() < p.opts.MinHeight {
		img = imaging.Resize(img, 0, p.opts.MinHeight, imaging.Lanczos)
	}
	return Grayscale(img)
}

// Grayscale converts img to an 8-bit luma image anchored at (0,0).
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	n := imaging.Grayscale(img)
	b := n.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := n.Pix[y*n.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < b.Dx(); x++ {
			dst[x] = src[x*4]
		}
	}
	return out
}
