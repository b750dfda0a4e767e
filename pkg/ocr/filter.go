package ocr

import (
	"image"
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/disintegration/imaging"
)

// contrastBoost is the imaging.AdjustContrast percentage used for flat images.
const contrastBoost = 50

// RMSContrast returns the standard deviation of img's luma, scaled to [0,1].
func RMSContrast(img image.Image) float64 {
	g := imaging.Grayscale(img)
	n := g.Bounds().Dx() * g.Bounds().Dy()
	if n == 0 {
		return 0
	}
	var sum, sq float64
	for i := 0; i < len(g.Pix); i += 4 {
		v := float64(g.Pix[i]) / 255
		sum += v
		sq += v * v
	}
	mean := sum / float64(n)
	return math.Sqrt(math.Max(sq/float64(n)-mean*mean, 0))
}

// Prepare stretches the contrast of img when it falls below
// p.ContrastThreshold and returns img unchanged otherwise.
func Prepare(img image.Image, p Params) image.Image {
	if p.ContrastThreshold <= 0 || RMSContrast(img) >= p.ContrastThreshold {
		return img
	}
	return imaging.AdjustContrast(img, contrastBoost)
}

// Restrict uppercases text and removes every character outside allow,
// keeping whitespace. An empty allowlist keeps everything.
func Restrict(text, allow string) string {
	text = strings.ToUpper(text)
	if allow == "" {
		return text
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || strings.ContainsRune(allow, r) {
			return r
		}
		return -1
	}, text)
}

// Suppress drops empty detections and those that are small relative to the
// rest: height below HeightTolerance x median height, or per-character
// width below WidthTolerance x median per-character width. The input slice
// is not modified.
func Suppress(dets []Detection, p Params) []Detection {
	kept := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if strings.TrimSpace(d.Text) != "" {
			kept = append(kept, d)
		}
	}
	if len(kept) == 0 {
		return kept
	}
	heights := make([]float64, len(kept))
	widths := make([]float64, len(kept))
	for i, d := range kept {
		heights[i] = float64(d.Box.Dy())
		widths[i] = charWidth(d)
	}
	minH := p.HeightTolerance * median(heights)
	minW := p.WidthTolerance * median(widths)
	out := kept[:0:0]
	for i, d := range kept {
		if heights[i] < minH || widths[i] < minW {
			continue
		}
		out = append(out, d)
	}
	return out
}

func charWidth(d Detection) float64 {
	n := utf8.RuneCountInString(strings.Join(strings.Fields(d.Text), ""))
	if n == 0 {
		return 0
	}
	return float64(d.Box.Dx()) / float64(n)
}

func median(vs []float64) float64 {
	s := append([]float64(nil), vs...)
	sort.Float64s(s)
	m := len(s) / 2
	if len(s)%2 == 1 {
		return s[m]
	}
	return (s[m-1] + s[m]) / 2
}
