package preprocess

import (
	"image"
	"math"
	"sort"
)

// AdaptiveThreshold binarizes src against a Gaussian-weighted mean of each
// pixel's block x block neighborhood minus offset: pixels brighter than that
// become 255, the rest 0. Borders replicate the edge pixels.
func AdaptiveThreshold(src *image.Gray, block int, offset float64) *image.Gray {
	if block < 3 {
		block = 3
	}
	if block%2 == 0 {
		block++
	}
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}
	mean := gaussianBlur(src, block)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := float64(src.Pix[y*src.Stride+x])
			if v > math.Round(mean[y*w+x])-offset {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// gaussianSigma matches the sigma conventionally derived from a kernel size.
func gaussianSigma(size int) float64 {
	return 0.3*(float64(size-1)*0.5-1) + 0.8
}

func gaussianKernel(size int) []float64 {
	sigma := gaussianSigma(size)
	half := size / 2
	k := make([]float64, size)
	var sum float64
	for i := range k {
		d := float64(i - half)
		k[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// gaussianBlur runs a separable Gaussian of the given odd size over src.
func gaussianBlur(src *image.Gray, size int) []float64 {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	k := gaussianKernel(size)
	half := size / 2
	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			var acc float64
			for i, kv := range k {
				acc += kv * float64(row[clamp(x+i-half, 0, w-1)])
			}
			tmp[y*w+x] = acc
		}
	}
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for i, kv := range k {
				acc += kv * tmp[clamp(y+i-half, 0, h-1)*w+x]
			}
			out[y*w+x] = acc
		}
	}
	return out
}

// Despeckle removes isolated specks with a 3x3 median filter.
func Despeckle(src *image.Gray) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	var win [9]uint8
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			n := 0
			for dy := -1; dy <= 1; dy++ {
				yy := clamp(y+dy, 0, h-1)
				for dx := -1; dx <= 1; dx++ {
					win[n] = src.Pix[yy*src.Stride+clamp(x+dx, 0, w-1)]
					n++
				}
			}
			s := win[:]
			sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
			out.Pix[y*out.Stride+x] = s[4]
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
