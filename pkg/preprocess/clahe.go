package preprocess

import (
	"image"
	"math"
)

// CLAHE applies contrast-limited adaptive histogram equalization. The image
// is split into grid x grid tiles; each tile's histogram is clipped at
// clipLimit times the flat-histogram height (excess redistributed evenly)
// and turned into a lookup table. Output pixels bilinearly interpolate the
// tables of the four nearest tile centers. clipLimit <= 0 disables clipping.
func CLAHE(src *image.Gray, clipLimit float64, grid int) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}
	if grid < 1 {
		grid = 1
	}
	tileW := (w + min(grid, w) - 1) / min(grid, w)
	tileH := (h + min(grid, h) - 1) / min(grid, h)
	tilesX := (w + tileW - 1) / tileW
	tilesY := (h + tileH - 1) / tileH

	luts := make([][256]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			r := image.Rect(tx*tileW, ty*tileH, min((tx+1)*tileW, w), min((ty+1)*tileH, h))
			luts[ty*tilesX+tx] = tileLUT(src, r, clipLimit)
		}
	}

	invW, invH := 1/float64(tileW), 1/float64(tileH)
	for y := 0; y < h; y++ {
		ty1, ty2, ya := neighbors(float64(y)*invH-0.5, tilesY)
		for x := 0; x < w; x++ {
			tx1, tx2, xa := neighbors(float64(x)*invW-0.5, tilesX)
			v := src.Pix[y*src.Stride+x]
			top := float64(luts[ty1*tilesX+tx1][v])*(1-xa) + float64(luts[ty1*tilesX+tx2][v])*xa
			bot := float64(luts[ty2*tilesX+tx1][v])*(1-xa) + float64(luts[ty2*tilesX+tx2][v])*xa
			out.Pix[y*out.Stride+x] = saturate(top*(1-ya) + bot*ya)
		}
	}
	return out
}

// neighbors returns the two tile indices around position f (in tile units,
// already shifted to tile centers) and the weight of the second one.
func neighbors(f float64, tiles int) (int, int, float64) {
	fl := math.Floor(f)
	a := f - fl
	i1 := int(fl)
	i2 := i1 + 1
	return clamp(i1, 0, tiles-1), clamp(i2, 0, tiles-1), a
}

func tileLUT(src *image.Gray, r image.Rectangle, clipLimit float64) [256]uint8 {
	var hist [256]int
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := src.Pix[y*src.Stride:]
		for x := r.Min.X; x < r.Max.X; x++ {
			hist[row[x]]++
		}
	}
	total := r.Dx() * r.Dy()
	if clipLimit > 0 {
		limit := max(int(clipLimit*float64(total)/256), 1)
		clipped := 0
		for i := range hist {
			if hist[i] > limit {
				clipped += hist[i] - limit
				hist[i] = limit
			}
		}
		batch := clipped / 256
		residual := clipped - batch*256
		for i := range hist {
			hist[i] += batch
		}
		if residual > 0 {
			step := max(256/residual, 1)
			for i := 0; i < 256 && residual > 0; i += step {
				hist[i]++
				residual--
			}
		}
	}
	var lut [256]uint8
	scale := 255 / float64(total)
	sum := 0
	for i := range hist {
		sum += hist[i]
		lut[i] = saturate(float64(sum) * scale)
	}
	return lut
}

func saturate(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
