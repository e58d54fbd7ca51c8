package render

import "image"

// boxBlur softens an alpha mask with a separable box filter of the given
// radius, applied horizontally then vertically. Pixels outside the mask
// count as transparent.
func boxBlur(src *image.Alpha, radius int) *image.Alpha {
	if radius <= 0 {
		return src
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	win := 2*radius + 1

	tmp := make([]int, w*h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w]
		sum := 0
		for i := 0; i <= radius && i < w; i++ {
			sum += int(row[i])
		}
		for x := 0; x < w; x++ {
			tmp[y*w+x] = sum
			if in := x + radius + 1; in < w {
				sum += int(row[in])
			}
			if out := x - radius; out >= 0 {
				sum -= int(row[out])
			}
		}
	}

	dst := image.NewAlpha(b)
	for x := 0; x < w; x++ {
		sum := 0
		for i := 0; i <= radius && i < h; i++ {
			sum += tmp[i*w+x]
		}
		for y := 0; y < h; y++ {
			dst.Pix[y*dst.Stride+x] = uint8(sum / (win * win))
			if in := y + radius + 1; in < h {
				sum += tmp[in*w+x]
			}
			if out := y - radius; out >= 0 {
				sum -= tmp[out*w+x]
			}
		}
	}
	return dst
}
