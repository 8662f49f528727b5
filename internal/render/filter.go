package render

import "image"

// Enhancement filter parameters, applied in this order.
const (
	Contrast   = 1.15
	Saturation = 1.20
	Brightness = 1.05
)

// Matrix is an affine colour transform on normalised RGB:
// out[i] = sum_j M[i][j]*in[j] + Offset[i].
type Matrix struct {
	M      [3][3]float64
	Offset [3]float64
}

// Then returns the transform applying m first and next second.
func (m Matrix) Then(next Matrix) Matrix {
	var out Matrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out.M[i][j] += next.M[i][k] * m.M[k][j]
			}
		}
		out.Offset[i] = next.Offset[i]
		for k := 0; k < 3; k++ {
			out.Offset[i] += next.M[i][k] * m.Offset[k]
		}
	}
	return out
}

// ContrastMatrix scales values around mid-grey.
func ContrastMatrix(c float64) Matrix {
	o := 0.5 * (1 - c)
	return Matrix{
		M:      [3][3]float64{{c, 0, 0}, {0, c, 0}, {0, 0, c}},
		Offset: [3]float64{o, o, o},
	}
}

// SaturationMatrix uses the Rec. 709 luma weights of the CSS saturate filter.
func SaturationMatrix(s float64) Matrix {
	return Matrix{M: [3][3]float64{
		{0.213 + 0.787*s, 0.715 - 0.715*s, 0.072 - 0.072*s},
		{0.213 - 0.213*s, 0.715 + 0.285*s, 0.072 - 0.072*s},
		{0.213 - 0.213*s, 0.715 - 0.715*s, 0.072 + 0.928*s},
	}}
}

// BrightnessMatrix scales all channels.
func BrightnessMatrix(b float64) Matrix {
	return Matrix{M: [3][3]float64{{b, 0, 0}, {0, b, 0}, {0, 0, b}}}
}

// EnhanceMatrix composes contrast, saturation and brightness into one
// transform so pixels are rounded once.
func EnhanceMatrix() Matrix {
	return ContrastMatrix(Contrast).
		Then(SaturationMatrix(Saturation)).
		Then(BrightnessMatrix(Brightness))
}

// fixedShift is the fractional precision of the lookup tables.
const fixedShift = 8

// Filter applies a Matrix to 8-bit pixels through per-channel lookup tables.
type Filter struct {
	table  [3][3][256]int32
	offset [3]int32
}

// NewFilter precomputes tables for m.
func NewFilter(m Matrix) *Filter {
	f := &Filter{}
	scale := float64(int32(1) << fixedShift)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for v := 0; v < 256; v++ {
				f.table[i][j][v] = int32(roundHalfAway(m.M[i][j] * float64(v) * scale))
			}
		}
		f.offset[i] = int32(roundHalfAway(m.Offset[i]*255*scale)) + 1<<(fixedShift-1)
	}
	return f
}

// ApplyRGB transforms one pixel.
func (f *Filter) ApplyRGB(r, g, b uint8) (uint8, uint8, uint8) {
	return f.channel(0, r, g, b), f.channel(1, r, g, b), f.channel(2, r, g, b)
}

func (f *Filter) channel(i int, r, g, b uint8) uint8 {
	v := (f.table[i][0][r] + f.table[i][1][g] + f.table[i][2][b] + f.offset[i]) >> fixedShift
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// Apply transforms img in place and forces it opaque.
func (f *Filter) Apply(img *image.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for x := 0; x+3 < len(row); x += 4 {
			r, g, bl := row[x], row[x+1], row[x+2]
			row[x], row[x+1], row[x+2] = f.ApplyRGB(r, g, bl)
			row[x+3] = 0xff
		}
	}
}

func roundHalfAway(v float64) float64 {
	if v < 0 {
		return -roundHalfAway(-v)
	}
	return float64(int64(v + 0.5))
}
