package emath

import(
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg" // Move to https://pkg.go.dev/golang.org/x/image/font#Drawer sometime
)

// A FloatGrid is a single channel grid of floats, stored row by row.
// Luminance planes and focus maps on their way to a debug dump live
// in these.
type FloatGrid struct {
	stride int
	values []float32
}

func NewFloatGrid(w, h int) *FloatGrid {
	return &FloatGrid{
		stride: w,
		values: make([]float32, w*h),
	}
}

func (g1 *FloatGrid)NewFromThis() *FloatGrid  { return NewFloatGrid(g1.Dx(), g1.Dy()) }
func (fg *FloatGrid)Set(x, y int, v float32)   { fg.values[fg.stride*y + x] = v }
func (fg *FloatGrid)Get(x, y int) float32      { return fg.values[fg.stride*y + x] }
func (fg *FloatGrid)Dx() int                   { return fg.stride }
func (fg *FloatGrid)Values() []float32         { return fg.values }
func (fg *FloatGrid)Row(y int) []float32       { return fg.values[fg.stride*y : fg.stride*(y+1)] }

func (fg *FloatGrid)Dy() int {
	if fg.stride == 0 {
		return 0
	}
	return len(fg.values) / fg.stride
}

func (g1 *FloatGrid)Copy() *FloatGrid {
	g2 := FloatGrid{stride: g1.stride, values:make([]float32, len(g1.values))}
	copy(g2.values, g1.values)
	return &g2
}

// ResizeArea resamples the grid to w x h by area averaging: each output
// value is the coverage-weighted mean of the input values under it.
func (g1 *FloatGrid)ResizeArea(w, h int) *FloatGrid {
	xt := areaTaps(g1.Dx(), w)
	yt := areaTaps(g1.Dy(), h)

	tmp := NewFloatGrid(w, g1.Dy())
	for y:=0; y<g1.Dy(); y++ {
		src := g1.Row(y)
		dst := tmp.Row(y)
		for x:=0; x<w; x++ {
			dst[x] = xt[x].apply(src, 1, 0)
		}
	}

	g2 := NewFloatGrid(w, h)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			g2.values[y*w + x] = yt[y].apply(tmp.values, w, x)
		}
	}
	return g2
}

func (fg *FloatGrid)MinMax() (float32, float32) {
	min := float32(math.MaxFloat32)
	max := -1.0 * min
	for _, v := range fg.values {
		if v > max { max = v }
		if v < min { min = v }
	}
	return min, max
}

// ToImg saves a simple grayscale, based on the range of values in the grid, and gamma scaling the
// gray to look normal for human vision. The title is drawn in the top left corner.
func (fg *FloatGrid)ToImg(title, filename string) error {
	min, max := fg.MinMax()
	span := float64(max - min)
	if span == 0 {
		span = 1
	}

	img := image.NewRGBA64(image.Rectangle{Max:image.Point{fg.Dx(), fg.Dy()}})
	for y:=0; y<fg.Dy(); y++ {
		for x:=0; x<fg.Dx(); x++ {
			v := float64(fg.Get(x,y) - min) / span
			gray := uint16(GammaExpand_F64(v) * 65535.0)
			img.Set(x, y, color.RGBA64{gray, gray, gray, 0xFFFF})
		}
	}

	dc := gg.NewContextForImage(img)
	dc.SetRGB(1,0,0)
	dc.DrawString(title, 10, 20)
	if err := dc.SavePNG(filename); err != nil {
		return fmt.Errorf("grid dump '%s': %w", filename, err)
	}
	return nil
}
