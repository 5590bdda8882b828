package emath

import(
	"fmt"
	"image"
	"image/color"
	"math"
)

// Rec. 601 luma weights, in R,G,B order
var LumaWeights = Vec3{0.299, 0.587, 0.114}

// A FloatImage is a W x H image with C interleaved float32 channels
// (C is 1 for gray, 3 for R,G,B). The pyramids are made of these.
type FloatImage struct {
	W, H, C int
	Pix     []float32
}

func NewFloatImage(w, h, c int) *FloatImage {
	return &FloatImage{W: w, H: h, C: c, Pix: make([]float32, w*h*c)}
}

func (fi *FloatImage)String() string { return fmt.Sprintf("%dx%dx%d", fi.W, fi.H, fi.C) }
func (fi *FloatImage)Stride() int    { return fi.W * fi.C }
func (fi *FloatImage)Row(y int) []float32 {
	s := fi.Stride()
	return fi.Pix[y*s : (y+1)*s]
}

func (fi *FloatImage)At(x, y, ch int) float32    { return fi.Pix[(y*fi.W + x)*fi.C + ch] }
func (fi *FloatImage)Set(x, y, ch int, v float32) { fi.Pix[(y*fi.W + x)*fi.C + ch] = v }

func (fi *FloatImage)SameShape(o *FloatImage) bool {
	return o != nil && fi.W == o.W && fi.H == o.H && fi.C == o.C
}

func (fi *FloatImage)Copy() *FloatImage {
	c := &FloatImage{W: fi.W, H: fi.H, C: fi.C, Pix: make([]float32, len(fi.Pix))}
	copy(c.Pix, fi.Pix)
	return c
}

// Add accumulates o into fi, which must have the same shape
func (fi *FloatImage)Add(o *FloatImage) {
	for i, v := range o.Pix {
		fi.Pix[i] += v
	}
}

// Sub subtracts o from fi, which must have the same shape
func (fi *FloatImage)Sub(o *FloatImage) {
	for i, v := range o.Pix {
		fi.Pix[i] -= v
	}
}

// Luminance collapses the channels into a single grid. Gray images are
// copied through as they are.
func (fi *FloatImage)Luminance(workers int) *FloatGrid {
	g := NewFloatGrid(fi.W, fi.H)
	if fi.C == 1 {
		copy(g.values, fi.Pix)
		return g
	}
	wr, wg, wb := float32(LumaWeights[0]), float32(LumaWeights[1]), float32(LumaWeights[2])
	ParallelRows(fi.H, workers, func(y0, y1 int) {
		for y:=y0; y<y1; y++ {
			row := fi.Row(y)
			out := g.Row(y)
			for x:=0; x<fi.W; x++ {
				p := row[x*fi.C:]
				out[x] = wr*p[0] + wg*p[1] + wb*p[2]
			}
		}
	})
	return g
}

// FromImage converts an 8-bit image into floats. Gray images stay single
// channel, everything else becomes R,G,B.
func FromImage(img image.Image) *FloatImage {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch src := img.(type) {
	case *image.Gray:
		fi := NewFloatImage(w, h, 1)
		for y:=0; y<h; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			row := src.Pix[off : off+w]
			out := fi.Row(y)
			for x, v := range row {
				out[x] = float32(v)
			}
		}
		return fi

	case *image.RGBA:
		fi := NewFloatImage(w, h, 3)
		for y:=0; y<h; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			row := src.Pix[off : off+4*w]
			out := fi.Row(y)
			for x:=0; x<w; x++ {
				out[3*x]   = float32(row[4*x])
				out[3*x+1] = float32(row[4*x+1])
				out[3*x+2] = float32(row[4*x+2])
			}
		}
		return fi
	}

	if img.ColorModel() == color.GrayModel || img.ColorModel() == color.Gray16Model {
		fi := NewFloatImage(w, h, 1)
		for y:=0; y<h; y++ {
			for x:=0; x<w; x++ {
				g := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
				fi.Set(x, y, 0, float32(g.Y))
			}
		}
		return fi
	}

	fi := NewFloatImage(w, h, 3)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			fi.Set(x, y, 0, float32(r>>8))
			fi.Set(x, y, 1, float32(g>>8))
			fi.Set(x, y, 2, float32(bl>>8))
		}
	}
	return fi
}

// ToImage clamps and rounds the floats back into an 8-bit image; an
// *image.Gray for one channel, an opaque *image.RGBA otherwise.
func (fi *FloatImage)ToImage() image.Image {
	r := image.Rect(0, 0, fi.W, fi.H)
	if fi.C == 1 {
		img := image.NewGray(r)
		for y:=0; y<fi.H; y++ {
			in := fi.Row(y)
			for x:=0; x<fi.W; x++ {
				img.Pix[y*img.Stride + x] = Clamp8(in[x])
			}
		}
		return img
	}

	img := image.NewRGBA(r)
	for y:=0; y<fi.H; y++ {
		in := fi.Row(y)
		out := img.Pix[y*img.Stride:]
		for x:=0; x<fi.W; x++ {
			out[4*x]   = Clamp8(in[x*fi.C])
			out[4*x+1] = Clamp8(in[x*fi.C+1])
			out[4*x+2] = Clamp8(in[x*fi.C+2])
			out[4*x+3] = 0xFF
		}
	}
	return img
}

// MaxAbsDiff is the largest per-sample difference between two same shape images
func (fi *FloatImage)MaxAbsDiff(o *FloatImage) float64 {
	max := 0.0
	for i, v := range fi.Pix {
		if d := math.Abs(float64(v - o.Pix[i])); d > max {
			max = d
		}
	}
	return max
}

func (fi *FloatImage)Dims() (int, int, int) { return fi.W, fi.H, fi.C }
