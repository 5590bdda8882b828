package fft2d

// Two dimensional complex DFTs, done as a pass of 1D transforms over
// the rows followed by a pass over the columns. The 1D work is done by
// gonum's dsp/fourier, so any size works (not just powers of two).

import(
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/abworrall/focus-stack/pkg/emath"
)

// A Grid is a W x H array of complex values, stored row by row.
// Workers bounds the pool used by the transforms (<= 0 means one per CPU).
type Grid struct {
	W, H    int
	Data    []complex128
	Workers int
}

func NewGrid(w, h int) *Grid {
	return &Grid{W: w, H: h, Data: make([]complex128, w*h)}
}

// FromReal copies a float grid into the real parts of a new complex grid
func FromReal(g *emath.FloatGrid) *Grid {
	c := NewGrid(g.Dx(), g.Dy())
	for i, v := range g.Values() {
		c.Data[i] = complex(float64(v), 0)
	}
	return c
}

func (g *Grid)At(x, y int) complex128    { return g.Data[y*g.W + x] }
func (g *Grid)Set(x, y int, v complex128) { g.Data[y*g.W + x] = v }
func (g *Grid)Row(y int) []complex128     { return g.Data[y*g.W : (y+1)*g.W] }

// Forward replaces the grid with its DFT
func (g *Grid)Forward() {
	g.transform(true)
}

// Inverse replaces the grid with its inverse DFT, scaled by 1/(W*H) so
// that Inverse undoes Forward.
func (g *Grid)Inverse() {
	g.transform(false)
	scale := complex(1.0/float64(g.W*g.H), 0)
	for i := range g.Data {
		g.Data[i] *= scale
	}
}

func (g *Grid)transform(forward bool) {
	if g.W == 0 || g.H == 0 {
		return
	}

	// rows; the fourier plans keep scratch space, so each band gets its own
	emath.ParallelRows(g.H, g.Workers, func(y0, y1 int) {
		fft := fourier.NewCmplxFFT(g.W)
		for y:=y0; y<y1; y++ {
			row := g.Row(y)
			if forward {
				fft.Coefficients(row, row)
			} else {
				fft.Sequence(row, row)
			}
		}
	})

	// cols
	emath.ParallelRows(g.W, g.Workers, func(x0, x1 int) {
		fft := fourier.NewCmplxFFT(g.H)
		col := make([]complex128, g.H)
		for x:=x0; x<x1; x++ {
			for y:=0; y<g.H; y++ {
				col[y] = g.Data[y*g.W + x]
			}
			if forward {
				fft.Coefficients(col, col)
			} else {
				fft.Sequence(col, col)
			}
			for y:=0; y<g.H; y++ {
				g.Data[y*g.W + x] = col[y]
			}
		}
	})
}

// Freq maps a DFT bin index to its signed frequency, so for n=8 the
// bins 0..7 are the frequencies 0,1,2,3,-4,-3,-2,-1.
func Freq(k, n int) int {
	if k < (n+1)/2 {
		return k
	}
	return k - n
}
