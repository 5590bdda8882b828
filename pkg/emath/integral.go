package emath

import "math"

// An Integral holds the summed area tables of a grid, and of the squares
// of its values. Both tables carry a leading zero row and column, so
// the sum over any rectangle is four lookups.
//
// The tables are built over the values less the grid's mean, which
// keeps the running totals small; otherwise, over a big grid, they grow
// until a window's share is lost in their rounding. Window sums come
// back in those offset terms.
type Integral struct {
	w, h    int
	offset  float64
	absMax  float64
	sum     []float64
	sq      []float64
}

func NewIntegral(g *FloatGrid) *Integral {
	w, h := g.Dx(), g.Dy()
	in := &Integral{
		w:   w,
		h:   h,
		sum: make([]float64, (w+1)*(h+1)),
		sq:  make([]float64, (w+1)*(h+1)),
	}

	total := 0.0
	for _, v := range g.values {
		total += float64(v)
		in.absMax = math.Max(in.absMax, math.Abs(float64(v)))
	}
	if n := len(g.values); n > 0 {
		in.offset = total / float64(n)
	}

	stride := w+1
	for y:=0; y<h; y++ {
		rowSum, rowSq := 0.0, 0.0
		src := g.Row(y)
		for x:=0; x<w; x++ {
			v := float64(src[x]) - in.offset
			rowSum += v
			rowSq  += v*v
			i := (y+1)*stride + x+1
			in.sum[i] = in.sum[i-stride] + rowSum
			in.sq[i]  = in.sq[i-stride]  + rowSq
		}
	}
	return in
}

// Offset is the value subtracted from every sample before summing
func (in *Integral)Offset() float64 { return in.offset }

// AbsMax is the largest magnitude of any sample in the grid
func (in *Integral)AbsMax() float64 { return in.absMax }

// Window returns the sum and the sum of squares of (v - Offset()) over
// the half-open rectangle [x0,x1) x [y0,y1), clipped to the grid, along
// with how many grid samples that clipped rectangle holds.
func (in *Integral)Window(x0, y0, x1, y1 int) (float64, float64, int) {
	if x0 < 0    { x0 = 0 }
	if y0 < 0    { y0 = 0 }
	if x1 > in.w { x1 = in.w }
	if y1 > in.h { y1 = in.h }
	if x0 >= x1 || y0 >= y1 {
		return 0, 0, 0
	}

	stride := in.w+1
	a, b := y0*stride + x0, y0*stride + x1
	c, d := y1*stride + x0, y1*stride + x1
	return in.sum[d] - in.sum[b] - in.sum[c] + in.sum[a],
		in.sq[d] - in.sq[b] - in.sq[c] + in.sq[a],
		(x1-x0) * (y1-y0)
}
