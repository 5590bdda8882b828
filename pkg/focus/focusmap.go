package focus

import(
	"errors"
	"fmt"
	"math"

	"github.com/abworrall/focus-stack/pkg/emath"
)

// DefaultKernelSize is the side of the square window the local
// deviation is measured over.
const DefaultKernelSize = 6

var ErrShape = errors.New("focus map inputs differ in shape")

// A Map says, for each pixel, which of two sources is locally sharper:
// 0 for the first source, 1 for the second.
type Map struct {
	W, H int
	Sel  []uint8
}

func NewMap(w, h int) *Map {
	return &Map{W: w, H: h, Sel: make([]uint8, w*h)}
}

func (m *Map)At(x, y int) uint8 { return m.Sel[y*m.W + x] }

func (m *Map)String() string {
	n := 0
	for _, s := range m.Sel {
		if s != 0 {
			n++
		}
	}
	return fmt.Sprintf("FocusMap[%dx%d, %d/%d from B]", m.W, m.H, n, len(m.Sel))
}

// ResizeArea resamples the map to w x h by area averaging, then rounds
// each value back to a selector: a pixel takes B if at least half of
// the area under it did.
func (m *Map)ResizeArea(w, h int) *Map {
	g := emath.NewFloatGrid(m.W, m.H)
	for i, s := range m.Sel {
		if s != 0 {
			g.Values()[i] = 1
		}
	}

	out := NewMap(w, h)
	for i, v := range g.ResizeArea(w, h).Values() {
		if v >= 0.5 {
			out.Sel[i] = 1
		}
	}
	return out
}

// Dump writes the map to a titled PNG; B pixels are white.
func (m *Map)Dump(title, filename string) error {
	g := emath.NewFloatGrid(m.W, m.H)
	for i, s := range m.Sel {
		if s != 0 {
			g.Values()[i] = 255
		}
	}
	return g.ToImg(title, filename)
}

// Variances closer together than tieEps*R*R, where R is the largest
// sample magnitude in either grid, count as equal. That is well above
// the rounding left in the integral image sums, even for very big
// grids, and well below any difference in sharpness that shows.
const tieEps = 1e-7

// Compute builds the focus map for two same sized luminance grids. For
// each pixel it takes the k x k window that starts k/2 pixels up and to
// the left (so for k=6, offsets -3..+2), counting anything off the edge
// of the grid as zero, and compares the population standard deviations
// of the two windows. B is selected only where its deviation is bigger
// by more than the tie tolerance, so ties go to A.
func Compute(a, b *emath.FloatGrid, k int) (*Map, error) {
	return compute(a, b, k, 0)
}

func compute(a, b *emath.FloatGrid, k, workers int) (*Map, error) {
	if err := checkGrids(a, b, k); err != nil {
		return nil, err
	}

	w, h := a.Dx(), a.Dy()
	ia, ib := emath.NewIntegral(a), emath.NewIntegral(b)
	tol := tieTolerance(ia.AbsMax(), ib.AbsMax())
	m := NewMap(w, h)

	emath.ParallelRows(h, workers, func(y0, y1 int) {
		selectRows(ia, ib, tol, m, k, 0, w, y0, y1)
	})

	return m, nil
}

// selectRows fills in the map for the rectangle [x0,x1) x [y0,y1)
func selectRows(ia, ib *emath.Integral, tol float64, m *Map, k, x0, x1, y0, y1 int) {
	half := k/2
	for y:=y0; y<y1; y++ {
		row := m.Sel[y*m.W : (y+1)*m.W]
		for x:=x0; x<x1; x++ {
			va := paddedVariance(ia, x-half, y-half, k)
			vb := paddedVariance(ib, x-half, y-half, k)
			if vb - va > tol {
				row[x] = 1
			} else {
				row[x] = 0
			}
		}
	}
}

// paddedVariance is the population variance of the k x k window at
// x0,y0, where the samples off the grid are zeros. The integral sums
// are of v-c, so each of those zeros contributes -c.
func paddedVariance(in *emath.Integral, x0, y0, k int) float64 {
	s, sq, count := in.Window(x0, y0, x0+k, y0+k)
	n := float64(k*k)
	c := in.Offset()
	pad := n - float64(count)

	s  -= c*pad
	sq += c*c*pad
	mean := s / n
	return math.Max(sq/n - mean*mean, 0)
}

// ComputeDirect is Compute without the integral images: every window is
// summed out in full, in two passes. Slow, but obviously right.
func ComputeDirect(a, b *emath.FloatGrid, k int) (*Map, error) {
	if err := checkGrids(a, b, k); err != nil {
		return nil, err
	}

	w, h := a.Dx(), a.Dy()
	half := k/2
	tol := tieTolerance(absMax(a), absMax(b))
	m := NewMap(w, h)

	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			va := windowVariance(a, x-half, y-half, k)
			vb := windowVariance(b, x-half, y-half, k)
			if vb - va > tol {
				m.Sel[y*w + x] = 1
			}
		}
	}
	return m, nil
}

// windowVariance is the population variance of the k x k window at
// x0,y0, with zeros off the edge of the grid
func windowVariance(g *emath.FloatGrid, x0, y0, k int) float64 {
	at := func(x, y int) float64 {
		if x < 0 || y < 0 || x >= g.Dx() || y >= g.Dy() {
			return 0
		}
		return float64(g.Get(x, y))
	}

	n := float64(k*k)
	sum := 0.0
	for y:=y0; y<y0+k; y++ {
		for x:=x0; x<x0+k; x++ {
			sum += at(x, y)
		}
	}
	mean := sum / n

	sq := 0.0
	for y:=y0; y<y0+k; y++ {
		for x:=x0; x<x0+k; x++ {
			d := at(x, y) - mean
			sq += d*d
		}
	}
	return sq / n
}

func tieTolerance(absMaxA, absMaxB float64) float64 {
	r := math.Max(absMaxA, absMaxB)
	return tieEps * r * r
}

func absMax(g *emath.FloatGrid) float64 {
	m := 0.0
	for _, v := range g.Values() {
		m = math.Max(m, math.Abs(float64(v)))
	}
	return m
}

func checkGrids(a, b *emath.FloatGrid, k int) error {
	if k < 1 {
		return fmt.Errorf("focus map kernel size %d: must be at least 1", k)
	}
	if a.Dx() != b.Dx() || a.Dy() != b.Dy() {
		return fmt.Errorf("focus map %dx%d vs %dx%d: %w", a.Dx(), a.Dy(), b.Dx(), b.Dy(), ErrShape)
	}
	return nil
}
