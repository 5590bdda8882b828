package register

import(
	"math"
	"math/cmplx"

	"github.com/abworrall/focus-stack/pkg/emath"
	"github.com/abworrall/focus-stack/pkg/fft2d"
)

// Cross-power bins weaker than this fraction of the strongest bin are
// treated as empty; they are rounding noise, and normalizing them would
// give them as much weight as real structure.
const spectrumFloor = 1e-10

// PhaseCorrelate estimates the shift that moves target onto ref. Both
// grids must be the same size. A scaleFactor > 1 refines the whole-pixel
// estimate to 1/scaleFactor of a pixel.
func PhaseCorrelate(ref, target *emath.FloatGrid, scaleFactor int) Shift {
	F := fft2d.FromReal(ref)
	G := fft2d.FromReal(target)
	F.Forward()
	G.Forward()
	return correlateSpectra(F, G, scaleFactor)
}

// correlateSpectra finds the peak of the phase correlation surface. The
// normalized cross-power spectrum R = F.conj(G)/|F.conj(G)| is inverted;
// the first largest value in scan order gives the whole pixel shift.
// Then the surface is evaluated on a grid of 1/scaleFactor steps
// around that peak, straight from R with a matrix multiply DFT.
//
// A flat image has an empty (or DC only) spectrum, so every sample of
// the surface ties; the tie-breaks always keep the earlier estimate, and
// so a flat image gives a zero shift.
//
// The working grids run on F's pool.
func correlateSpectra(F, G *fft2d.Grid, scaleFactor int) Shift {
	w, h := F.W, F.H

	R := fft2d.NewGrid(w, h)
	R.Workers = F.Workers
	mags := make([]float64, len(R.Data))
	maxMag := 0.0
	for i := range R.Data {
		R.Data[i] = F.Data[i] * cmplx.Conj(G.Data[i])
		mags[i] = cmplx.Abs(R.Data[i])
		if mags[i] > maxMag {
			maxMag = mags[i]
		}
	}
	floor := spectrumFloor * maxMag
	for i, m := range mags {
		if m > floor && m > 0 {
			R.Data[i] /= complex(m, 0)
		} else {
			R.Data[i] = 0
		}
	}

	corr := fft2d.NewGrid(w, h)
	corr.Workers = F.Workers
	copy(corr.Data, R.Data)
	corr.Inverse()

	best, px, py := -1.0, 0, 0
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			if v := cmplx.Abs(corr.At(x, y)); v > best {
				best, px, py = v, x, y
			}
		}
	}

	shift := Shift{
		DX: float64(fft2d.Freq(px, w)),
		DY: float64(fft2d.Freq(py, h)),
	}
	if scaleFactor <= 1 {
		return shift
	}

	refined := refine(R, shift, scaleFactor)
	if finite(refined.DX) && finite(refined.DY) {
		shift = refined
	}
	return shift
}

// refine evaluates the correlation surface on a region of
// ceil(1.5*u) x ceil(1.5*u) samples, spaced 1/u apart and centered on
// the coarse shift. The center sample is kept unless some other sample
// is strictly bigger.
func refine(R *fft2d.Grid, coarse Shift, u int) Shift {
	w, h := R.W, R.H
	region := int(math.Ceil(1.5 * float64(u)))
	center := region / 2

	offset := func(i int, c float64) float64 {
		return c + float64(i - center) / float64(u)
	}

	// Kernels: ex[c*w + x] = exp(+i 2pi q_c fx / w), likewise ey for rows
	ex := make([]complex128, region*w)
	for c:=0; c<region; c++ {
		q := offset(c, coarse.DX)
		for x:=0; x<w; x++ {
			ex[c*w + x] = cmplx.Exp(complex(0, 2*math.Pi * q * float64(fft2d.Freq(x, w)) / float64(w)))
		}
	}
	ey := make([]complex128, region*h)
	for r:=0; r<region; r++ {
		p := offset(r, coarse.DY)
		for y:=0; y<h; y++ {
			ey[r*h + y] = cmplx.Exp(complex(0, 2*math.Pi * p * float64(fft2d.Freq(y, h)) / float64(h)))
		}
	}

	// First pass collapses each row of R onto the region's columns
	T := make([]complex128, h*region)
	emath.ParallelRows(h, R.Workers, func(y0, y1 int) {
		for y:=y0; y<y1; y++ {
			row := R.Row(y)
			for c:=0; c<region; c++ {
				k := ex[c*w : (c+1)*w]
				s := complex(0, 0)
				for x, v := range row {
					if v != 0 {
						s += v * k[x]
					}
				}
				T[y*region + c] = s
			}
		}
	})

	bestR, bestC := center, center
	best := -1.0
	for r:=0; r<region; r++ {
		k := ey[r*h : (r+1)*h]
		for c:=0; c<region; c++ {
			s := complex(0, 0)
			for y:=0; y<h; y++ {
				s += k[y] * T[y*region + c]
			}
			v := cmplx.Abs(s)
			if r == center && c == center {
				if v >= best {
					best = v
					bestR, bestC = r, c
				}
			} else if v > best {
				best = v
				bestR, bestC = r, c
			}
		}
	}

	return Shift{
		DX: offset(bestC, coarse.DX),
		DY: offset(bestR, coarse.DY),
	}
}
