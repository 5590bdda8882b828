package register

import(
	"errors"
	"fmt"
	"image"
	"image/draw"
	"log"
	"math"
	"path/filepath"
	"reflect"
	"strings"

	xdraw "golang.org/x/image/draw" // replace by "image/draw" at some point
	"golang.org/x/image/math/f64"  // replace by "image/math/f64" at some point

	"github.com/abworrall/focus-stack/pkg/emath"
	"github.com/abworrall/focus-stack/pkg/fft2d"
)

// DefaultScaleFactor is how finely the correlation peak is resampled:
// shifts are found to 1/10th of a pixel.
const DefaultScaleFactor = 10

var ErrSize = errors.New("images differ in size")

// A Shift is a translation that maps a pixel location in a target
// image onto the same scene point in the reference image.
type Shift struct {
	Name         string

	DX           float64
	DY           float64

	ErrorMetric  float64 // mean luminance difference after alignment, if computed
}

func (s Shift)String() string {
	str := fmt.Sprintf("Shift[%s (%6.2f,%6.2f)", s.Name, s.DX, s.DY)
	if s.ErrorMetric != 0.0 {
		str += fmt.Sprintf(", err:%6.3f", s.ErrorMetric)
	}
	return str + "]"
}

func (s Shift)IsZero() bool { return s.DX == 0 && s.DY == 0 }

func (s Shift)ToMatrix() emath.Aff3 {
	return emath.Identity().Translate(s.DX, s.DY)
}

// XFormImage returns a translated copy of src, with the same bounds and
// pixel type (*image.Gray stays gray, everything else becomes
// *image.RGBA). Fractional shifts are interpolated with Catmull-Rom.
// Destination pixels that no source pixel maps onto are left at zero,
// i.e. black (and transparent, for RGBA).
func (s Shift)XFormImage(src image.Image) image.Image {
	var dst draw.Image
	if _, isGray := src.(*image.Gray); isGray {
		dst = image.NewGray(src.Bounds())
	} else {
		dst = image.NewRGBA(src.Bounds())
	}

	if s.IsZero() {
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
		return dst
	}

	m := s.ToMatrix()
	if m.IsIntegerTranslation() {
		xdraw.NearestNeighbor.Transform(dst, f64.Aff3(m), src, src.Bounds(), xdraw.Src, nil)
	} else {
		xdraw.CatmullRom.Transform(dst, f64.Aff3(m), src, src.Bounds(), xdraw.Src, nil)
	}
	return dst
}

// Align registers target against reference, and returns a copy of
// target translated so that it lines up with reference. If both
// arguments are the same image, target is returned as it is.
func Align(reference, target image.Image, scaleFactor int) (image.Image, Shift, error) {
	a := Aligner{ScaleFactor: scaleFactor}
	return a.Align(reference, target)
}

// An Aligner registers a series of targets against a reference. It keeps
// the spectrum of the most recent reference, so aligning many targets
// against one reference costs one forward transform per target. Not safe
// for concurrent use.
type Aligner struct {
	ScaleFactor  int
	Verbosity    int
	DebugDir     string  // if set, luminance difference grids are dumped here
	Workers      int     // pool size for the transforms; <= 0 is one per CPU

	ref          image.Image
	refSpectrum *fft2d.Grid
}

func (a *Aligner)Align(reference, target image.Image) (image.Image, Shift, error) {
	return a.AlignAs("", reference, target)
}

// AlignAs is Align, with a name to tag the shift (and any debug output) with
func (a *Aligner)AlignAs(name string, reference, target image.Image) (image.Image, Shift, error) {
	if SameImage(reference, target) {
		return target, Shift{Name: name}, nil
	}

	if reference.Bounds().Size() != target.Bounds().Size() {
		return nil, Shift{}, fmt.Errorf("align %v against %v: %w", target.Bounds(), reference.Bounds(), ErrSize)
	}

	if !SameImage(a.ref, reference) {
		a.ref = reference
		a.refSpectrum = a.spectrum(reference)
	}
	tgt := a.spectrum(target)

	shift := correlateSpectra(a.refSpectrum, tgt, a.ScaleFactor)
	shift.Name = name
	aligned := shift.XFormImage(target)

	if a.Verbosity > 0 || a.DebugDir != "" {
		grid, metric := diffGrid(reference, aligned, shift, a.Workers)
		shift.ErrorMetric = metric
		if a.DebugDir != "" {
			filename := filepath.Join(a.DebugDir, fmt.Sprintf("diff-%s.png", debugName(name)))
			if err := grid.ToImg(shift.String(), filename); err != nil {
				log.Printf("align: %v\n", err)
			}
		}
	}
	if a.Verbosity > 0 {
		log.Printf("Aligned: %s\n", shift)
	}

	return aligned, shift, nil
}

func (a *Aligner)spectrum(img image.Image) *fft2d.Grid {
	g := fft2d.FromReal(emath.FromImage(img).Luminance(a.Workers))
	g.Workers = a.Workers
	g.Forward()
	return g
}

// SameImage reports whether a and b are the same image value (not just
// equal pixels).
func SameImage(a, b image.Image) bool {
	if a == nil || b == nil {
		return false
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice:
		return va.Pointer() == vb.Pointer()
	}
	return false
}

func debugName(name string) string {
	if name == "" {
		return "target"
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// finite guards against a refinement that went numerically wrong
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
