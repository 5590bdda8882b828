package register

import(
	"image"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/abworrall/focus-stack/pkg/emath"
)

// DiffGrid compares a reference with a target that has been aligned to
// it by s, and returns the per-pixel absolute luminance difference,
// along with its mean. Pixels within reach of the border that the shift
// exposed are left out of the mean (and left at zero in the grid), as
// they hold fill rather than image.
func DiffGrid(ref, aligned image.Image, s Shift) (*emath.FloatGrid, float64) {
	return diffGrid(ref, aligned, s, 0)
}

func diffGrid(ref, aligned image.Image, s Shift, workers int) (*emath.FloatGrid, float64) {
	l1 := emath.FromImage(ref).Luminance(workers)
	l2 := emath.FromImage(aligned).Luminance(workers)
	w, h := l1.Dx(), l1.Dy()
	diff := emath.NewFloatGrid(w, h)

	// Catmull-Rom reaches 2 pixels, so a fractional shift taints 2 more
	mx := int(math.Ceil(math.Abs(s.DX))) + 2
	my := int(math.Ceil(math.Abs(s.DY))) + 2
	if s.IsZero() {
		mx, my = 0, 0
	}

	vals := make([]float64, 0, w*h)
	for y:=my; y<h-my; y++ {
		for x:=mx; x<w-mx; x++ {
			d := math.Abs(float64(l1.Get(x, y) - l2.Get(x, y)))
			diff.Set(x, y, float32(d))
			vals = append(vals, d)
		}
	}

	if len(vals) == 0 {
		return diff, 0
	}
	return diff, stat.Mean(vals, nil)
}

// Diff returns the mean absolute luminance difference between two
// images of the same size.
func Diff(a, b image.Image) float64 {
	_, metric := DiffGrid(a, b, Shift{})
	return metric
}
