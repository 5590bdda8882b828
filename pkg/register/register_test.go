package register

import(
	"image"
	"image/color"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/focus-stack/pkg/emath"
)

func texture(seed int64, w, h int) *emath.FloatGrid {
	r := rand.New(rand.NewSource(seed))
	g := emath.NewFloatGrid(w, h)
	for i := range g.Values() {
		g.Values()[i] = float32(r.Intn(256))
	}
	return g
}

// circShift returns a wrapped copy with out(x,y) == g(x+dx, y+dy); the
// shift that aligns it back onto g is (dx,dy).
func circShift(g *emath.FloatGrid, dx, dy int) *emath.FloatGrid {
	w, h := g.Dx(), g.Dy()
	out := g.NewFromThis()
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			out.Set(x, y, g.Get(((x+dx)%w+w)%w, ((y+dy)%h+h)%h))
		}
	}
	return out
}

func blobs(w, h int, cx, cy float64) *emath.FloatGrid {
	spots := [][3]float64{{0, 0, 200}, {-5, 3, 120}, {4, -4, 160}, {6, 5, 90}}
	g := emath.NewFloatGrid(w, h)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			v := 0.0
			for _, s := range spots {
				dx := float64(x) - (cx + s[0])
				dy := float64(y) - (cy + s[1])
				v += s[2] * math.Exp(-(dx*dx + dy*dy) / (2 * 2.0 * 2.0))
			}
			g.Set(x, y, float32(v))
		}
	}
	return g
}

func grayImage(g *emath.FloatGrid) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, g.Dx(), g.Dy()))
	for y:=0; y<g.Dy(); y++ {
		for x:=0; x<g.Dx(); x++ {
			img.SetGray(x, y, color.Gray{emath.Clamp8(g.Get(x, y))})
		}
	}
	return img
}

func TestPhaseCorrelateWholePixelShift(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		dx, dy int
	}{
		{"right and up", 3, -2},
		{"left", -5, 0},
		{"none", 0, 0},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ref := texture(1, 32, 24)
			target := circShift(ref, tc.dx, tc.dy)

			s := PhaseCorrelate(ref, target, DefaultScaleFactor)
			assert.InDelta(t, float64(tc.dx), s.DX, 1e-9)
			assert.InDelta(t, float64(tc.dy), s.DY, 1e-9)
		})
	}
}

func TestPhaseCorrelateSubPixelShift(t *testing.T) {
	t.Parallel()

	ref := blobs(48, 40, 24, 20)
	target := blobs(48, 40, 24-2.3, 20+1.6)

	s := PhaseCorrelate(ref, target, DefaultScaleFactor)
	assert.InDelta(t, 2.3, s.DX, 0.2)
	assert.InDelta(t, -1.6, s.DY, 0.2)
}

func TestPhaseCorrelateFlatImageGivesZeroShift(t *testing.T) {
	t.Parallel()

	for _, fill := range []float32{0, 100} {
		a := emath.NewFloatGrid(20, 15)
		b := emath.NewFloatGrid(20, 15)
		for i := range a.Values() {
			a.Values()[i] = fill
			b.Values()[i] = fill
		}

		s := PhaseCorrelate(a, b, DefaultScaleFactor)
		assert.Equal(t, 0.0, s.DX, "fill %v", fill)
		assert.Equal(t, 0.0, s.DY, "fill %v", fill)
	}
}

func TestAlignSameImageIsUntouched(t *testing.T) {
	t.Parallel()

	img := grayImage(texture(2, 16, 16))
	out, s, err := Align(img, img, DefaultScaleFactor)
	require.NoError(t, err)
	assert.True(t, SameImage(img, out))
	assert.True(t, s.IsZero())
}

func TestAlignIdenticalCopiesGivesZeroShift(t *testing.T) {
	t.Parallel()

	g := texture(4, 24, 20)
	a, b := grayImage(g), grayImage(g)
	require.False(t, SameImage(a, b))

	out, s, err := Align(a, b, DefaultScaleFactor)
	require.NoError(t, err)
	assert.True(t, s.IsZero(), "%s", s)
	assert.Equal(t, a.Pix, out.(*image.Gray).Pix)
}

func TestAlignRecoversWholePixelShift(t *testing.T) {
	t.Parallel()

	g := texture(5, 40, 30)
	ref := grayImage(g)
	target := grayImage(circShift(g, -4, 3))

	a := Aligner{ScaleFactor: DefaultScaleFactor, Verbosity: 1}
	out, s, err := a.AlignAs("t1.png", ref, target)
	require.NoError(t, err)
	assert.InDelta(t, -4.0, s.DX, 1e-9)
	assert.InDelta(t, 3.0, s.DY, 1e-9)
	assert.Equal(t, "t1.png", s.Name)
	assert.Equal(t, 0.0, s.ErrorMetric, "interior should match exactly")

	// Away from the exposed border the aligned image equals the reference
	got := out.(*image.Gray)
	for y:=4; y<26; y++ {
		for x:=5; x<35; x++ {
			require.Equal(t, ref.GrayAt(x, y), got.GrayAt(x, y), "(%d,%d)", x, y)
		}
	}
}

func TestAlignerPoolSizeDoesNotChangeShift(t *testing.T) {
	t.Parallel()

	ref := grayImage(blobs(48, 40, 24, 20))
	target := grayImage(blobs(48, 40, 24-2.3, 20+1.6))

	def := Aligner{ScaleFactor: DefaultScaleFactor}
	_, want, err := def.Align(ref, target)
	require.NoError(t, err)

	for _, workers := range []int{1, 3} {
		a := Aligner{ScaleFactor: DefaultScaleFactor, Workers: workers}
		_, got, err := a.Align(ref, target)
		require.NoError(t, err)
		assert.Equal(t, want, got, "workers=%d", workers)
	}
}

func TestAlignRejectsSizeMismatch(t *testing.T) {
	t.Parallel()

	a := image.NewGray(image.Rect(0, 0, 8, 8))
	b := image.NewGray(image.Rect(0, 0, 8, 9))
	_, _, err := Align(a, b, DefaultScaleFactor)
	assert.ErrorIs(t, err, ErrSize)
}

func TestXFormImageFillsExposedBorderWithBlack(t *testing.T) {
	t.Parallel()

	src := image.NewRGBA(image.Rect(0, 0, 5, 5))
	for y:=0; y<5; y++ {
		for x:=0; x<5; x++ {
			src.SetRGBA(x, y, color.RGBA{200, 100, 50, 255})
		}
	}
	src.SetRGBA(1, 1, color.RGBA{255, 255, 255, 255})

	out := Shift{DX: 2, DY: 1}.XFormImage(src).(*image.RGBA)
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, out.RGBAAt(3, 2))
	assert.Equal(t, color.RGBA{}, out.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{}, out.RGBAAt(1, 4))
	assert.Equal(t, color.RGBA{200, 100, 50, 255}, out.RGBAAt(4, 4))
}
