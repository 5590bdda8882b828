package fft2d

import(
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImpulseHasFlatSpectrum(t *testing.T) {
	t.Parallel()

	g := NewGrid(6, 5)
	g.Set(0, 0, 1)
	g.Forward()

	for _, v := range g.Data {
		assert.InDelta(t, 1.0, real(v), 1e-12)
		assert.InDelta(t, 0.0, imag(v), 1e-12)
	}
}

func TestInverseUndoesForward(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(7))
	g := NewGrid(33, 18) // more rows than one band, odd width
	for i := range g.Data {
		g.Data[i] = complex(r.Float64(), r.Float64())
	}
	orig := append([]complex128(nil), g.Data...)

	g.Forward()
	g.Inverse()
	for i := range g.Data {
		assert.InDelta(t, 0.0, cmplx.Abs(g.Data[i]-orig[i]), 1e-9)
	}
}

func TestForwardIsTheSameOnAnyPool(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(11))
	base := NewGrid(21, 14)
	for i := range base.Data {
		base.Data[i] = complex(r.Float64(), 0)
	}

	one := &Grid{W: base.W, H: base.H, Data: append([]complex128(nil), base.Data...), Workers: 1}
	one.Forward()
	for _, workers := range []int{0, 3} {
		g := &Grid{W: base.W, H: base.H, Data: append([]complex128(nil), base.Data...), Workers: workers}
		g.Forward()
		assert.Equal(t, one.Data, g.Data, "workers=%d", workers)
	}
}

func TestShiftedImpulsePeaksAfterInverse(t *testing.T) {
	t.Parallel()

	g := NewGrid(8, 8)
	g.Set(3, 2, 1)
	g.Forward()
	g.Inverse()

	assert.InDelta(t, 1.0, real(g.At(3, 2)), 1e-12)
	assert.InDelta(t, 0.0, real(g.At(0, 0)), 1e-12)
}

func TestFreq(t *testing.T) {
	t.Parallel()

	var got []int
	for k:=0; k<8; k++ {
		got = append(got, Freq(k, 8))
	}
	assert.Equal(t, []int{0, 1, 2, 3, -4, -3, -2, -1}, got)

	got = got[:0]
	for k:=0; k<5; k++ {
		got = append(got, Freq(k, 5))
	}
	assert.Equal(t, []int{0, 1, 2, -2, -1}, got)
}
