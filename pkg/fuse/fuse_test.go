package fuse

import(
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/focus-stack/pkg/emath"
	"github.com/abworrall/focus-stack/pkg/focus"
	"github.com/abworrall/focus-stack/pkg/pyramid"
)

func texture(seed int64, w, h, c int) *emath.FloatImage {
	r := rand.New(rand.NewSource(seed))
	fi := emath.NewFloatImage(w, h, c)
	for i := range fi.Pix {
		fi.Pix[i] = float32(r.Intn(256))
	}
	return fi
}

// patchy has texture of a different strength in every 8x8 block
func patchy(seed int64, w, h int) *emath.FloatImage {
	r := rand.New(rand.NewSource(seed))
	amps := make([]float64, ((w+7)/8) * ((h+7)/8))
	for i := range amps {
		amps[i] = r.Float64()
	}
	fi := emath.NewFloatImage(w, h, 3)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			amp := amps[(y/8)*((w+7)/8) + x/8]
			for ch:=0; ch<3; ch++ {
				fi.Set(x, y, ch, float32(128 + amp*(r.Float64()*255 - 127.5)))
			}
		}
	}
	return fi
}

// halfSharp is textured on one half, and flat gray on the other
func halfSharp(seed int64, w, h int, left bool) *emath.FloatImage {
	fi := texture(seed, w, h, 3)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			if (x < w/2) != left {
				for ch:=0; ch<3; ch++ {
					fi.Set(x, y, ch, 128)
				}
			}
		}
	}
	return fi
}

func build(t *testing.T, fi *emath.FloatImage, depth int) *pyramid.Pyramid {
	t.Helper()
	p, err := pyramid.Build(fi, depth)
	require.NoError(t, err)
	return p
}

func copyPyramid(p *pyramid.Pyramid) *pyramid.Pyramid {
	c := &pyramid.Pyramid{}
	for _, l := range p.Levels {
		c.Levels = append(c.Levels, l.Copy())
	}
	return c
}

func assertPyramidsEqual(t *testing.T, want, got *pyramid.Pyramid) {
	t.Helper()
	require.Equal(t, want.Depth(), got.Depth())
	for i := range want.Levels {
		assert.Equal(t, want.Levels[i].Pix, got.Levels[i].Pix, "level %d", i)
	}
}

func TestFusePairWithItselfIsIdentity(t *testing.T) {
	t.Parallel()

	for _, depth := range []int{1, 2, 5} {
		p := build(t, texture(1, 48, 40, 3), depth)
		want := copyPyramid(p)

		f := New(focus.NewHostBackend(0), focus.DefaultKernelSize)
		got, err := f.FusePair(p, copyPyramid(want))
		require.NoError(t, err)
		assertPyramidsEqual(t, want, got)
	}
}

func TestFusePairKeepsSharperHalves(t *testing.T) {
	t.Parallel()

	const w, h = 64, 32
	a := halfSharp(2, w, h, true)
	b := halfSharp(3, w, h, false)

	f := New(focus.NewHostBackend(2), focus.DefaultKernelSize)
	fused, err := f.FusePair(build(t, a, 3), build(t, b, 3))
	require.NoError(t, err)
	out, err := pyramid.Reconstruct(fused)
	require.NoError(t, err)

	for y:=0; y<h; y++ {
		for ch:=0; ch<3; ch++ {
			for x:=0; x<12; x++ {
				require.InDelta(t, a.At(x, y, ch), out.At(x, y, ch), 0.5, "left (%d,%d)", x, y)
			}
			for x:=w-12; x<w; x++ {
				require.InDelta(t, b.At(x, y, ch), out.At(x, y, ch), 0.5, "right (%d,%d)", x, y)
			}
		}
	}
}

func TestFusePairRejectsShapeMismatch(t *testing.T) {
	t.Parallel()

	f := New(focus.NewHostBackend(0), focus.DefaultKernelSize)
	_, err := f.FusePair(build(t, texture(4, 32, 32, 3), 3), build(t, texture(4, 32, 32, 3), 2))
	assert.ErrorIs(t, err, pyramid.ErrShape)
}

func TestAccumulatorIsALeftFold(t *testing.T) {
	t.Parallel()

	imgs := []*emath.FloatImage{patchy(5, 48, 48), patchy(6, 48, 48), patchy(7, 48, 48)}
	f := New(focus.NewHostBackend(0), 4)

	fold := func(order ...int) *pyramid.Pyramid {
		acc := f.NewAccumulator()
		for _, i := range order {
			require.NoError(t, acc.Add(build(t, imgs[i], 4)))
		}
		assert.Equal(t, len(order), acc.Count())
		p, err := acc.Result()
		require.NoError(t, err)
		return p
	}

	ab, err := f.FusePair(build(t, imgs[0], 4), build(t, imgs[1], 4))
	require.NoError(t, err)
	want, err := f.FusePair(ab, build(t, imgs[2], 4))
	require.NoError(t, err)

	forwards := fold(0, 1, 2)
	assertPyramidsEqual(t, want, forwards)

	// Each image is compared against the running result, not the other
	// originals, so the order of the fold shows up in the output.
	backwards := fold(2, 1, 0)
	assert.NotEqual(t, forwards.Levels[0].Pix, backwards.Levels[0].Pix)
}

func TestAccumulatorDownloadsOnce(t *testing.T) {
	t.Parallel()

	sd := focus.NewSoftDevice()
	f := New(focus.NewDeviceBackend(sd), focus.DefaultKernelSize)
	acc := f.NewAccumulator()

	const depth = 3
	for i:=0; i<3; i++ {
		require.NoError(t, acc.Add(build(t, patchy(int64(10+i), 40, 24), depth)))
	}
	assert.Equal(t, int64(0), sd.Downloads())
	assert.Equal(t, int64(3*depth), sd.Uploads())
	assert.Equal(t, int64(depth), sd.Resident(), "only the running pyramid stays on the device")

	got, err := acc.Result()
	require.NoError(t, err)
	assert.Equal(t, int64(depth), sd.Downloads())
	assert.Equal(t, int64(0), sd.Resident())

	// Same thing on the host gives the same answer
	hostAcc := New(focus.NewHostBackend(0), focus.DefaultKernelSize).NewAccumulator()
	for i:=0; i<3; i++ {
		require.NoError(t, hostAcc.Add(build(t, patchy(int64(10+i), 40, 24), depth)))
	}
	want, err := hostAcc.Result()
	require.NoError(t, err)
	assertPyramidsEqual(t, want, got)

	_, err = acc.Result()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestAccumulatorReleasesAddedPyramids(t *testing.T) {
	t.Parallel()

	acc := New(focus.NewHostBackend(0), focus.DefaultKernelSize).NewAccumulator()
	p1 := build(t, texture(20, 16, 16, 1), 2)
	p2 := build(t, texture(21, 16, 16, 1), 2)
	require.NoError(t, acc.Add(p1))
	require.NoError(t, acc.Add(p2))
	assert.Equal(t, 0, p1.Depth())
	assert.Equal(t, 0, p2.Depth())

	err := acc.Add(build(t, texture(22, 16, 16, 1), 3))
	assert.ErrorIs(t, err, pyramid.ErrShape)
}

type memSource map[string]*pyramid.Pyramid

func (ms memSource)Load(id string) (*pyramid.Pyramid, error) {
	if p, exists := ms[id]; exists {
		return copyPyramid(p), nil
	}
	return nil, errors.New("no such archive")
}

func TestFuseStored(t *testing.T) {
	t.Parallel()

	src := memSource{}
	ids := []string{"a", "b", "c"}
	for i, id := range ids {
		src[id] = build(t, patchy(int64(30+i), 32, 32), 3)
	}
	f := New(focus.NewHostBackend(0), focus.DefaultKernelSize)

	seen := []int{}
	got, err := f.FuseStored(context.Background(), src, ids, func(i int, id string, elapsed time.Duration) {
		assert.Equal(t, ids[i-1], id)
		seen = append(seen, i)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)

	acc := f.NewAccumulator()
	for _, id := range ids {
		p, _ := src.Load(id)
		require.NoError(t, acc.Add(p))
	}
	want, err := acc.Result()
	require.NoError(t, err)
	assertPyramidsEqual(t, want, got)
}

func TestFuseStoredStopsOnErrors(t *testing.T) {
	t.Parallel()

	src := memSource{"a": build(t, texture(40, 16, 16, 3), 2)}
	f := New(focus.NewHostBackend(0), focus.DefaultKernelSize)

	_, err := f.FuseStored(context.Background(), src, []string{"a", "missing", "a"}, nil)
	assert.ErrorContains(t, err, "missing")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.FuseStored(ctx, src, []string{"a"}, nil)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = f.FuseStored(context.Background(), src, nil, nil)
	assert.ErrorIs(t, err, ErrEmpty)
}
