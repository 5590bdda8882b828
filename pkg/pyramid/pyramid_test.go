package pyramid

import(
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/focus-stack/pkg/emath"
)

func randomImage(seed int64, w, h, c int) *emath.FloatImage {
	r := rand.New(rand.NewSource(seed))
	fi := emath.NewFloatImage(w, h, c)
	for i := range fi.Pix {
		fi.Pix[i] = float32(r.Intn(256))
	}
	return fi
}

func TestMaxDepth(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, MaxDepth(1, 1))
	assert.Equal(t, 2, MaxDepth(3, 2))
	assert.Equal(t, 5, MaxDepth(16, 31))
	assert.Equal(t, 9, MaxDepth(640, 480))
	assert.Equal(t, 0, MaxDepth(0, 10))
}

func TestBuildLevelSizes(t *testing.T) {
	t.Parallel()

	p, err := Build(randomImage(1, 37, 20, 3), 4)
	require.NoError(t, err)
	require.Equal(t, 4, p.Depth())

	want := [][2]int{{37, 20}, {18, 10}, {9, 5}, {4, 2}}
	for i, l := range p.Levels {
		assert.Equal(t, want[i][0], l.W, "level %d", i)
		assert.Equal(t, want[i][1], l.H, "level %d", i)
		assert.Equal(t, 3, l.C, "level %d", i)
	}
}

func TestBuildRejectsBadDepth(t *testing.T) {
	t.Parallel()

	img := randomImage(2, 8, 8, 1)
	for _, depth := range []int{0, -1, 5, 100} {
		_, err := Build(img, depth)
		assert.ErrorIs(t, err, ErrDepth, "depth %d", depth)
	}
}

func TestBuildLeavesInputAlone(t *testing.T) {
	t.Parallel()

	img := randomImage(3, 16, 12, 3)
	orig := img.Copy()
	_, err := Build(img, 3)
	require.NoError(t, err)
	assert.Equal(t, orig.Pix, img.Pix)
}

func TestReconstructRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		w, h, c   int
		depth     int
	}{
		{"single level", 10, 10, 3, 1},
		{"even", 64, 48, 3, 6},
		{"odd sizes", 45, 31, 3, 5},
		{"gray", 33, 17, 1, 4},
		{"max depth", 16, 9, 1, MaxDepth(16, 9)},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			img := randomImage(4, tc.w, tc.h, tc.c)
			p, err := Build(img, tc.depth)
			require.NoError(t, err)

			out, err := Reconstruct(p)
			require.NoError(t, err)
			require.True(t, out.SameShape(img))
			assert.Less(t, img.MaxAbsDiff(out), 1.0/255)
		})
	}
}

func TestBuilderPoolSizeDoesNotChangeLevels(t *testing.T) {
	t.Parallel()

	img := randomImage(9, 41, 27, 3)
	want, err := Build(img, 4)
	require.NoError(t, err)
	wantOut, err := Reconstruct(want)
	require.NoError(t, err)

	for _, workers := range []int{1, 3} {
		b := Builder{Workers: workers}
		got, err := b.Build(img, 4)
		require.NoError(t, err)
		for i := range want.Levels {
			assert.Equal(t, want.Levels[i].Pix, got.Levels[i].Pix, "workers=%d level=%d", workers, i)
		}
		out, err := b.Reconstruct(got)
		require.NoError(t, err)
		assert.Equal(t, wantOut.Pix, out.Pix, "workers=%d", workers)
	}
}

func TestDetailLevelsOfFlatImageAreZero(t *testing.T) {
	t.Parallel()

	img := emath.NewFloatImage(20, 14, 3)
	for i := range img.Pix {
		img.Pix[i] = 77
	}
	p, err := Build(img, 3)
	require.NoError(t, err)

	for i:=0; i<2; i++ {
		for _, v := range p.Levels[i].Pix {
			require.InDelta(t, 0, v, 1e-3)
		}
	}
	for _, v := range p.Base().Pix {
		require.InDelta(t, 77, v, 1e-3)
	}
}

func TestReconstructRejectsMismatchedLevels(t *testing.T) {
	t.Parallel()

	p := &Pyramid{Levels: []*emath.FloatImage{
		emath.NewFloatImage(10, 10, 3),
		emath.NewFloatImage(4, 5, 3),
	}}
	_, err := Reconstruct(p)
	assert.ErrorIs(t, err, ErrShape)

	_, err = Reconstruct(&Pyramid{})
	assert.ErrorIs(t, err, ErrDepth)
}

func TestSameShapeAndRelease(t *testing.T) {
	t.Parallel()

	a, err := Build(randomImage(5, 24, 24, 3), 3)
	require.NoError(t, err)
	b, err := Build(randomImage(6, 24, 24, 3), 3)
	require.NoError(t, err)
	c, err := Build(randomImage(6, 24, 24, 3), 2)
	require.NoError(t, err)

	assert.True(t, a.SameShape(b))
	assert.False(t, a.SameShape(c))

	b.Release()
	assert.Equal(t, 0, b.Depth())
	assert.False(t, a.SameShape(b))
}
