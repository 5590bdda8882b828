package pyrstore

import(
	"bytes"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/focus-stack/pkg/emath"
	"github.com/abworrall/focus-stack/pkg/pyramid"
)

func testPyramid(t *testing.T, seed int64) *pyramid.Pyramid {
	t.Helper()
	r := rand.New(rand.NewSource(seed))
	fi := emath.NewFloatImage(37, 21, 3)
	for i := range fi.Pix {
		fi.Pix[i] = float32(r.NormFloat64() * 60)
	}
	p, err := pyramid.Build(fi, 4)
	require.NoError(t, err)

	// Oddball values must survive too
	p.Levels[0].Pix[0] = float32(math.Inf(-1))
	p.Levels[0].Pix[1] = math.SmallestNonzeroFloat32
	return p
}

func requireSamePyramid(t *testing.T, want, got *pyramid.Pyramid) {
	t.Helper()
	require.Equal(t, want.Depth(), got.Depth())
	for i := range want.Levels {
		require.True(t, want.Levels[i].SameShape(got.Levels[i]), "level %d: %s vs %s", i, want.Levels[i], got.Levels[i])
		require.Equal(t, want.Levels[i].Pix, got.Levels[i].Pix, "level %d", i)
	}
}

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	ds, err := Open(KindDir, filepath.Join(dir, "archives"))
	require.NoError(t, err)
	ss, err := Open(KindSQLite, filepath.Join(dir, "pyramids.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		ds.Close()
		ss.Close()
	})
	return map[string]Store{KindDir: ds, KindSQLite: ss}
}

func TestCodecRoundTrip(t *testing.T) {
	t.Parallel()

	p := testPyramid(t, 1)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, p))

	got, err := Decode(&buf)
	require.NoError(t, err)
	requireSamePyramid(t, p, got)
}

func TestCodecRejectsCorruptData(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, testPyramid(t, 2)))
	good := buf.Bytes()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte("XXXX"), good[4:]...)},
		{"truncated header", good[:10]},
		{"truncated data", good[:len(good)-3]},
		{"bad version", func() []byte {
			b := append([]byte{}, good...)
			b[4] = 9
			return b
		}()},
		{"bad dtype", func() []byte {
			b := append([]byte{}, good...)
			b[12+12] = 2 // first level's dtype
			return b
		}()},
	}
	for _, tc := range tests {
		_, err := Decode(bytes.NewReader(tc.data))
		assert.ErrorIs(t, err, ErrCorrupt, tc.name)
	}
}

func TestStoresRoundTrip(t *testing.T) {
	t.Parallel()

	for kind, s := range openStores(t) {
		p1, p2 := testPyramid(t, 3), testPyramid(t, 4)
		require.NoError(t, s.Store("one", p1), kind)
		require.NoError(t, s.Store("two", p2), kind)

		got, err := s.Load("one")
		require.NoError(t, err, kind)
		requireSamePyramid(t, p1, got)

		got, err = s.Load("two")
		require.NoError(t, err, kind)
		requireSamePyramid(t, p2, got)

		// Storing again replaces
		require.NoError(t, s.Store("one", p2), kind)
		got, err = s.Load("one")
		require.NoError(t, err, kind)
		requireSamePyramid(t, p2, got)
	}
}

func TestStoresNotFound(t *testing.T) {
	t.Parallel()

	for kind, s := range openStores(t) {
		_, err := s.Load("nope")
		assert.ErrorIs(t, err, ErrNotFound, kind)
		assert.ErrorIs(t, s.Delete("nope"), ErrNotFound, kind)

		require.NoError(t, s.Store("gone", testPyramid(t, 5)), kind)
		require.NoError(t, s.Delete("gone"), kind)
		_, err = s.Load("gone")
		assert.ErrorIs(t, err, ErrNotFound, kind)
	}
}

func TestStoresRejectPathLikeIDs(t *testing.T) {
	t.Parallel()

	for kind, s := range openStores(t) {
		for _, id := range []string{"", "../up", "a/b"} {
			assert.Error(t, s.Store(id, testPyramid(t, 6)), "%s %q", kind, id)
		}
	}
}

func TestDirStoreCorruptArchive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ds, err := NewDirStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad"+dirSuffix), []byte("not zstd at all"), 0644))
	_, err = ds.Load("bad")
	assert.ErrorIs(t, err, ErrCorrupt)

	// No temp files are left behind by a successful store
	require.NoError(t, ds.Store("ok", testPyramid(t, 7)))
	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSQLiteStoreCorruptLevel(t *testing.T) {
	t.Parallel()

	ss, err := NewSQLiteStore(filepath.Join(t.TempDir(), "p.db"))
	require.NoError(t, err)
	defer ss.Close()

	require.NoError(t, ss.Store("p", testPyramid(t, 8)))
	_, err = ss.Exec(`UPDATE pyramid_levels SET data = ? WHERE id = ? AND level = 1`, []byte{1, 2, 3}, "p")
	require.NoError(t, err)

	_, err = ss.Load("p")
	assert.ErrorIs(t, err, ErrCorrupt)
}
