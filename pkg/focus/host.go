package focus

import(
	"fmt"

	"github.com/abworrall/focus-stack/pkg/emath"
)

// HostBackend runs the kernels in a pool of goroutines, each taking a
// band of rows. Levels never leave host memory, so Upload and Download
// hand back the very same buffers.
type HostBackend struct {
	Workers int
}

func NewHostBackend(workers int) *HostBackend {
	return &HostBackend{Workers: workers}
}

func (hb *HostBackend)Name() string { return "host" }

func (hb *HostBackend)Upload(fi *emath.FloatImage) (Level, error) { return fi, nil }
func (hb *HostBackend)Release(l Level) {}

func (hb *HostBackend)Download(l Level) (*emath.FloatImage, error) {
	fi, ok := l.(*emath.FloatImage)
	if !ok {
		return nil, fmt.Errorf("host backend: level is a %T", l)
	}
	return fi, nil
}

func (hb *HostBackend)ComputeFocusMap(a, b Level, k int) (*Map, error) {
	fa, err := hb.Download(a)
	if err != nil {
		return nil, err
	}
	fb, err := hb.Download(b)
	if err != nil {
		return nil, err
	}
	if err := checkLevels(fa, fb); err != nil {
		return nil, err
	}
	return compute(fa.Luminance(hb.Workers), fb.Luminance(hb.Workers), k, hb.Workers)
}

func (hb *HostBackend)FuseLevel(dst, src Level, m *Map) (Level, error) {
	fd, err := hb.Download(dst)
	if err != nil {
		return nil, err
	}
	fs, err := hb.Download(src)
	if err != nil {
		return nil, err
	}
	if err := checkLevels(fd, fs); err != nil {
		return nil, err
	}
	if err := checkMap(fd, m); err != nil {
		return nil, err
	}

	c := fd.C
	emath.ParallelRows(fd.H, hb.Workers, func(y0, y1 int) {
		for y:=y0; y<y1; y++ {
			sel := m.Sel[y*m.W : (y+1)*m.W]
			out, in := fd.Row(y), fs.Row(y)
			for x, s := range sel {
				if s != 0 {
					copy(out[x*c:(x+1)*c], in[x*c:(x+1)*c])
				}
			}
		}
	})
	return fd, nil
}
