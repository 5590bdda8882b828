package focus

import(
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/abworrall/focus-stack/pkg/emath"
)

var ErrForeignLevel = errors.New("level does not belong to this device")

// SoftDevice is a Device that lives in host memory. It keeps its own
// copies of uploaded levels, and runs each kernel as one goroutine per
// tile, the way a GPU would run one workgroup per tile. It counts its
// transfers, which makes it handy for checking that levels stay put.
type SoftDevice struct {
	TileSize  int

	uploads   atomic.Int64
	downloads atomic.Int64
	resident  atomic.Int64
}

type softLevel struct {
	dev     *SoftDevice
	w, h, c int
	pix     []float32
}

func (sl *softLevel)Dims() (int, int, int) { return sl.w, sl.h, sl.c }

func NewSoftDevice() *SoftDevice { return &SoftDevice{TileSize: 32} }

// SoftDeviceID is where the in-process device is registered, so there
// is always a device 0 to run the device backend on.
const SoftDeviceID = 0

func init() {
	RegisterDevice(SoftDeviceID, NewSoftDevice())
}

func (sd *SoftDevice)Name() string     { return "soft" }
func (sd *SoftDevice)Uploads() int64   { return sd.uploads.Load() }
func (sd *SoftDevice)Downloads() int64 { return sd.downloads.Load() }
func (sd *SoftDevice)Resident() int64  { return sd.resident.Load() }

func (sd *SoftDevice)Upload(w, h, c int, pix []float32) (Level, error) {
	if len(pix) != w*h*c {
		return nil, fmt.Errorf("upload %dx%dx%d: have %d values", w, h, c, len(pix))
	}
	sl := &softLevel{dev: sd, w: w, h: h, c: c, pix: make([]float32, len(pix))}
	copy(sl.pix, pix)
	sd.uploads.Add(1)
	sd.resident.Add(1)
	return sl, nil
}

func (sd *SoftDevice)Download(l Level, pix []float32) error {
	sl, err := sd.own(l)
	if err != nil {
		return err
	}
	if len(pix) != len(sl.pix) {
		return fmt.Errorf("download %dx%dx%d: room for %d values", sl.w, sl.h, sl.c, len(pix))
	}
	copy(pix, sl.pix)
	sd.downloads.Add(1)
	return nil
}

func (sd *SoftDevice)Free(l Level) {
	if sl, err := sd.own(l); err == nil {
		sl.pix = nil
		sd.resident.Add(-1)
	}
}

func (sd *SoftDevice)FocusSelect(a, b Level, k int, sel []uint8) error {
	sa, err := sd.own(a)
	if err != nil {
		return err
	}
	sb, err := sd.own(b)
	if err != nil {
		return err
	}

	ia := emath.NewIntegral(sd.luminance(sa))
	ib := emath.NewIntegral(sd.luminance(sb))
	tol := tieTolerance(ia.AbsMax(), ib.AbsMax())
	m := &Map{W: sa.w, H: sa.h, Sel: sel}

	sd.dispatch(sa.w, sa.h, func(x0, y0, x1, y1 int) {
		selectRows(ia, ib, tol, m, k, x0, x1, y0, y1)
	})
	return nil
}

func (sd *SoftDevice)Select(dst, src Level, sel []uint8) error {
	sdst, err := sd.own(dst)
	if err != nil {
		return err
	}
	ssrc, err := sd.own(src)
	if err != nil {
		return err
	}

	w, c := sdst.w, sdst.c
	sd.dispatch(sdst.w, sdst.h, func(x0, y0, x1, y1 int) {
		for y:=y0; y<y1; y++ {
			for x:=x0; x<x1; x++ {
				if sel[y*w + x] != 0 {
					i := (y*w + x)*c
					copy(sdst.pix[i:i+c], ssrc.pix[i:i+c])
				}
			}
		}
	})
	return nil
}

// luminance collapses a level's channels with the host weights, one tile
// per goroutine
func (sd *SoftDevice)luminance(sl *softLevel) *emath.FloatGrid {
	g := emath.NewFloatGrid(sl.w, sl.h)
	if sl.c == 1 {
		copy(g.Values(), sl.pix)
		return g
	}
	wr, wg, wb := float32(emath.LumaWeights[0]), float32(emath.LumaWeights[1]), float32(emath.LumaWeights[2])
	sd.dispatch(sl.w, sl.h, func(x0, y0, x1, y1 int) {
		for y:=y0; y<y1; y++ {
			out := g.Row(y)
			for x:=x0; x<x1; x++ {
				p := sl.pix[(y*sl.w + x)*sl.c:]
				out[x] = wr*p[0] + wg*p[1] + wb*p[2]
			}
		}
	})
	return g
}

// dispatch runs fn over every tile of a w x h level, in parallel
func (sd *SoftDevice)dispatch(w, h int, fn func(x0, y0, x1, y1 int)) {
	ts := sd.TileSize
	if ts <= 0 {
		ts = 32
	}

	var wg sync.WaitGroup
	for y:=0; y<h; y+=ts {
		for x:=0; x<w; x+=ts {
			wg.Add(1)
			go func(x0, y0 int) {
				defer wg.Done()
				fn(x0, y0, min(x0+ts, w), min(y0+ts, h))
			}(x, y)
		}
	}
	wg.Wait()
}

func (sd *SoftDevice)own(l Level) (*softLevel, error) {
	sl, ok := l.(*softLevel)
	if !ok || sl.dev != sd || sl.pix == nil {
		return nil, fmt.Errorf("%s: %w", sd.Name(), ErrForeignLevel)
	}
	return sl, nil
}

func (sl *softLevel)image() *emath.FloatImage {
	return &emath.FloatImage{W: sl.w, H: sl.h, C: sl.c, Pix: sl.pix}
}
