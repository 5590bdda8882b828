package fuse

import(
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"github.com/abworrall/focus-stack/pkg/focus"
	"github.com/abworrall/focus-stack/pkg/pyramid"
)

var ErrEmpty = errors.New("nothing has been fused")

// A Fuser merges Laplacian pyramids level by level, keeping whichever
// source is locally sharper at each pixel.
type Fuser struct {
	Backend     focus.Backend
	KernelSize  int

	Verbosity   int
	DebugDir    string  // if set, every focus map is dumped here
}

func New(b focus.Backend, kernelSize int) *Fuser {
	return &Fuser{Backend: b, KernelSize: kernelSize}
}

// FusePair fuses two pyramids of the same shape. Every level gets its
// own focus map, except for the coarsest, which reuses the map from the
// level above it (shrunk down to size); a single level pyramid has no
// level above, so gets a fresh map.
//
// a is consumed; the result is built in a's level buffers. b is left as
// it was.
func (f *Fuser)FusePair(a, b *pyramid.Pyramid) (*pyramid.Pyramid, error) {
	if !a.SameShape(b) {
		return nil, fmt.Errorf("fuse %s with %s: %w", a, b, pyramid.ErrShape)
	}

	running, err := f.upload(a)
	if err != nil {
		return nil, err
	}
	next, err := f.upload(b)
	if err != nil {
		f.release(running)
		return nil, err
	}
	defer f.release(next)

	fused, err := f.fuseLevels("pair", running, next)
	if err != nil {
		f.release(running)
		return nil, err
	}
	return f.download(fused)
}

// fuseLevels folds next into running, finest level first. The running
// levels are consumed, and the fused levels returned.
func (f *Fuser)fuseLevels(tag string, running, next []focus.Level) ([]focus.Level, error) {
	n := len(running)
	fused := make([]focus.Level, n)

	var prev *focus.Map
	for i:=0; i<n; i++ {
		var m *focus.Map
		if i == n-1 && prev != nil {
			w, h, _ := running[i].Dims()
			m = prev.ResizeArea(w, h)
		} else {
			var err error
			if m, err = f.Backend.ComputeFocusMap(running[i], next[i], f.KernelSize); err != nil {
				return nil, fmt.Errorf("focus map, level %d: %w", i, err)
			}
		}

		if f.DebugDir != "" {
			title := fmt.Sprintf("%s level %d %s", tag, i, m)
			filename := filepath.Join(f.DebugDir, fmt.Sprintf("focusmap-%s-level%02d.png", tag, i))
			if err := m.Dump(title, filename); err != nil {
				log.Printf("fuse: %v\n", err)
			}
		}

		l, err := f.Backend.FuseLevel(running[i], next[i], m)
		if err != nil {
			return nil, fmt.Errorf("fuse level %d: %w", i, err)
		}
		fused[i] = l
		prev = m
	}

	if f.Verbosity > 1 {
		log.Printf("Fused %s: coarsest map %s\n", tag, prev)
	}
	return fused, nil
}

func (f *Fuser)upload(p *pyramid.Pyramid) ([]focus.Level, error) {
	levels := make([]focus.Level, 0, len(p.Levels))
	for i, fi := range p.Levels {
		l, err := f.Backend.Upload(fi)
		if err != nil {
			f.release(levels)
			return nil, fmt.Errorf("upload level %d: %w", i, err)
		}
		levels = append(levels, l)
	}
	return levels, nil
}

// download copies the levels back to host memory, and releases them
// from the backend.
func (f *Fuser)download(levels []focus.Level) (*pyramid.Pyramid, error) {
	defer f.release(levels)
	p := &pyramid.Pyramid{}
	for i, l := range levels {
		fi, err := f.Backend.Download(l)
		if err != nil {
			return nil, fmt.Errorf("download level %d: %w", i, err)
		}
		p.Levels = append(p.Levels, fi)
	}
	return p, nil
}

func (f *Fuser)release(levels []focus.Level) {
	for _, l := range levels {
		f.Backend.Release(l)
	}
}
