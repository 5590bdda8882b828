package fuse

import(
	"context"
	"fmt"
	"time"

	"github.com/abworrall/focus-stack/pkg/focus"
	"github.com/abworrall/focus-stack/pkg/pyramid"
)

// An Accumulator folds a sequence of pyramids into one, left to right:
// each new pyramid is fused against the result of everything before it.
// The order matters, since each focus map is computed against the
// already fused levels, not against any one source image.
//
// The running levels stay on the backend (so on the device, for a
// device backend) until Result brings them back. Not safe for
// concurrent use.
type Accumulator struct {
	fuser    *Fuser
	running  []focus.Level
	n        int
}

func (f *Fuser)NewAccumulator() *Accumulator {
	return &Accumulator{fuser: f}
}

// Count is how many pyramids have been added
func (acc *Accumulator)Count() int { return acc.n }

// Add folds p into the running result. The first pyramid just becomes
// the running result. Either way p is released, and must not be used
// again.
func (acc *Accumulator)Add(p *pyramid.Pyramid) error {
	defer p.Release()
	f := acc.fuser

	if acc.running == nil {
		levels, err := f.upload(p)
		if err != nil {
			return err
		}
		acc.running = levels
		acc.n = 1
		return nil
	}

	if err := acc.checkShape(p); err != nil {
		return err
	}

	next, err := f.upload(p)
	if err != nil {
		return err
	}
	defer f.release(next)

	fused, err := f.fuseLevels(fmt.Sprintf("image%03d", acc.n+1), acc.running, next)
	if err != nil {
		acc.Discard()
		return err
	}
	acc.running = fused
	acc.n++
	return nil
}

func (acc *Accumulator)checkShape(p *pyramid.Pyramid) error {
	if len(p.Levels) != len(acc.running) {
		return fmt.Errorf("add %s to %d levels: %w", p, len(acc.running), pyramid.ErrShape)
	}
	for i, l := range acc.running {
		w, h, c := l.Dims()
		if fi := p.Levels[i]; fi == nil || fi.W != w || fi.H != h || fi.C != c {
			return fmt.Errorf("add %s, level %d is not %dx%dx%d: %w", p, i, w, h, c, pyramid.ErrShape)
		}
	}
	return nil
}

// Result downloads the fused pyramid, and resets the accumulator.
func (acc *Accumulator)Result() (*pyramid.Pyramid, error) {
	if acc.running == nil {
		return nil, ErrEmpty
	}
	levels := acc.running
	acc.running = nil
	acc.n = 0
	return acc.fuser.download(levels)
}

// Discard drops the running result without downloading it
func (acc *Accumulator)Discard() {
	acc.fuser.release(acc.running)
	acc.running = nil
	acc.n = 0
}

// A Source hands out stored pyramids by id
type Source interface {
	Load(id string) (*pyramid.Pyramid, error)
}

// FuseStored streams through stored pyramids, fusing them in the order
// given while only ever holding one of them in memory. onImage, if not
// nil, is called after each pyramid is folded in, with its 1-based
// index. Any load failure ends the run; so does ctx, which is checked
// between pyramids.
func (f *Fuser)FuseStored(ctx context.Context, src Source, ids []string, onImage func(i int, id string, elapsed time.Duration)) (*pyramid.Pyramid, error) {
	if len(ids) == 0 {
		return nil, ErrEmpty
	}

	acc := f.NewAccumulator()
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			acc.Discard()
			return nil, err
		}

		tStart := time.Now()
		p, err := src.Load(id)
		if err != nil {
			acc.Discard()
			return nil, fmt.Errorf("load pyramid '%s': %w", id, err)
		}
		if err := acc.Add(p); err != nil {
			acc.Discard()
			return nil, fmt.Errorf("fuse pyramid '%s': %w", id, err)
		}

		if onImage != nil {
			onImage(i+1, id, time.Since(tStart))
		}
	}

	return acc.Result()
}
