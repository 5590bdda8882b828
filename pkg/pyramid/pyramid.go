package pyramid

// Laplacian pyramids: a stack of band-pass detail levels, finest first,
// topped off with one low-pass base level.

import(
	"errors"
	"fmt"
	"path/filepath"

	"github.com/abworrall/focus-stack/pkg/emath"
)

var(
	ErrDepth = errors.New("pyramid depth does not fit the image")
	ErrShape = errors.New("pyramid shapes differ")
)

// A Pyramid holds its levels finest first. Level i+1 is half the size
// of level i, rounding down. All but the last level are detail bands
// that center on zero; the last is the coarsest Gaussian level, and
// holds actual intensities.
type Pyramid struct {
	Levels []*emath.FloatImage
}

func (p *Pyramid)Depth() int                  { return len(p.Levels) }
func (p *Pyramid)Base() *emath.FloatImage     { return p.Levels[len(p.Levels)-1] }

func (p *Pyramid)String() string {
	str := fmt.Sprintf("Pyramid[%d:", len(p.Levels))
	for _, l := range p.Levels {
		if l == nil {
			str += " released"
			continue
		}
		str += " " + l.String()
	}
	return str + "]"
}

// Release drops the level buffers, so the garbage collector can have
// them back before the next image gets loaded.
func (p *Pyramid)Release() {
	for i := range p.Levels {
		p.Levels[i] = nil
	}
	p.Levels = nil
}

// SameShape reports whether two pyramids can be fused: same depth, and
// the same shape at every level.
func (p *Pyramid)SameShape(o *Pyramid) bool {
	if o == nil || len(p.Levels) != len(o.Levels) {
		return false
	}
	for i, l := range p.Levels {
		if l == nil || !l.SameShape(o.Levels[i]) {
			return false
		}
	}
	return true
}

// MaxDepth is the deepest pyramid a w x h image supports, i.e. the most
// levels before halving would produce a zero sized level.
func MaxDepth(w, h int) int {
	depth := 0
	for w >= 1 && h >= 1 {
		depth++
		w /= 2
		h /= 2
	}
	return depth
}

// CheckDepth returns a descriptive ErrDepth if a w x h image can't be
// decomposed into depth levels.
func CheckDepth(w, h, depth int) error {
	if max := MaxDepth(w, h); depth < 1 || depth > max {
		return fmt.Errorf("depth %d for %dx%d image (must be 1..%d): %w", depth, w, h, max, ErrDepth)
	}
	return nil
}

// A Builder builds and collapses pyramids, filtering on a pool of
// Workers goroutines (<= 0 means one per CPU).
type Builder struct {
	Workers int
}

// Build is Builder.Build with the default pool
func Build(img *emath.FloatImage, depth int) (*Pyramid, error) {
	return Builder{}.Build(img, depth)
}

// Reconstruct is Builder.Reconstruct with the default pool
func Reconstruct(p *Pyramid) (*emath.FloatImage, error) {
	return Builder{}.Reconstruct(p)
}

// Build decomposes img into a Laplacian pyramid of depth levels. A
// Gaussian pyramid is built by repeated PyrDown; each detail level is
// then G[i] - PyrUp(G[i+1]), and the last level is G[depth-1] as is.
// img is not modified.
func (b Builder)Build(img *emath.FloatImage, depth int) (*Pyramid, error) {
	if err := CheckDepth(img.W, img.H, depth); err != nil {
		return nil, err
	}

	p := &Pyramid{Levels: make([]*emath.FloatImage, depth)}

	// Walk down the Gaussian pyramid, turning each level into a detail
	// level as soon as the next one down exists.
	g := img.Copy()
	for i:=0; i<depth-1; i++ {
		next := g.PyrDown(b.Workers)
		g.Sub(next.PyrUp(g.W, g.H, b.Workers))
		p.Levels[i] = g
		g = next
	}
	p.Levels[depth-1] = g

	return p, nil
}

// Reconstruct collapses a pyramid back into an image: starting at the
// base, upsample to the next finer size and add in that level's detail.
// The pyramid is left as it was.
func (b Builder)Reconstruct(p *Pyramid) (*emath.FloatImage, error) {
	if len(p.Levels) == 0 {
		return nil, fmt.Errorf("reconstruct empty pyramid: %w", ErrDepth)
	}

	img := p.Base().Copy()
	for i:=len(p.Levels)-2; i>=0; i-- {
		detail := p.Levels[i]
		if detail.C != img.C || detail.W/2 != img.W || detail.H/2 != img.H {
			return nil, fmt.Errorf("reconstruct level %d (%s onto %s): %w", i, detail, img, ErrShape)
		}
		img = img.PyrUp(detail.W, detail.H, b.Workers)
		img.Add(detail)
	}
	return img, nil
}

// Dump writes the luminance of every level to dir as a titled PNG
func (p *Pyramid)Dump(dir, prefix string, workers int) error {
	for i, l := range p.Levels {
		title := fmt.Sprintf("%s level %d %s", prefix, i, l)
		filename := filepath.Join(dir, fmt.Sprintf("%s-level%02d.png", prefix, i))
		if err := l.Luminance(workers).ToImg(title, filename); err != nil {
			return err
		}
	}
	return nil
}
