package stack

import(
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abworrall/focus-stack/pkg/emath"
	"github.com/abworrall/focus-stack/pkg/focus"
	"github.com/abworrall/focus-stack/pkg/fuse"
	"github.com/abworrall/focus-stack/pkg/pyramid"
	"github.com/abworrall/focus-stack/pkg/pyrstore"
	"github.com/abworrall/focus-stack/pkg/register"
)

var(
	ErrBusy     = errors.New("stacker is already running")
	ErrNoImages = errors.New("no images to stack")
)

// A Stacker aligns a set of differently focused images of one scene, and
// fuses them into a single image that is sharp wherever any of them
// was. A Stacker can be run more than once, but only one run at a time.
type Stacker struct {
	cfg       Config
	backend   focus.Backend

	Loader    Loader
	Sink      ProgressSink
	OnState   func(s State, index int)  // called on every state change, if set

	mu        sync.Mutex
	paths     []string
	running   bool
	state     State
	current   int
	frames    []Frame
}

type Option func(*Stacker)

func WithLoader(l Loader) Option                   { return func(s *Stacker) { s.Loader = l } }
func WithSink(ps ProgressSink) Option              { return func(s *Stacker) { s.Sink = ps } }
func WithStateHook(f func(State, int)) Option      { return func(s *Stacker) { s.OnState = f } }

// New validates the config and picks the compute backend for every run
// this Stacker will do.
func New(cfg Config, opts ...Option) (*Stacker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backend, err := focus.NewBackend(cfg.Backend, cfg.DeviceID, cfg.Workers)
	if err != nil {
		return nil, err
	}
	if cfg.Verbosity > 0 {
		log.Printf("Stacking with the %s backend\n", backend.Name())
	}

	s := &Stacker{
		cfg:     cfg,
		backend: backend,
		Loader:  FileLoader{Verbosity: cfg.Verbosity},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Stacker)Config() Config               { return s.cfg }
func (s *Stacker)Backend() focus.Backend       { return s.backend }

// SetImagePaths sets the images for the next run, sorted into natural
// order (img2 before img10). The first one, in that order, is the
// reference the others are aligned to.
func (s *Stacker)SetImagePaths(paths []string) {
	sorted := append([]string{}, paths...)
	SortNatural(sorted)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = sorted
}

func (s *Stacker)ImagePaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.paths...)
}

// State returns where the current (or last) run has got to
func (s *Stacker)State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current is the 1-based index of the image being worked on
func (s *Stacker)Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Frames describes each image handled by the last run
func (s *Stacker)Frames() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame{}, s.frames...)
}

func (s *Stacker)setState(st State, index int) {
	s.mu.Lock()
	s.state = st
	s.current = index
	s.mu.Unlock()

	if s.OnState != nil {
		s.OnState(st, index)
	}
}

func (s *Stacker)progress(stage string, index, total int, elapsed time.Duration) {
	if s.Sink != nil {
		s.Sink.Progress(Event{Stage: stage, Index: index, Total: total, Elapsed: elapsed})
	}
}

// Run stacks the images, and returns the fused result. The images are
// handled strictly one after another; ctx is checked before each one.
// Any failure (an image that won't load or align, a store error, ctx
// being done) ends the whole run.
func (s *Stacker)Run(ctx context.Context) (*emath.FloatImage, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.running = true
	paths := append([]string{}, s.paths...)
	s.frames = nil
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.setState(Idle, 0)
	out, err := s.run(ctx, paths)
	if err != nil {
		s.setState(Failed, s.Current())
		return nil, err
	}

	s.setState(Done, len(paths))
	return out, nil
}

func (s *Stacker)run(ctx context.Context, paths []string) (*emath.FloatImage, error) {
	if len(paths) == 0 {
		return nil, ErrNoImages
	}

	r := &stackRun{
		Stacker: s,
		ctx:     ctx,
		paths:   paths,
		aligner: &register.Aligner{
			ScaleFactor: s.cfg.UpsampleFactor,
			Verbosity:   s.cfg.Verbosity,
			DebugDir:    s.cfg.DebugDir,
			Workers:     s.cfg.Workers,
		},
		fuser:   &fuse.Fuser{
			Backend:    s.backend,
			KernelSize: s.cfg.KernelSize,
			Verbosity:  s.cfg.Verbosity,
			DebugDir:   s.cfg.DebugDir,
		},
	}

	var result *pyramid.Pyramid
	var err error
	if s.cfg.StoreKind != "" {
		result, err = r.viaStore()
	} else {
		result, err = r.inMemory()
	}
	if err != nil {
		return nil, err
	}

	s.setState(Reconstructing, len(paths))
	out, err := pyramid.Builder{Workers: s.cfg.Workers}.Reconstruct(result)
	if err != nil {
		return nil, err
	}
	result.Release()

	if s.cfg.Verbosity > 0 {
		log.Printf("Stacked %d images into %s\n", len(paths), out)
	}
	return out, nil
}

// stackRun holds the state of one Run
type stackRun struct {
	*Stacker
	ctx      context.Context
	paths    []string
	aligner  *register.Aligner
	fuser    *fuse.Fuser

	ref      image.Image
}

// prepare loads and aligns image i (0-based), and builds its pyramid.
// The first image is the reference; it is aligned against itself, which
// costs nothing.
func (r *stackRun)prepare(i int) (*pyramid.Pyramid, Frame, error) {
	if err := r.ctx.Err(); err != nil {
		return nil, Frame{}, err
	}

	path := r.paths[i]
	frame := Frame{LoadFilename: path, Index: i+1}
	r.setState(Registering, i+1)

	var img image.Image
	if i == 0 {
		ref, err := r.Loader.Load(path)
		if err != nil {
			return nil, frame, err
		}
		b := ref.Bounds()
		if err := pyramid.CheckDepth(b.Dx(), b.Dy(), r.cfg.Depth); err != nil {
			return nil, frame, fmt.Errorf("image '%s': %w", path, err)
		}
		r.ref = ref
		img = ref
	} else {
		loaded, err := r.Loader.Load(path)
		if err != nil {
			return nil, frame, err
		}
		img = MatchModel(r.ref, loaded)
	}

	aligned, shift, err := r.aligner.AlignAs(filepath.Base(path), r.ref, img)
	if err != nil {
		return nil, frame, fmt.Errorf("align '%s': %w", path, err)
	}
	frame.Shift = shift

	r.setState(Building, i+1)
	p, err := pyramid.Builder{Workers: r.cfg.Workers}.Build(emath.FromImage(aligned), r.cfg.Depth)
	if err != nil {
		return nil, frame, fmt.Errorf("pyramid '%s': %w", path, err)
	}

	if r.cfg.DebugDir != "" && r.cfg.Verbosity > 1 {
		if err := p.Dump(r.cfg.DebugDir, fmt.Sprintf("pyramid%03d", i+1), r.cfg.Workers); err != nil {
			log.Printf("stack: %v\n", err)
		}
	}

	return p, frame, nil
}

func (r *stackRun)addFrame(f Frame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
}

// inMemory folds each pyramid into the running result as soon as it is
// built, so at most two are ever held.
func (r *stackRun)inMemory() (*pyramid.Pyramid, error) {
	acc := r.fuser.NewAccumulator()
	for i := range r.paths {
		tStart := time.Now()
		p, frame, err := r.prepare(i)
		if err != nil {
			acc.Discard()
			return nil, err
		}

		r.setState(Fusing, i+1)
		if err := acc.Add(p); err != nil {
			acc.Discard()
			return nil, fmt.Errorf("fuse '%s': %w", r.paths[i], err)
		}

		frame.Elapsed = time.Since(tStart)
		r.addFrame(frame)
		r.progress(StageFinishedImage, i+1, len(r.paths), frame.Elapsed)
	}

	return acc.Result()
}

// viaStore builds every pyramid and puts it in the store, then streams
// them back out of the store to fuse them. The archives are deleted
// when the run is over, whether it worked or not.
func (r *stackRun)viaStore() (*pyramid.Pyramid, error) {
	store, err := pyrstore.Open(r.cfg.StoreKind, r.cfg.StorePath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	ids := []string{}
	defer func() {
		for _, id := range ids {
			if err := store.Delete(id); err != nil {
				log.Printf("stack: removing archive: %v\n", err)
			}
		}
	}()

	for i := range r.paths {
		tStart := time.Now()
		p, frame, err := r.prepare(i)
		if err != nil {
			return nil, err
		}

		id := uuid.New().String()
		if err := store.Store(id, p); err != nil {
			return nil, fmt.Errorf("archive '%s': %w", r.paths[i], err)
		}
		p.Release()
		ids = append(ids, id)

		frame.ArchiveID = id
		frame.Elapsed = time.Since(tStart)
		r.addFrame(frame)
		r.progress(StageArchived, i+1, len(r.paths), frame.Elapsed)
	}

	r.setState(Fusing, 1)
	return r.fuser.FuseStored(r.ctx, store, ids, func(i int, id string, elapsed time.Duration) {
		if i < len(r.paths) {
			r.setState(Fusing, i+1)
		}
		r.progress(StageStoredFusion, i, len(r.paths), elapsed)
	})
}
