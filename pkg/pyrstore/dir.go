package pyrstore

import(
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/abworrall/focus-stack/pkg/pyramid"
)

const dirSuffix = ".pyr.zst"

// DirStore keeps each pyramid as a zstd compressed archive file,
// <id>.pyr.zst, in one directory.
type DirStore struct {
	Dir string
}

func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("pyramid store: %w", err)
	}
	return &DirStore{Dir: dir}, nil
}

func (ds *DirStore)filename(id string) string { return filepath.Join(ds.Dir, id + dirSuffix) }

// Store writes the archive to a temp file, then renames it into place,
// so a half written archive is never visible under id.
func (ds *DirStore)Store(id string, p *pyramid.Pyramid) error {
	if err := checkID(id); err != nil {
		return err
	}

	f, err := os.CreateTemp(ds.Dir, id + ".*.tmp")
	if err != nil {
		return fmt.Errorf("store '%s': %w", id, err)
	}
	tmpName := f.Name()
	cleanup := func(err error) error {
		f.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store '%s': %w", id, err)
	}

	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return cleanup(err)
	}
	if err := Encode(zw, p); err != nil {
		zw.Close()
		return cleanup(err)
	}
	if err := zw.Close(); err != nil {
		return cleanup(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store '%s': %w", id, err)
	}

	if err := os.Rename(tmpName, ds.filename(id)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store '%s': %w", id, err)
	}
	return nil
}

func (ds *DirStore)Load(id string) (*pyramid.Pyramid, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	f, err := os.Open(ds.filename(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load '%s': %w", id, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("load '%s': %w", id, err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(bufio.NewReader(f), zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("load '%s': %v: %w", id, err, ErrCorrupt)
	}
	defer zr.Close()

	p, err := Decode(zr)
	if err != nil {
		return nil, fmt.Errorf("load '%s': %w", id, err)
	}
	return p, nil
}

func (ds *DirStore)Delete(id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	err := os.Remove(ds.filename(id))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete '%s': %w", id, ErrNotFound)
	}
	return err
}

func (ds *DirStore)Close() error { return nil }
