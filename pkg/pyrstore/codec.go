package pyrstore

// The archive format, all little endian:
//
//   "FSPY"  magic
//   uint32  format version (1)
//   uint32  number of levels
//   per level:
//     uint32  width, height, channels
//     uint32  dtype (1 == float32)
//     [w*h*c]float32  samples, interleaved, row by row

import(
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/abworrall/focus-stack/pkg/emath"
	"github.com/abworrall/focus-stack/pkg/pyramid"
)

const(
	formatVersion = 1
	dtypeFloat32  = 1

	maxLevels     = 64
	maxSamples    = 1 << 31
)

var magic = [4]byte{'F', 'S', 'P', 'Y'}

var(
	ErrNotFound = errors.New("pyramid archive not found")
	ErrCorrupt  = errors.New("pyramid archive is corrupt")
)

type levelHeader struct {
	W, H, C uint32
	DType   uint32
}

func (lh levelHeader)samples() (int, error) {
	if lh.DType != dtypeFloat32 {
		return 0, fmt.Errorf("dtype %d: %w", lh.DType, ErrCorrupt)
	}
	n := uint64(lh.W) * uint64(lh.H) * uint64(lh.C)
	if lh.W == 0 || lh.H == 0 || lh.C == 0 || n > maxSamples {
		return 0, fmt.Errorf("level %dx%dx%d: %w", lh.W, lh.H, lh.C, ErrCorrupt)
	}
	return int(n), nil
}

// Encode writes the pyramid to w in the archive format
func Encode(w io.Writer, p *pyramid.Pyramid) error {
	hdr := struct {
		Magic    [4]byte
		Version  uint32
		Levels   uint32
	}{magic, formatVersion, uint32(len(p.Levels))}

	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return err
	}
	for _, l := range p.Levels {
		lh := levelHeader{uint32(l.W), uint32(l.H), uint32(l.C), dtypeFloat32}
		if err := binary.Write(w, binary.LittleEndian, lh); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, l.Pix); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads back a pyramid written by Encode. Anything malformed or
// cut short comes back as ErrCorrupt.
func Decode(r io.Reader) (*pyramid.Pyramid, error) {
	var hdr struct {
		Magic    [4]byte
		Version  uint32
		Levels   uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, corrupt("header", err)
	}
	if hdr.Magic != magic {
		return nil, fmt.Errorf("bad magic %q: %w", hdr.Magic[:], ErrCorrupt)
	}
	if hdr.Version != formatVersion {
		return nil, fmt.Errorf("format version %d: %w", hdr.Version, ErrCorrupt)
	}
	if hdr.Levels == 0 || hdr.Levels > maxLevels {
		return nil, fmt.Errorf("%d levels: %w", hdr.Levels, ErrCorrupt)
	}

	p := &pyramid.Pyramid{}
	for i:=0; i<int(hdr.Levels); i++ {
		var lh levelHeader
		if err := binary.Read(r, binary.LittleEndian, &lh); err != nil {
			return nil, corrupt(fmt.Sprintf("level %d header", i), err)
		}
		if _, err := lh.samples(); err != nil {
			return nil, err
		}

		fi := emath.NewFloatImage(int(lh.W), int(lh.H), int(lh.C))
		if err := binary.Read(r, binary.LittleEndian, fi.Pix); err != nil {
			return nil, corrupt(fmt.Sprintf("level %d data", i), err)
		}
		p.Levels = append(p.Levels, fi)
	}
	return p, nil
}

func corrupt(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%s truncated: %w", what, ErrCorrupt)
	}
	return fmt.Errorf("%s: %v: %w", what, err, ErrCorrupt)
}
