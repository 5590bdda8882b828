package stack

import(
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/abworrall/focus-stack/pkg/emath"
)

const DefaultJPEGQuality = 95

// A Saver writes out the stacked result
type Saver interface {
	Save(fi *emath.FloatImage, filename string) error
}

// FileSaver picks an encoder from the file extension: .png, .jpg/.jpeg,
// .tif/.tiff, .bmp, or .hdr for Radiance RGBE, which keeps the values
// the 8-bit formats would clip.
type FileSaver struct {
	JPEGQuality int
}

// HDRImage presents a float image as an hdr.Image, scaled so 255 maps
// to 1.0. Negative values (which reconstruction can overshoot to) are
// clamped at zero, since RGBE has no way to store them.
type HDRImage struct {
	*emath.FloatImage
}

// Implement image.Image
func (hi HDRImage)ColorModel() color.Model       { return hdrcolor.RGBModel }
func (hi HDRImage)Bounds() image.Rectangle       { return image.Rect(0, 0, hi.W, hi.H) }
func (hi HDRImage)At(x, y int) color.Color       { return hi.HDRAt(x, y) }

// Implement hdr.Image
func (hi HDRImage)Size() int                     { return hi.W * hi.H }
func (hi HDRImage)HDRAt(x, y int) hdrcolor.Color {
	v := func(ch int) float64 {
		if f := float64(hi.FloatImage.At(x, y, ch)) / 255.0; f > 0 {
			return f
		}
		return 0
	}
	if hi.C == 1 {
		return hdrcolor.RGB{R: v(0), G: v(0), B: v(0)}
	}
	return hdrcolor.RGB{R: v(0), G: v(1), B: v(2)}
}

func (fs FileSaver)Save(fi *emath.FloatImage, filename string) error {
	var encode func(w io.Writer) error

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		encode = func(w io.Writer) error { return png.Encode(w, fi.ToImage()) }
	case ".jpg", ".jpeg":
		q := fs.JPEGQuality
		if q <= 0 {
			q = DefaultJPEGQuality
		}
		encode = func(w io.Writer) error { return jpeg.Encode(w, fi.ToImage(), &jpeg.Options{Quality: q}) }
	case ".tif", ".tiff":
		encode = func(w io.Writer) error {
			return tiff.Encode(w, fi.ToImage(), &tiff.Options{Compression: tiff.Deflate})
		}
	case ".bmp":
		encode = func(w io.Writer) error { return bmp.Encode(w, fi.ToImage()) }
	case ".hdr":
		encode = func(w io.Writer) error { return rgbe.Encode(w, HDRImage{fi}) }
	default:
		return fmt.Errorf("save '%s': unsupported output format", filename)
	}

	return writeAtomically(filename, encode)
}

// writeAtomically writes to a temp file next to filename, and renames it
// into place once it is complete.
func writeAtomically(filename string, encode func(w io.Writer) error) error {
	f, err := os.CreateTemp(filepath.Dir(filename), "."+filepath.Base(filename)+".*.tmp")
	if err != nil {
		return fmt.Errorf("save '%s': %w", filename, err)
	}
	tmpName := f.Name()

	if err := encode(f); err != nil {
		f.Close()
		os.Remove(tmpName)
		return fmt.Errorf("save '%s': %w", filename, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save '%s': %w", filename, err)
	}
	if err := os.Rename(tmpName, filename); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save '%s': %w", filename, err)
	}
	return nil
}
