package stack

import(
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// A Loader turns a path into pixels
type Loader interface {
	Load(path string) (image.Image, error)
}

// Extensions ExpandPaths picks up from directories
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// FileLoader decodes image files by their content, applies any EXIF
// orientation, and hands back an *image.RGBA (or *image.Gray, for gray
// images) with its origin at 0,0.
type FileLoader struct {
	Verbosity int
}

func (fl FileLoader)Load(filename string) (image.Image, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("load '%s': %w", filename, err)
	}

	img, format, err := image.Decode(bytes.NewReader(contents))
	if err != nil {
		return nil, fmt.Errorf("decode '%s': %w", filename, err)
	}

	orientation := 1
	if ex, err := exif.Decode(bytes.NewReader(contents)); err == nil {
		if tag, err := ex.Get(exif.Orientation); err == nil {
			if val, err := tag.Int(0); err == nil {
				orientation = val
			}
		}
	}

	if fl.Verbosity > 1 {
		log.Printf("Loaded %s: %s %v, orientation %d\n", filename, format, img.Bounds(), orientation)
	}

	return Orient(Normalize(img), orientation), nil
}

// Normalize returns img as an *image.Gray or *image.RGBA with its bounds
// starting at 0,0, converting if need be.
func Normalize(img image.Image) image.Image {
	b := img.Bounds()
	if b.Min == (image.Point{}) {
		switch img.(type) {
		case *image.Gray, *image.RGBA:
			return img
		}
	}

	r := image.Rect(0, 0, b.Dx(), b.Dy())
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		dst := image.NewGray(r)
		draw.Draw(dst, r, img, b.Min, draw.Src)
		return dst
	}
	dst := image.NewRGBA(r)
	draw.Draw(dst, r, img, b.Min, draw.Src)
	return dst
}

// MatchModel converts img to the pixel type of ref, so every image in a
// stack has the same number of channels.
func MatchModel(ref, img image.Image) image.Image {
	switch ref.(type) {
	case *image.Gray:
		if _, isGray := img.(*image.Gray); !isGray {
			dst := image.NewGray(img.Bounds())
			draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
			return dst
		}
	case *image.RGBA:
		if _, isRGBA := img.(*image.RGBA); !isRGBA {
			dst := image.NewRGBA(img.Bounds())
			draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
			return dst
		}
	}
	return img
}

// Orient applies an EXIF orientation (1-8) to a normalized image, so it
// comes out the right way up. Orientations 5-8 swap width and height.
func Orient(img image.Image, orientation int) image.Image {
	if orientation < 2 || orientation > 8 {
		return img
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	dw, dh := w, h
	if orientation >= 5 {
		dw, dh = h, w
	}

	// Where each destination pixel comes from
	var from func(x, y int) (int, int)
	switch orientation {
	case 2: from = func(x, y int) (int, int) { return w-1-x, y }
	case 3: from = func(x, y int) (int, int) { return w-1-x, h-1-y }
	case 4: from = func(x, y int) (int, int) { return x, h-1-y }
	case 5: from = func(x, y int) (int, int) { return y, x }
	case 6: from = func(x, y int) (int, int) { return y, h-1-x }
	case 7: from = func(x, y int) (int, int) { return w-1-y, h-1-x }
	case 8: from = func(x, y int) (int, int) { return w-1-y, x }
	}

	switch src := img.(type) {
	case *image.Gray:
		dst := image.NewGray(image.Rect(0, 0, dw, dh))
		for y:=0; y<dh; y++ {
			for x:=0; x<dw; x++ {
				sx, sy := from(x, y)
				dst.Pix[y*dst.Stride + x] = src.Pix[sy*src.Stride + sx]
			}
		}
		return dst

	case *image.RGBA:
		dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
		for y:=0; y<dh; y++ {
			for x:=0; x<dw; x++ {
				sx, sy := from(x, y)
				copy(dst.Pix[y*dst.Stride + 4*x:][:4], src.Pix[sy*src.Stride + 4*sx:])
			}
		}
		return dst
	}

	return img
}

// ExpandPaths walks the arguments, descending into directories, and
// sorts out the image files from any YAML config files. Files named
// directly are taken as images whatever their extension; inside
// directories, only known image extensions are picked up.
func ExpandPaths(args ...string) (images, configs []string, err error) {
	for _, arg := range args {
		item, err := os.Stat(arg)

		switch {

		case err != nil:
			return nil, nil, fmt.Errorf("load %s: %w", arg, err)

		case item.IsDir():
			// Is a dir, recurse into contents
			contents, err := os.ReadDir(arg)
			if err != nil {
				return nil, nil, fmt.Errorf("readdir %s: %w", arg, err)
			}
			for _, content := range contents {
				path := filepath.Join(arg, content.Name())
				if !content.IsDir() && !isImageFile(path) && !isConfigFile(path) {
					continue
				}
				imgs, cfgs, err := ExpandPaths(path)
				if err != nil {
					return nil, nil, err
				}
				images = append(images, imgs...)
				configs = append(configs, cfgs...)
			}

		case isConfigFile(arg):
			configs = append(configs, arg)

		default:
			images = append(images, arg)
		}
	}

	return images, configs, nil
}

func isImageFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range ImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func isConfigFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}
