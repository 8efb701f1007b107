// Package imageio loads and saves the grayscale images processed by the
// equalizer.
//
// Decoding accepts every format registered with the image package. Importing
// imageio registers PNG, JPEG and GIF from the standard library, BMP, TIFF
// and WebP from golang.org/x/image, and the netpbm family (PBM, PGM, PPM
// and PAM, plain and raw) through github.com/spakin/netpbm. Color images are
// converted to 8-bit luminance.
package imageio

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp" // register WebP decoder
)

// I/O errors.
var (
	// ErrUnsupportedFormat is returned when a file extension has no encoder.
	ErrUnsupportedFormat = errors.New("imageio: unsupported format")

	// ErrEmptyData is returned when the input holds no bytes.
	ErrEmptyData = errors.New("imageio: empty data")
)

// Load decodes the image at path into 8-bit gray. It also returns the name
// of the detected format.
func Load(path string) (*image.Gray, string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, "", fmt.Errorf("imageio: open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Decode(f)
}

// Decode decodes an image from r, auto-detecting the format, and converts
// it to 8-bit gray.
func Decode(r io.Reader) (*image.Gray, string, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(2)
	if len(head) == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			return nil, "", ErrEmptyData
		}
		return nil, "", fmt.Errorf("imageio: read: %w", err)
	}

	var (
		img    image.Image
		format string
	)
	if isNetpbm(head) {
		img, format, err = decodeNetpbm(br)
	} else {
		img, format, err = image.Decode(br)
	}
	if err != nil {
		return nil, "", fmt.Errorf("imageio: decode: %w", err)
	}
	return ToGray(img), format, nil
}

// ToGray converts img to an 8-bit gray image whose bounds start at the
// origin. Gray images already in that shape are returned unchanged.
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) && g.Stride == b.Dx() {
		return g
	}
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// FormatForPath returns the encoder name for the extension of path.
func FormatForPath(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png":
		return "png", nil
	case ".pgm", ".pnm":
		return "pgm", nil
	case ".bmp":
		return "bmp", nil
	case ".tif", ".tiff":
		return "tiff", nil
	case ".jpg", ".jpeg":
		return "jpeg", nil
	default:
		return "", fmt.Errorf("%w: extension %q", ErrUnsupportedFormat, ext)
	}
}

// Save writes img to path in the format selected by its extension:
// .png, .pgm, .bmp, .tif/.tiff or .jpg/.jpeg.
func Save(path string, img *image.Gray) error {
	format, err := FormatForPath(path)
	if err != nil {
		return err
	}

	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("imageio: create file: %w", err)
	}
	if err := Encode(f, img, format); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("imageio: close file: %w", err)
	}
	return nil
}

// Encode writes img to w in the named format.
func Encode(w io.Writer, img *image.Gray, format string) error {
	var err error
	switch format {
	case "png":
		err = png.Encode(w, img)
	case "pgm":
		err = encodePGM(w, img)
	case "bmp":
		err = bmp.Encode(w, img)
	case "tiff":
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case "jpeg":
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return fmt.Errorf("imageio: encode %s: %w", format, err)
	}
	return nil
}
