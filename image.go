package histeq

import (
	"fmt"
	"image"
	"math"

	"github.com/gogpu/histeq/internal/imageio"
)

// Image is a single-channel 8-bit image stored row-major without padding.
type Image struct {
	Width, Height int
	Pix           []byte
}

// NewImage allocates a black image.
func NewImage(width, height int) *Image {
	return &Image{Width: width, Height: height, Pix: make([]byte, width*height)}
}

// FromGray copies a gray image. The result starts at the origin.
func FromGray(g *image.Gray) *Image {
	b := g.Bounds()
	img := NewImage(b.Dx(), b.Dy())
	for y := range img.Height {
		off := g.PixOffset(b.Min.X, b.Min.Y+y)
		copy(img.Pix[y*img.Width:(y+1)*img.Width], g.Pix[off:off+img.Width])
	}
	return img
}

// Gray returns an image.Gray sharing Pix.
func (m *Image) Gray() *image.Gray {
	return &image.Gray{Pix: m.Pix, Stride: m.Width, Rect: image.Rect(0, 0, m.Width, m.Height)}
}

// Len returns the number of pixels.
func (m *Image) Len() int { return len(m.Pix) }

// Validate reports why m cannot be equalized, wrapped in ErrInput.
func (m *Image) Validate() error {
	switch {
	case m == nil:
		return fmt.Errorf("%w: nil image", ErrInput)
	case m.Width < 0 || m.Height < 0:
		return fmt.Errorf("%w: negative size %dx%d", ErrInput, m.Width, m.Height)
	case m.Len() != m.Width*m.Height:
		return fmt.Errorf("%w: %d samples for a %dx%d image", ErrInput, m.Len(), m.Width, m.Height)
	case m.Len() == 0:
		return fmt.Errorf("%w: empty image", ErrInput)
	case uint64(m.Len()) > math.MaxUint32:
		return fmt.Errorf("%w: %d pixels exceed the 32-bit counter range", ErrInput, m.Len())
	}
	return nil
}

// LoadImage decodes the file at path into an 8-bit gray image. Color
// images are converted to luminance.
func LoadImage(path string) (*Image, error) {
	g, format, err := imageio.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInput, err)
	}
	Logger().Debug("histeq: image loaded",
		"path", path,
		"format", format,
		"size", fmt.Sprintf("%dx%d", g.Bounds().Dx(), g.Bounds().Dy()))
	return FromGray(g), nil
}

// SaveImage writes m to path in the format selected by the extension
// (.png, .pgm, .bmp, .tif, .jpg).
func SaveImage(path string, m *Image) error {
	if err := imageio.Save(path, m.Gray()); err != nil {
		return fmt.Errorf("histeq: save %s: %w", path, err)
	}
	return nil
}
