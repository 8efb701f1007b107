package imageio

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/spakin/netpbm"
)

// ErrMalformed is returned when a netpbm stream cannot be parsed.
var ErrMalformed = errors.New("imageio: malformed netpbm data")

// maxPixels bounds the allocation made from an untrusted header.
const maxPixels = 1 << 28

// isNetpbm reports whether head starts with a PBM, PGM, PPM or PAM magic.
func isNetpbm(head []byte) bool {
	return len(head) >= 2 && head[0] == 'P' && head[1] >= '1' && head[1] <= '7'
}

// netpbmFormat names the flavor announced by the magic digit.
func netpbmFormat(digit byte) string {
	switch digit {
	case '1', '4':
		return "pbm"
	case '2', '5':
		return "pgm"
	case '3', '6':
		return "ppm"
	default:
		return "pam"
	}
}

// decodeNetpbm decodes any netpbm flavor. The header is checked against
// maxPixels before the sample buffer is allocated. Alpha channels are
// dropped. The returned format is "pbm", "pgm", "ppm" or "pam".
func decodeNetpbm(r io.Reader) (image.Image, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("imageio: read netpbm: %w", err)
	}

	cfg, err := netpbm.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > maxPixels/cfg.Height {
		return nil, "", fmt.Errorf("%w: %dx%d image", ErrMalformed, cfg.Width, cfg.Height)
	}

	img, err := netpbm.Decode(bytes.NewReader(data), &netpbm.DecodeOptions{Target: netpbm.PNM})
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return img, netpbmFormat(data[1]), nil
}

// encodePGM writes img as a raw (P5) PGM with maxval 255.
func encodePGM(w io.Writer, img *image.Gray) error {
	bw := bufio.NewWriter(w)
	if err := netpbm.Encode(bw, img, &netpbm.EncodeOptions{Format: netpbm.PGM, MaxValue: 255}); err != nil {
		return err
	}
	return bw.Flush()
}
