package portfolio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"

	"github.com/fogleman/gg"
	_ "golang.org/x/image/webp"
)

// DefaultThumbnailPx is the longest edge of a generated thumbnail.
const DefaultThumbnailPx = 480

// MaxThumbnailSourcePixels caps the declared size of an image that will be
// decoded for a thumbnail. The upload size limit bounds the compressed
// bytes only.
const MaxThumbnailSourcePixels = 40_000_000

// ErrImageTooLarge is returned for images whose declared dimensions exceed
// MaxThumbnailSourcePixels.
var ErrImageTooLarge = errors.New("image dimensions too large")

// Thumbnail decodes an image from r and renders it scaled so that its
// longest edge is at most maxPx. Smaller images keep their size. Returns
// image.ErrFormat for non-image input and ErrImageTooLarge when the header
// declares more than MaxThumbnailSourcePixels.
func Thumbnail(r io.Reader, maxPx int) (image.Image, error) {
	if maxPx <= 0 {
		maxPx = DefaultThumbnailPx
	}

	// Read the header first; the bytes it consumed are replayed for Decode.
	var head bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &head))
	if err != nil {
		return nil, err
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxThumbnailSourcePixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(io.MultiReader(&head, r))
	if err != nil {
		return nil, err
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, image.ErrFormat
	}
	scale := math.Min(1, float64(maxPx)/float64(max(w, h)))
	tw := max(1, int(math.Round(float64(w)*scale)))
	th := max(1, int(math.Round(float64(h)*scale)))

	dc := gg.NewContext(tw, th)
	dc.Scale(float64(tw)/float64(w), float64(th)/float64(h))
	dc.DrawImage(src, -b.Min.X, -b.Min.Y)
	return dc.Image(), nil
}

// WriteThumbnailPNG reads the image at srcPath and writes its thumbnail as a
// PNG to dstPath.
func WriteThumbnailPNG(srcPath, dstPath string, maxPx int) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer f.Close()

	img, err := Thumbnail(f, maxPx)
	if err != nil {
		return err
	}
	if err := gg.NewContextForImage(img).SavePNG(dstPath); err != nil {
		return fmt.Errorf("save thumbnail: %w", err)
	}
	return nil
}
