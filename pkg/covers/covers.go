// Package covers writes cached cover art next to committed books as JPEG.
package covers

import (
	"bytes"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// MaxHeight bounds the height of converted covers.
const MaxHeight = 1600

var ErrUnsupported = errors.New("unsupported cover image type")

// WriteJPEG writes the image at src to dst as a JPEG. JPEG sources within
// MaxHeight are copied byte for byte, anything else is decoded and
// re-encoded.
func WriteJPEG(src, dst string, mode os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.WithStack(err)
	}

	mtype := mimetype.Detect(data)
	switch {
	case mtype.Is("image/jpeg"):
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err == nil && cfg.Height <= MaxHeight {
			return writeFile(dst, data, mode)
		}
	case mtype.Is("image/png"), mtype.Is("image/gif"), mtype.Is("image/webp"):
	default:
		return errors.Wrapf(ErrUnsupported, "%s is %s", src, mtype.String())
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return errors.Wrapf(err, "failed to decode %s", src)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, fit(img), &jpeg.Options{Quality: 90}); err != nil {
		return errors.WithStack(err)
	}
	return writeFile(dst, buf.Bytes(), mode)
}

// fit scales img down to MaxHeight, keeping its aspect ratio, and flattens
// any transparency onto white.
func fit(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if h > MaxHeight {
		w = max(1, w*MaxHeight/h)
		h = MaxHeight
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func writeFile(dst string, data []byte, mode os.FileMode) error {
	if err := os.WriteFile(dst, data, mode); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Chmod(dst, mode))
}
