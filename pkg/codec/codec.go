// Package codec wraps the external image-processing libraries behind a small
// interface so the pipeline can be exercised with fakes.
package codec

import (
	"bytes"
	"image"
	"io"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/webp"
	"github.com/pkg/errors"

	// register the webp decoder with image.Decode and image.DecodeConfig
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedFormat is returned for formats the codec cannot encode.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Info describes a source image without decoding its pixels.
type Info struct {
	Width  int
	Height int
	Format string
}

// Codec decodes, resizes and encodes images.
type Codec interface {
	Probe(data []byte) (Info, error)
	Decode(data []byte) (image.Image, error)
	Resize(img image.Image, width, height int) image.Image
	Encode(w io.Writer, img image.Image, format string, quality int) error
}

// Imaging is the default Codec, built on github.com/disintegration/imaging with
// webp encoding from github.com/gen2brain/webp.
type Imaging struct{}

// New returns the default codec.
func New() *Imaging {
	return &Imaging{}
}

// Probe reads the image header.
func (c *Imaging) Probe(data []byte) (Info, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, errors.Wrap(err, "failed to read image header")
	}
	return Info{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// Decode decodes the image, applying EXIF orientation.
func (c *Imaging) Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode image")
	}
	return img, nil
}

// Resize scales img to exactly width×height with a Lanczos filter.
func (c *Imaging) Resize(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	return imaging.Resize(img, width, height, imaging.Lanczos)
}

// Encode writes img in format. quality applies to lossy formats.
func (c *Imaging) Encode(w io.Writer, img image.Image, format string, quality int) error {
	var err error
	switch format {
	case "webp":
		err = webp.Encode(w, img, webp.Options{Quality: quality})
	case "jpeg":
		err = imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case "png":
		err = imaging.Encode(w, img, imaging.PNG)
	case "gif":
		err = imaging.Encode(w, img, imaging.GIF)
	case "tiff":
		err = imaging.Encode(w, img, imaging.TIFF)
	case "bmp":
		err = imaging.Encode(w, img, imaging.BMP)
	default:
		return errors.Wrapf(ErrUnsupportedFormat, "encode %q", format)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", format)
	}
	return nil
}

// FormatFromPath guesses a canonical format name from a file extension. It returns
// an empty string for unknown extensions.
func FormatFromPath(p string) string {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(p), ".")) {
	case "jpg", "jpeg":
		return "jpeg"
	case "png":
		return "png"
	case "gif":
		return "gif"
	case "tif", "tiff":
		return "tiff"
	case "bmp":
		return "bmp"
	case "webp":
		return "webp"
	}
	return ""
}

// IsCompressed reports whether format already carries its own entropy coding.
func IsCompressed(format string) bool {
	switch format {
	case "jpeg", "png", "gif", "webp":
		return true
	}
	return false
}
