package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/lucas-albers-lz4/respimg/pkg/fileutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// GradientImage returns a deterministic width×height RGBA image. seed shifts the
// colors so that fixtures of equal size still differ in content.
func GradientImage(width, height int, seed uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{
				R: uint8(x*255/max(width, 1)) + seed,
				G: uint8(y*255/max(height, 1)) ^ seed,
				B: seed,
				A: 255,
			})
		}
	}
	return img
}

// PNGBytes encodes a gradient fixture as PNG.
func PNGBytes(t *testing.T, width, height int, seed uint8) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, GradientImage(width, height, seed)))
	return buf.Bytes()
}

// JPEGBytes encodes a gradient fixture as JPEG.
func JPEGBytes(t *testing.T, width, height int, seed uint8) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, GradientImage(width, height, seed), &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

// WritePNG writes a PNG fixture into fs at name.
func WritePNG(t *testing.T, fs afero.Fs, name string, width, height int, seed uint8) {
	t.Helper()
	require.NoError(t, fileutil.WriteFileAll(fs, name, PNGBytes(t, width, height, seed)))
}
