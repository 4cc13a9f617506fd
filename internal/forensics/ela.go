package forensics

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

// DefaultQuality is the JPEG quality factor used for the recompression pass.
const DefaultQuality = 90

// GenerateELA computes an Error Level Analysis image for data.
//
// The image is flattened to opaque RGB, re-encoded as JPEG at quality and decoded
// again. The per-channel absolute difference between the two grids is stretched so
// that the largest observed difference becomes 255, then encoded as PNG. An image
// whose recompression is lossless yields an all-black result.
func GenerateELA(data []byte, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidQuality, quality)
	}

	if _, _, err := decodeConfig(data); err != nil {
		return nil, err
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	orig := toRGB(src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, orig, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to re-encode as JPEG: %w", err)
	}
	decoded, err := jpeg.Decode(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to decode recompressed JPEG: %w", err)
	}
	recompressed := toRGB(decoded)

	diff, maxDiff := difference(orig, recompressed)
	stretch(diff, maxDiff)

	var out bytes.Buffer
	if err := png.Encode(&out, diff); err != nil {
		return nil, fmt.Errorf("failed to encode ELA image: %w", err)
	}

	log.Debug().
		Int("width", diff.Rect.Dx()).
		Int("height", diff.Rect.Dy()).
		Int("quality", quality).
		Uint8("max_diff", maxDiff).
		Int("output_size", out.Len()).
		Msg("ELA generation complete")

	return out.Bytes(), nil
}

// toRGB returns a copy of img anchored at the origin with every alpha value
// forced to 255. Colour channels are taken un-premultiplied, so translucent
// pixels keep their stored colour instead of being composited.
func toRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			i := dst.PixOffset(x-b.Min.X, y-b.Min.Y)
			dst.Pix[i+0] = c.R
			dst.Pix[i+1] = c.G
			dst.Pix[i+2] = c.B
			dst.Pix[i+3] = 0xff
		}
	}
	return dst
}

// difference returns |a-b| per colour channel and the largest value seen.
// Both images must share the same bounds.
func difference(a, b *image.RGBA) (*image.RGBA, uint8) {
	out := image.NewRGBA(a.Rect)
	var maxDiff uint8
	for i := 0; i < len(a.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			d := absDiff(a.Pix[i+c], b.Pix[i+c])
			out.Pix[i+c] = d
			if d > maxDiff {
				maxDiff = d
			}
		}
		out.Pix[i+3] = 0xff
	}
	return out, maxDiff
}

// stretch rescales every colour channel in place by 255/maxDiff, truncating.
// A zero maxDiff leaves the image untouched.
func stretch(img *image.RGBA, maxDiff uint8) {
	if maxDiff == 0 {
		return
	}
	var lut [256]uint8
	for v := 0; v < 256; v++ {
		scaled := v * 255 / int(maxDiff)
		if scaled > 255 {
			scaled = 255
		}
		lut[v] = uint8(scaled)
	}
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = lut[img.Pix[i+0]]
		img.Pix[i+1] = lut[img.Pix[i+1]]
		img.Pix[i+2] = lut[img.Pix[i+2]]
	}
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
