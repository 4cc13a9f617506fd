package forensics

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageInfo is the basic format metadata reported for an analyzed image.
type ImageInfo struct {
	Format   string          `json:"format"`
	Width    int             `json:"width"`
	Height   int             `json:"height"`
	Mode     string          `json:"mode"`
	Source   string          `json:"source,omitempty"`
	Filename string          `json:"filename,omitempty"`
	Bytes    int64           `json:"bytes"`
	Capture  *CaptureSummary `json:"capture,omitempty"`
}

// Size returns the image dimensions as "WxH".
func (i ImageInfo) Size() string {
	return fmt.Sprintf("%dx%d", i.Width, i.Height)
}

// CaptureSummary holds the camera and timestamp fields most useful when
// judging where an image came from.
type CaptureSummary struct {
	CameraMake  string    `json:"camera_make,omitempty"`
	CameraModel string    `json:"camera_model,omitempty"`
	DateTaken   time.Time `json:"date_taken,omitzero"`
}

// IsEmpty reports whether no capture field was found.
func (c *CaptureSummary) IsEmpty() bool {
	return c.CameraMake == "" && c.CameraModel == "" && c.DateTaken.IsZero()
}

// DescribeImage reads the image header of data and reports its format,
// dimensions and colour mode. Bytes that are not a decodable image produce a
// *DecodeError.
func DescribeImage(data []byte) (ImageInfo, error) {
	cfg, format, err := decodeConfig(data)
	if err != nil {
		return ImageInfo{}, err
	}

	info := ImageInfo{
		Format: strings.ToUpper(format),
		Width:  cfg.Width,
		Height: cfg.Height,
		Mode:   colorMode(cfg.ColorModel),
		Bytes:  int64(len(data)),
	}
	info.Capture = captureSummary(data)
	return info, nil
}

// MaxPixels caps width*height of an analyzed image. ELA holds several full
// RGBA copies of the canvas, so the header is checked before any pixels are
// decoded.
const MaxPixels = 50_000_000

// decodeConfig reads the image header and enforces MaxPixels.
func decodeConfig(data []byte) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, "", &DecodeError{Err: err}
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return image.Config{}, "", &DecodeError{
			Err: fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height),
		}
	}
	return cfg, format, nil
}

// colorMode maps a Go colour model onto the conventional mode tags used by
// imaging tools ("RGB", "L", "P", ...).
func colorMode(m color.Model) string {
	if _, ok := m.(color.Palette); ok {
		return "P"
	}
	switch m {
	case color.YCbCrModel, color.NYCbCrAModel:
		return "RGB"
	case color.GrayModel:
		return "L"
	case color.Gray16Model:
		return "I;16"
	case color.CMYKModel:
		return "CMYK"
	case color.AlphaModel, color.Alpha16Model:
		return "A"
	case color.RGBAModel, color.NRGBAModel, color.RGBA64Model, color.NRGBA64Model:
		return "RGBA"
	}
	return "RGB"
}

// captureSummary pulls camera and date fields through imagemeta. Formats the
// library does not understand simply yield nil.
func captureSummary(data []byte) (summary *CaptureSummary) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug().Interface("panic", r).Msg("imagemeta panicked, skipping capture summary")
			summary = nil
		}
	}()

	exifData, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		log.Debug().Err(err).Msg("No capture summary available")
		return nil
	}

	s := &CaptureSummary{
		CameraMake:  strings.TrimSpace(exifData.Make),
		CameraModel: strings.TrimSpace(exifData.Model),
	}

	// DateTimeOriginal > CreateDate > ModifyDate
	switch {
	case !exifData.DateTimeOriginal().IsZero():
		s.DateTaken = exifData.DateTimeOriginal()
	case !exifData.CreateDate().IsZero():
		s.DateTaken = exifData.CreateDate()
	case !exifData.ModifyDate().IsZero():
		s.DateTaken = exifData.ModifyDate()
	}

	if s.IsEmpty() {
		return nil
	}
	return s
}
