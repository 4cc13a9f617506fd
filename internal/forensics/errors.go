package forensics

import (
	"errors"
	"fmt"
)

// ErrInvalidQuality is returned when a JPEG quality factor is outside 1-100.
var ErrInvalidQuality = errors.New("jpeg quality must be between 1 and 100")

// ErrImageTooLarge is wrapped by *DecodeError when the declared canvas
// exceeds MaxPixels.
var ErrImageTooLarge = errors.New("image dimensions exceed pixel limit")

// DecodeError reports that the input bytes are not a decodable image.
// Callers surface it as an analysis failure, not a software fault.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// MetadataParseError reports that the EXIF container could not be parsed.
// It is stored in ExifTable.Err rather than returned.
type MetadataParseError struct {
	Err error
}

func (e *MetadataParseError) Error() string {
	return e.Err.Error()
}

func (e *MetadataParseError) Unwrap() error {
	return e.Err
}

// GPSDecodeError describes why a GPS directory did not yield a coordinate.
// It never reaches callers; the coordinate is simply absent.
type GPSDecodeError struct {
	Field  string
	Reason string
}

func (e *GPSDecodeError) Error() string {
	return fmt.Sprintf("gps %s: %s", e.Field, e.Reason)
}
