package forensics

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// Reserved ExifTable keys that never collide with directory names.
const (
	CoordinatesKey = "GPS_Coordinates"
	ErrorKey       = "error"
)

// NoLocationMessage is rendered in place of a coordinate when none was found.
const NoLocationMessage = "No location available (metadata removed or not present)"

// IFD pointer tags.
const (
	exifPointer    = 0x8769
	gpsPointer     = 0x8825
	interopPointer = 0xA005
)

// Rational is an EXIF (numerator, denominator) pair.
type Rational struct {
	Num int64
	Den int64
}

// Float returns Num/Den. The caller must check Den first.
func (r Rational) Float() float64 {
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// MarshalJSON encodes the pair as a two-element array.
func (r Rational) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int64{r.Num, r.Den})
}

// GeoCoordinate is a signed decimal-degree position. Negative latitude is
// South and negative longitude is West.
type GeoCoordinate struct {
	Latitude  float64
	Longitude float64
}

// MarshalJSON encodes the coordinate as [latitude, longitude].
func (g GeoCoordinate) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{g.Latitude, g.Longitude})
}

func (g GeoCoordinate) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", g.Latitude, g.Longitude)
}

// ExifTable holds decoded EXIF tags grouped by directory.
//
// A table whose container could not be parsed has Err set and no directories.
// A nil Location means no usable GPS data, which is an ordinary outcome.
type ExifTable struct {
	Dirs     map[string]map[string]any
	Location *GeoCoordinate
	Err      *MetadataParseError
}

// Directory returns the tags of dir, or nil when the directory is absent.
func (t *ExifTable) Directory(dir string) map[string]any {
	return t.Dirs[dir]
}

// LocationText renders the coordinate or the no-location message.
func (t *ExifTable) LocationText() string {
	if t.Location == nil {
		return NoLocationMessage
	}
	return t.Location.String()
}

// MarshalJSON flattens the directories, the coordinate and the error into one
// object. An absent coordinate is encoded as NoLocationMessage.
func (t *ExifTable) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(t.Dirs)+2)
	for dir, tags := range t.Dirs {
		out[dir] = tags
	}
	if t.Location != nil {
		out[CoordinatesKey] = t.Location
	} else {
		out[CoordinatesKey] = NoLocationMessage
	}
	if t.Err != nil {
		out[ErrorKey] = t.Err.Error()
	}
	return json.Marshal(out)
}

// Extract decodes the EXIF block embedded in data.
//
// Extract never fails: an unparseable container produces a table whose Err
// describes the problem. Sub-directories that cannot be read are skipped, and
// malformed GPS tags only leave Location nil.
func Extract(data []byte) *ExifTable {
	table := &ExifTable{}

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil && missingExifSegment(data, err) {
		log.Debug().Err(err).Msg("JPEG carries no EXIF segment")
		table.Dirs = emptyDirs()
		return table
	}
	if x == nil || x.Tiff == nil || (err != nil && exif.IsCriticalError(err)) {
		if err == nil {
			err = errors.New("exif: no data")
		}
		log.Debug().Err(err).Msg("No parseable EXIF container")
		table.Err = &MetadataParseError{Err: err}
		return table
	}
	if err != nil {
		log.Debug().Err(err).Msg("EXIF container decoded with non-critical errors")
	}

	raw := x.Raw
	order := x.Tiff.Order

	dirs := make(map[string]*tiff.Dir, len(DirectoryNames))
	if len(x.Tiff.Dirs) > 0 {
		dirs[DirImage] = x.Tiff.Dirs[0]
	}
	if len(x.Tiff.Dirs) > 1 {
		dirs[DirThumbnail] = x.Tiff.Dirs[1]
	}
	dirs[DirExif] = subDir(raw, order, dirs[DirImage], exifPointer, DirExif)
	dirs[DirGPS] = subDir(raw, order, dirs[DirImage], gpsPointer, DirGPS)
	dirs[DirInterop] = subDir(raw, order, dirs[DirExif], interopPointer, DirInterop)

	table.Dirs = make(map[string]map[string]any, len(DirectoryNames))
	for _, name := range DirectoryNames {
		table.Dirs[name] = decodeDir(name, dirs[name])
	}

	if gps := dirs[DirGPS]; gps != nil && len(gps.Tags) > 0 {
		coord, err := decodeGPS(gps)
		if err != nil {
			log.Debug().Err(err).Msg("GPS directory present but coordinate unusable")
		} else {
			table.Location = coord
		}
	}

	log.Debug().
		Int("ifd0_tags", len(table.Dirs[DirImage])).
		Int("exif_tags", len(table.Dirs[DirExif])).
		Int("gps_tags", len(table.Dirs[DirGPS])).
		Bool("has_gps", table.Location != nil).
		Msg("EXIF extraction complete")

	return table
}

// errNoExifMarker is the goexif error for an APP1 segment without the
// "Exif\x00\x00" header (an XMP-only APP1, for instance).
const errNoExifMarker = "exif: failed to find exif intro marker"

// missingExifSegment reports whether err from exif.Decode means a JPEG
// stream simply has no EXIF block, as opposed to an unreadable container.
func missingExifSegment(data []byte, err error) bool {
	if !bytes.HasPrefix(data, []byte{0xFF, 0xD8}) {
		return false
	}
	return errors.Is(err, io.EOF) || err.Error() == errNoExifMarker
}

func emptyDirs() map[string]map[string]any {
	dirs := make(map[string]map[string]any, len(DirectoryNames))
	for _, name := range DirectoryNames {
		dirs[name] = make(map[string]any)
	}
	return dirs
}

// subDir follows the pointer tag ptr in parent to a sub-IFD inside raw.
// Missing pointers and unreadable directories yield nil.
func subDir(raw []byte, order binary.ByteOrder, parent *tiff.Dir, ptr uint16, name string) *tiff.Dir {
	if parent == nil {
		return nil
	}
	tag := findTag(parent, ptr)
	if tag == nil {
		return nil
	}
	offset, err := tag.Int64(0)
	if err != nil || offset <= 0 || offset >= int64(len(raw)) {
		log.Debug().Str("dir", name).Int64("offset", offset).Msg("Invalid sub-IFD pointer, skipping")
		return nil
	}

	r := bytes.NewReader(raw)
	if _, err := r.Seek(offset, 0); err != nil {
		log.Debug().Err(err).Str("dir", name).Msg("Failed to seek to sub-IFD, skipping")
		return nil
	}
	d, _, err := tiff.DecodeDir(r, order)
	if err != nil {
		log.Debug().Err(err).Str("dir", name).Msg("Failed to decode sub-IFD, skipping")
		return nil
	}
	return d
}

func findTag(d *tiff.Dir, id uint16) *tiff.Tag {
	for _, tag := range d.Tags {
		if tag.Id == id {
			return tag
		}
	}
	return nil
}

func decodeDir(name string, d *tiff.Dir) map[string]any {
	tags := make(map[string]any)
	if d == nil {
		return tags
	}
	for _, tag := range d.Tags {
		tags[TagName(name, tag.Id)] = tagValue(tag)
	}
	return tags
}

// tagValue converts a raw tag into a JSON-friendly Go value. Byte strings are
// decoded as text with invalid sequences replaced.
func tagValue(tag *tiff.Tag) any {
	switch tag.Type {
	case tiff.DTAscii:
		return decodeText(bytes.TrimRight(tag.Val, "\x00"))
	case tiff.DTByte, tiff.DTUndefined:
		return decodeText(tag.Val)
	}

	n := int(tag.Count)
	switch tag.Format() {
	case tiff.IntVal:
		vals := make([]int64, 0, n)
		for i := 0; i < n; i++ {
			v, err := tag.Int64(i)
			if err != nil {
				return rawText(tag)
			}
			vals = append(vals, v)
		}
		if len(vals) == 1 {
			return vals[0]
		}
		return vals
	case tiff.RatVal:
		vals := make([]Rational, 0, n)
		for i := 0; i < n; i++ {
			num, den, err := tag.Rat2(i)
			if err != nil {
				return rawText(tag)
			}
			vals = append(vals, Rational{Num: num, Den: den})
		}
		if len(vals) == 1 {
			return vals[0]
		}
		return vals
	case tiff.FloatVal:
		vals := make([]any, 0, n)
		for i := 0; i < n; i++ {
			v, err := tag.Float(i)
			if err != nil {
				return rawText(tag)
			}
			vals = append(vals, floatValue(v))
		}
		if len(vals) == 1 {
			return vals[0]
		}
		return vals
	}
	return rawText(tag)
}

// floatValue keeps finite floats as numbers. NaN and infinities have no JSON
// encoding and are rendered as text ("NaN", "+Inf", "-Inf").
func floatValue(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return v
}

func decodeText(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

// rawText is the fallback representation for values that do not convert.
func rawText(tag *tiff.Tag) string {
	return strconv.Quote(string(tag.Val))
}
