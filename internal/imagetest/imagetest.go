// Package imagetest builds small synthetic images and EXIF blocks for tests.
package imagetest

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"math/rand/v2"
	"sort"
)

// TIFF data types used by the builders.
const (
	TypeByte      = 1
	TypeASCII     = 2
	TypeShort     = 3
	TypeLong      = 4
	TypeRational  = 5
	TypeUndefined = 7
	TypeDouble    = 12
)

const (
	exifPointerTag = 0x8769
	gpsPointerTag  = 0x8825
)

var order = binary.LittleEndian

// Uniform returns a w×h image filled with c.
func Uniform(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

// Noise returns a w×h opaque image of seeded pseudo-random pixels.
func Noise(w, h int, seed uint64) *image.RGBA {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = uint8(rng.UintN(256))
		img.Pix[i+1] = uint8(rng.UintN(256))
		img.Pix[i+2] = uint8(rng.UintN(256))
		img.Pix[i+3] = 0xff
	}
	return img
}

// PNG encodes img as PNG.
func PNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// PNGHeader returns a PNG signature and IHDR chunk declaring a w×h 8-bit RGB
// canvas. The stream carries no pixel data, so only DecodeConfig succeeds.
func PNGHeader(w, h uint32) []byte {
	ihdr := binary.BigEndian.AppendUint32(nil, w)
	ihdr = binary.BigEndian.AppendUint32(ihdr, h)
	ihdr = append(ihdr, 8, 2, 0, 0, 0)

	chunk := append([]byte("IHDR"), ihdr...)
	out := []byte("\x89PNG\r\n\x1a\n")
	out = binary.BigEndian.AppendUint32(out, uint32(len(ihdr)))
	out = append(out, chunk...)
	return binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(chunk))
}

// JPEG encodes img as JPEG at quality.
func JPEG(img image.Image, quality int) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Entry is one IFD entry. Data holds the little-endian value bytes.
type Entry struct {
	Tag   uint16
	Type  uint16
	Count uint32
	Data  []byte
}

// ASCII builds a NUL-terminated string entry.
func ASCII(tag uint16, s string) Entry {
	return Entry{Tag: tag, Type: TypeASCII, Count: uint32(len(s) + 1), Data: append([]byte(s), 0)}
}

// Undefined builds an opaque byte entry.
func Undefined(tag uint16, b []byte) Entry {
	return Entry{Tag: tag, Type: TypeUndefined, Count: uint32(len(b)), Data: b}
}

// Bytes builds a BYTE entry.
func Bytes(tag uint16, b ...byte) Entry {
	return Entry{Tag: tag, Type: TypeByte, Count: uint32(len(b)), Data: b}
}

// Short builds a single SHORT entry.
func Short(tag uint16, v uint16) Entry {
	b := make([]byte, 2)
	order.PutUint16(b, v)
	return Entry{Tag: tag, Type: TypeShort, Count: 1, Data: b}
}

// Long builds a single LONG entry.
func Long(tag uint16, v uint32) Entry {
	b := make([]byte, 4)
	order.PutUint32(b, v)
	return Entry{Tag: tag, Type: TypeLong, Count: 1, Data: b}
}

// Rationals builds a RATIONAL entry from (numerator, denominator) pairs.
func Rationals(tag uint16, vals ...[2]uint32) Entry {
	b := make([]byte, 0, 8*len(vals))
	for _, v := range vals {
		b = order.AppendUint32(b, v[0])
		b = order.AppendUint32(b, v[1])
	}
	return Entry{Tag: tag, Type: TypeRational, Count: uint32(len(vals)), Data: b}
}

// Doubles builds a DOUBLE entry.
func Doubles(tag uint16, vals ...float64) Entry {
	b := make([]byte, 0, 8*len(vals))
	for _, v := range vals {
		b = order.AppendUint64(b, math.Float64bits(v))
	}
	return Entry{Tag: tag, Type: TypeDouble, Count: uint32(len(vals)), Data: b}
}

// DMS is a degrees/minutes/seconds triple of rationals.
type DMS [3][2]uint32

// GPSEntries returns the four tags describing a position.
func GPSEntries(latRef string, lat DMS, lonRef string, lon DMS) []Entry {
	return []Entry{
		Bytes(0x0000, 2, 3, 0, 0),
		ASCII(0x0001, latRef),
		Rationals(0x0002, lat[0], lat[1], lat[2]),
		ASCII(0x0003, lonRef),
		Rationals(0x0004, lon[0], lon[1], lon[2]),
	}
}

// TIFF describes a little-endian TIFF/EXIF block. Exif and GPS directories are
// linked from IFD0 when non-empty.
type TIFF struct {
	IFD0 []Entry
	Exif []Entry
	GPS  []Entry
}

// Bytes lays the directories out after the 8-byte header and returns the block.
func (t TIFF) Bytes() []byte {
	ifd0 := append([]Entry(nil), t.IFD0...)
	if len(t.Exif) > 0 {
		ifd0 = append(ifd0, Long(exifPointerTag, 0))
	}
	if len(t.GPS) > 0 {
		ifd0 = append(ifd0, Long(gpsPointerTag, 0))
	}

	const ifd0Start = 8
	exifStart := ifd0Start + uint32(len(encodeIFD(ifd0Start, ifd0)))
	gpsStart := exifStart
	if len(t.Exif) > 0 {
		gpsStart += uint32(len(encodeIFD(exifStart, t.Exif)))
	}

	for i := range ifd0 {
		switch ifd0[i].Tag {
		case exifPointerTag:
			ifd0[i] = Long(exifPointerTag, exifStart)
		case gpsPointerTag:
			ifd0[i] = Long(gpsPointerTag, gpsStart)
		}
	}

	var buf bytes.Buffer
	buf.WriteString("II")
	buf.Write(order.AppendUint16(nil, 42))
	buf.Write(order.AppendUint32(nil, ifd0Start))
	buf.Write(encodeIFD(ifd0Start, ifd0))
	if len(t.Exif) > 0 {
		buf.Write(encodeIFD(exifStart, t.Exif))
	}
	if len(t.GPS) > 0 {
		buf.Write(encodeIFD(gpsStart, t.GPS))
	}
	return buf.Bytes()
}

// encodeIFD encodes entries as an IFD placed at start, followed by any values
// too large to fit in the entry itself.
func encodeIFD(start uint32, entries []Entry) []byte {
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Tag < sorted[j].Tag })

	size := uint32(2 + 12*len(sorted) + 4)
	var ifd, tail bytes.Buffer
	ifd.Write(order.AppendUint16(nil, uint16(len(sorted))))
	for _, e := range sorted {
		ifd.Write(order.AppendUint16(nil, e.Tag))
		ifd.Write(order.AppendUint16(nil, e.Type))
		ifd.Write(order.AppendUint32(nil, e.Count))
		if len(e.Data) <= 4 {
			v := make([]byte, 4)
			copy(v, e.Data)
			ifd.Write(v)
			continue
		}
		ifd.Write(order.AppendUint32(nil, start+size+uint32(tail.Len())))
		tail.Write(e.Data)
		if tail.Len()%2 == 1 {
			tail.WriteByte(0)
		}
	}
	ifd.Write(order.AppendUint32(nil, 0))
	return append(ifd.Bytes(), tail.Bytes()...)
}

// WithExif inserts tiffBlock as an APP1 Exif segment directly after the SOI
// marker of a JPEG stream.
func WithExif(jpg, tiffBlock []byte) []byte {
	payload := append([]byte("Exif\x00\x00"), tiffBlock...)
	seg := []byte{0xFF, 0xE1}
	seg = binary.BigEndian.AppendUint16(seg, uint16(len(payload)+2))
	seg = append(seg, payload...)

	out := make([]byte, 0, len(jpg)+len(seg))
	out = append(out, jpg[:2]...)
	out = append(out, seg...)
	out = append(out, jpg[2:]...)
	return out
}

// PittsburghJPEG returns a small JPEG tagged at 40°26'46"N 79°58'56"W.
func PittsburghJPEG() []byte {
	block := TIFF{
		IFD0: []Entry{ASCII(0x010F, "Acme"), ASCII(0x0110, "Inspector 1")},
		GPS: GPSEntries(
			"N", DMS{{40, 1}, {26, 1}, {46, 1}},
			"W", DMS{{79, 1}, {58, 1}, {56, 1}},
		),
	}
	return WithExif(JPEG(Noise(32, 32, 7), 85), block.Bytes())
}
