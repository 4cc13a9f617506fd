package forensics

import (
	"bytes"
	"unicode/utf8"

	"github.com/rwcarlsen/goexif/tiff"
)

// GPS directory tag ids.
const (
	gpsLatitudeRef  = 0x0001
	gpsLatitude     = 0x0002
	gpsLongitudeRef = 0x0003
	gpsLongitude    = 0x0004
)

// decodeGPS converts the latitude/longitude tags of a GPS directory to signed
// decimal degrees. Any missing or malformed component is reported as a
// *GPSDecodeError.
func decodeGPS(d *tiff.Dir) (*GeoCoordinate, error) {
	lat, err := gpsAxis(d, gpsLatitude, gpsLatitudeRef, "latitude", "S")
	if err != nil {
		return nil, err
	}
	lon, err := gpsAxis(d, gpsLongitude, gpsLongitudeRef, "longitude", "W")
	if err != nil {
		return nil, err
	}
	return &GeoCoordinate{Latitude: lat, Longitude: lon}, nil
}

func gpsAxis(d *tiff.Dir, valueID, refID uint16, field, negativeRef string) (float64, error) {
	tag := findTag(d, valueID)
	if tag == nil {
		return 0, &GPSDecodeError{Field: field, Reason: "tag missing"}
	}
	if tag.Count != 3 {
		return 0, &GPSDecodeError{Field: field, Reason: "expected 3 rationals"}
	}
	var dms [3]Rational
	for i := range dms {
		num, den, err := tag.Rat2(i)
		if err != nil {
			return 0, &GPSDecodeError{Field: field, Reason: err.Error()}
		}
		dms[i] = Rational{Num: num, Den: den}
	}

	refTag := findTag(d, refID)
	if refTag == nil {
		return 0, &GPSDecodeError{Field: field + " ref", Reason: "tag missing"}
	}
	ref, ok := gpsRef(refTag.Val)
	if !ok {
		return 0, &GPSDecodeError{Field: field + " ref", Reason: "not valid text"}
	}

	v, err := dmsToDegrees(dms, field)
	if err != nil {
		return 0, err
	}
	if ref == negativeRef {
		v = -v
	}
	return v, nil
}

// dmsToDegrees converts degrees, minutes and seconds to decimal degrees.
func dmsToDegrees(dms [3]Rational, field string) (float64, error) {
	for _, r := range dms {
		if r.Den == 0 {
			return 0, &GPSDecodeError{Field: field, Reason: "zero denominator"}
		}
	}
	return dms[0].Float() + dms[1].Float()/60 + dms[2].Float()/3600, nil
}

func gpsRef(b []byte) (string, bool) {
	b = bytes.TrimRight(b, "\x00 ")
	if !utf8.Valid(b) {
		return "", false
	}
	return string(b), true
}
