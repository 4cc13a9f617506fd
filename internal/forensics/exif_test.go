package forensics

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/fpang/image-inspect/internal/imagetest"
)

const coordTolerance = 1e-9

func gpsJPEG(block imagetest.TIFF) []byte {
	return imagetest.WithExif(imagetest.JPEG(imagetest.Noise(16, 16, 5), 90), block.Bytes())
}

func TestExtract_GPSHemispheres(t *testing.T) {
	dms := imagetest.DMS{{1, 1}, {2, 1}, {3, 1}}
	want := 1 + 2.0/60 + 3.0/3600

	tests := []struct {
		name    string
		latRef  string
		lonRef  string
		wantLat float64
		wantLon float64
	}{
		{"north east", "N", "E", want, want},
		{"south east", "S", "E", -want, want},
		{"north west", "N", "W", want, -want},
		{"south west", "S", "W", -want, -want},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := Extract(gpsJPEG(imagetest.TIFF{
				GPS: imagetest.GPSEntries(tt.latRef, dms, tt.lonRef, dms),
			}))
			if table.Err != nil {
				t.Fatalf("Extract() Err = %v", table.Err)
			}
			if table.Location == nil {
				t.Fatal("Extract() Location = nil, want coordinate")
			}
			if math.Abs(table.Location.Latitude-tt.wantLat) > coordTolerance {
				t.Errorf("Latitude = %v, want %v", table.Location.Latitude, tt.wantLat)
			}
			if math.Abs(table.Location.Longitude-tt.wantLon) > coordTolerance {
				t.Errorf("Longitude = %v, want %v", table.Location.Longitude, tt.wantLon)
			}
		})
	}
}

func TestExtract_FractionalSeconds(t *testing.T) {
	table := Extract(gpsJPEG(imagetest.TIFF{
		GPS: imagetest.GPSEntries(
			"N", imagetest.DMS{{40, 1}, {44, 1}, {550404, 10000}},
			"W", imagetest.DMS{{73, 1}, {59, 1}, {0, 1}},
		),
	}))
	if table.Location == nil {
		t.Fatal("Extract() Location = nil, want coordinate")
	}
	wantLat := 40 + 44.0/60 + 55.0404/3600
	if math.Abs(table.Location.Latitude-wantLat) > coordTolerance {
		t.Errorf("Latitude = %v, want %v", table.Location.Latitude, wantLat)
	}
	wantLon := -(73 + 59.0/60)
	if math.Abs(table.Location.Longitude-wantLon) > coordTolerance {
		t.Errorf("Longitude = %v, want %v", table.Location.Longitude, wantLon)
	}
}

func TestExtract_MalformedGPSIsAbsent(t *testing.T) {
	dms := imagetest.DMS{{1, 1}, {2, 1}, {3, 1}}

	tests := []struct {
		name string
		gps  []imagetest.Entry
	}{
		{
			name: "missing longitude",
			gps: []imagetest.Entry{
				imagetest.ASCII(0x0001, "N"),
				imagetest.Rationals(0x0002, dms[0], dms[1], dms[2]),
			},
		},
		{
			name: "zero denominator",
			gps: imagetest.GPSEntries(
				"N", imagetest.DMS{{1, 0}, {2, 1}, {3, 1}},
				"E", dms,
			),
		},
		{
			name: "two components",
			gps: []imagetest.Entry{
				imagetest.ASCII(0x0001, "N"),
				imagetest.Rationals(0x0002, dms[0], dms[1]),
				imagetest.ASCII(0x0003, "E"),
				imagetest.Rationals(0x0004, dms[0], dms[1], dms[2]),
			},
		},
		{
			name: "undecodable ref",
			gps: []imagetest.Entry{
				imagetest.Undefined(0x0001, []byte{0xff, 0xfe}),
				imagetest.Rationals(0x0002, dms[0], dms[1], dms[2]),
				imagetest.ASCII(0x0003, "E"),
				imagetest.Rationals(0x0004, dms[0], dms[1], dms[2]),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := Extract(gpsJPEG(imagetest.TIFF{
				IFD0: []imagetest.Entry{imagetest.ASCII(0x010F, "Acme")},
				GPS:  tt.gps,
			}))
			if table.Err != nil {
				t.Fatalf("Extract() Err = %v, want nil", table.Err)
			}
			if table.Location != nil {
				t.Errorf("Location = %v, want nil", table.Location)
			}
			if got := table.Directory(DirImage)["Make"]; got != "Acme" {
				t.Errorf("Make = %v, want Acme", got)
			}
			if len(table.Directory(DirGPS)) == 0 {
				t.Error("GPS directory should still be reported")
			}
		})
	}
}

func TestExtract_NoGPSDirectory(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "exif without gps",
			data: gpsJPEG(imagetest.TIFF{
				IFD0: []imagetest.Entry{imagetest.ASCII(0x010F, "Acme")},
			}),
		},
		{
			name: "jpeg without exif",
			data: imagetest.JPEG(imagetest.Noise(8, 8, 1), 90),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := Extract(tt.data)
			if table.Err != nil {
				t.Fatalf("Extract() Err = %v, want nil", table.Err)
			}
			if table.Location != nil {
				t.Errorf("Location = %v, want nil", table.Location)
			}
			if table.LocationText() != NoLocationMessage {
				t.Errorf("LocationText() = %q, want %q", table.LocationText(), NoLocationMessage)
			}
			for _, dir := range DirectoryNames {
				if table.Directory(dir) == nil {
					t.Errorf("directory %q missing from successful parse", dir)
				}
			}

			data, err := json.Marshal(table)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if strings.Contains(string(data), `"error":`) {
				t.Errorf("JSON %s carries an error key", data)
			}
		})
	}
}

func TestExtract_NonFiniteFloats(t *testing.T) {
	table := Extract(gpsJPEG(imagetest.TIFF{
		IFD0: []imagetest.Entry{
			imagetest.Doubles(0xC000, math.NaN()),
			imagetest.Doubles(0xC001, math.Inf(1), 1.5, math.Inf(-1)),
		},
	}))
	if table.Err != nil {
		t.Fatalf("Extract() Err = %v", table.Err)
	}

	ifd0 := table.Directory(DirImage)
	if ifd0["49152"] != "NaN" {
		t.Errorf("NaN tag = %#v, want \"NaN\"", ifd0["49152"])
	}
	want := []any{"+Inf", 1.5, "-Inf"}
	got, ok := ifd0["49153"].([]any)
	if !ok || len(got) != len(want) {
		t.Fatalf("Inf tag = %#v, want %v", ifd0["49153"], want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Inf tag[%d] = %#v, want %#v", i, got[i], want[i])
		}
	}

	if _, err := json.Marshal(table); err != nil {
		t.Errorf("Marshal() error = %v, want encodable table", err)
	}
}

func TestExtract_TagNamesAndValues(t *testing.T) {
	table := Extract(gpsJPEG(imagetest.TIFF{
		IFD0: []imagetest.Entry{
			imagetest.ASCII(0x010F, "Acme"),
			imagetest.Short(0x0112, 6),
			imagetest.Rationals(0x011A, [2]uint32{72, 1}),
			imagetest.Short(0xC0DE, 7),
		},
		Exif: []imagetest.Entry{
			imagetest.ASCII(0x9003, "2024:12:31 10:30:00"),
			imagetest.Undefined(0x9286, []byte{'h', 'i', 0xff, '!'}),
		},
	}))
	if table.Err != nil {
		t.Fatalf("Extract() Err = %v", table.Err)
	}

	ifd0 := table.Directory(DirImage)
	if ifd0["Make"] != "Acme" {
		t.Errorf("Make = %#v, want %q", ifd0["Make"], "Acme")
	}
	if ifd0["Orientation"] != int64(6) {
		t.Errorf("Orientation = %#v, want int64(6)", ifd0["Orientation"])
	}
	if ifd0["XResolution"] != (Rational{Num: 72, Den: 1}) {
		t.Errorf("XResolution = %#v, want 72/1", ifd0["XResolution"])
	}
	if ifd0["49374"] != int64(7) {
		t.Errorf("unknown tag 0xC0DE = %#v, want int64(7) under key \"49374\"", ifd0["49374"])
	}

	exifDir := table.Directory(DirExif)
	if exifDir["DateTimeOriginal"] != "2024:12:31 10:30:00" {
		t.Errorf("DateTimeOriginal = %#v", exifDir["DateTimeOriginal"])
	}
	if exifDir["UserComment"] != "hi\uFFFD!" {
		t.Errorf("UserComment = %#v, want invalid byte replaced", exifDir["UserComment"])
	}
}

func TestExtract_ParseErrorIsCaptured(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"garbage", []byte("not an image at all")},
		{"png without exif", imagetest.PNG(imagetest.Noise(4, 4, 1))},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := Extract(tt.data)
			if table == nil {
				t.Fatal("Extract() returned nil")
			}
			if table.Err == nil {
				t.Fatal("Extract() Err = nil, want parse error")
			}
			if table.Location != nil {
				t.Errorf("Location = %v, want nil", table.Location)
			}
		})
	}
}

func TestExifTable_MarshalJSON(t *testing.T) {
	t.Run("with coordinate", func(t *testing.T) {
		table := Extract(imagetest.PittsburghJPEG())
		data, err := json.Marshal(table)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		var got map[string]json.RawMessage
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		var coord [2]float64
		if err := json.Unmarshal(got[CoordinatesKey], &coord); err != nil {
			t.Fatalf("%s is not a pair: %s", CoordinatesKey, got[CoordinatesKey])
		}
		if math.Abs(coord[0]-40.4461) > 1e-3 || math.Abs(coord[1]+79.9822) > 1e-3 {
			t.Errorf("coordinate = %v, want ≈ (40.4461, -79.9822)", coord)
		}
		if _, ok := got[ErrorKey]; ok {
			t.Error("unexpected error key on successful parse")
		}
	})

	t.Run("parse failure", func(t *testing.T) {
		data, err := json.Marshal(Extract([]byte("junk")))
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		s := string(data)
		if !strings.Contains(s, `"error":`) {
			t.Errorf("JSON %s missing error key", s)
		}
		if !strings.Contains(s, NoLocationMessage) {
			t.Errorf("JSON %s missing no-location message", s)
		}
	})
}

func TestTagName(t *testing.T) {
	tests := []struct {
		dir  string
		id   uint16
		want string
	}{
		{DirImage, 0x010F, "Make"},
		{DirThumbnail, 0x0201, "JPEGInterchangeFormat"},
		{DirExif, 0x829A, "ExposureTime"},
		{DirGPS, 0x0002, "GPSLatitude"},
		{DirInterop, 0x0001, "InteroperabilityIndex"},
		{DirGPS, 0x010F, "271"},
		{"nowhere", 0x0001, "1"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := TagName(tt.dir, tt.id); got != tt.want {
				t.Errorf("TagName(%q, %#x) = %q, want %q", tt.dir, tt.id, got, tt.want)
			}
		})
	}
}
