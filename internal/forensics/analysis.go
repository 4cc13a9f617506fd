// Package forensics implements the image inspection core: basic format
// metadata, EXIF/GPS extraction and Error Level Analysis.
//
// Every function here is a pure transformation of the input bytes. Nothing is
// cached or shared between calls, so callers may run analyses concurrently.
package forensics

import (
	"time"

	"github.com/fpang/image-inspect/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Options describe where an image came from and how to analyze it.
type Options struct {
	// Quality is the JPEG quality factor for ELA. Zero means DefaultQuality.
	Quality  int
	Source   string
	Filename string
}

// Report is the merged output of one analysis.
type Report struct {
	Info     ImageInfo
	Exif     *ExifTable
	ELA      []byte
	Duration time.Duration
}

// Analyze runs the describe, EXIF and ELA steps over the same bytes.
//
// Undecodable input fails with a *DecodeError. EXIF problems never fail the
// analysis; they are carried inside Report.Exif.
func Analyze(data []byte, opts Options) (*Report, error) {
	start := time.Now()
	quality := opts.Quality
	if quality == 0 {
		quality = DefaultQuality
	}

	info, err := DescribeImage(data)
	if err != nil {
		return nil, err
	}
	info.Source = opts.Source
	info.Filename = opts.Filename

	table := Extract(data)

	ela, err := GenerateELA(data, quality)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Info:     info,
		Exif:     table,
		ELA:      ela,
		Duration: time.Since(start),
	}

	log.Info().
		Str("format", info.Format).
		Str("size", info.Size()).
		Int64("input_bytes", info.Bytes).
		Int("ela_bytes", len(ela)).
		Bool("has_gps", table.Location != nil).
		Bool("exif_error", table.Err != nil).
		Dur("duration", report.Duration).
		Msg("Image analysis complete")

	metrics.New(metrics.Namespace).
		Dimension("Format", info.Format).
		Metric("AnalysisLatencyMs", float64(report.Duration.Milliseconds()), metrics.UnitMilliseconds).
		Metric("InputBytes", float64(info.Bytes), metrics.UnitBytes).
		Metric("ElaBytes", float64(len(ela)), metrics.UnitBytes).
		Property("HasGPS", table.Location != nil).
		Flush()

	return report, nil
}
