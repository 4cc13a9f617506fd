package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fpang/image-inspect/internal/forensics"
)

// maxValueWidth caps how much of a single tag value is printed.
const maxValueWidth = 96

// PrintReport writes the image info, location and EXIF directories of report.
func PrintReport(w io.Writer, report *forensics.Report) {
	info := report.Info

	fmt.Fprintln(w, sectionStyle.Render("Image"))
	field(w, "Source", firstNonEmpty(info.Source, info.Filename))
	field(w, "Format", info.Format)
	field(w, "Size", info.Size())
	field(w, "Mode", info.Mode)
	field(w, "Bytes", humanize.IBytes(uint64(max(info.Bytes, 0))))
	if c := info.Capture; c != nil {
		field(w, "Camera", strings.TrimSpace(c.CameraMake+" "+c.CameraModel))
		if !c.DateTaken.IsZero() {
			field(w, "Taken", c.DateTaken.Format("2006-01-02 15:04:05"))
		}
	}
	field(w, "Location", report.Exif.LocationText())
	field(w, "Analyzed in", report.Duration.Round(time.Millisecond).String())

	fmt.Fprintln(w)
	fmt.Fprintln(w, sectionStyle.Render("EXIF"))
	if report.Exif.Err != nil {
		fmt.Fprintf(w, "  %s %v\n", errorStyle.Render("error:"), report.Exif.Err)
		return
	}
	for _, dir := range forensics.DirectoryNames {
		tags := report.Exif.Directory(dir)
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("["+dir+"]"), dimStyle.Render(fmt.Sprintf("%d tags", len(tags))))
		keys := make([]string, 0, len(tags))
		for k := range tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "    %s: %s\n", k, formatValue(tags[k]))
		}
	}
}

func field(w io.Writer, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(w, "  %s %s\n", labelStyle.Render(label+":"), value)
}

func formatValue(v any) string {
	s := fmt.Sprint(v)
	if r := []rune(s); len(r) > maxValueWidth {
		s = string(r[:maxValueWidth]) + "…"
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
