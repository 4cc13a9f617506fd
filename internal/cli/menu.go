// Package cli implements the interactive console for image-inspect.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fpang/image-inspect/internal/forensics"
	"github.com/rs/zerolog/log"
)

// DefaultOutputPath is where console analyses write the ELA image.
const DefaultOutputPath = "ela_console.png"

// Fetcher downloads the bytes behind an image URL.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Config wires a Menu to its input, output and collaborators. Nil function
// fields fall back to OpenBrowser and PickImageFile.
type Config struct {
	In          io.Reader
	Out         io.Writer
	Fetcher     Fetcher
	Quality     int
	OutputPath  string
	WebURL      string
	OpenBrowser func(url string) error
	PickFile    func() (string, error)
}

// Menu is the numbered console menu.
type Menu struct {
	in          *bufio.Reader
	out         io.Writer
	fetcher     Fetcher
	quality     int
	outputPath  string
	webURL      string
	openBrowser func(string) error
	pickFile    func() (string, error)
}

// NewMenu creates a Menu from cfg.
func NewMenu(cfg Config) *Menu {
	m := &Menu{
		in:          bufio.NewReader(cfg.In),
		out:         cfg.Out,
		fetcher:     cfg.Fetcher,
		quality:     cfg.Quality,
		outputPath:  cfg.OutputPath,
		webURL:      cfg.WebURL,
		openBrowser: cfg.OpenBrowser,
		pickFile:    cfg.PickFile,
	}
	if m.quality == 0 {
		m.quality = forensics.DefaultQuality
	}
	if m.outputPath == "" {
		m.outputPath = DefaultOutputPath
	}
	if m.openBrowser == nil {
		m.openBrowser = OpenBrowser
	}
	if m.pickFile == nil {
		m.pickFile = PickImageFile
	}
	return m
}

// Run shows the menu until the user quits, stdin reaches EOF, or ctx is
// canceled. Failed actions print a message and return to the menu.
func (m *Menu) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		m.printMenu()
		choice, err := prompt(m.in, m.out, "Select option: ")
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(m.out)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read menu choice: %w", err)
		}

		switch choice {
		case "1":
			m.analyzeLink(ctx)
		case "2":
			m.analyzeFile(ctx)
		case "3":
			m.openWebUI()
		case "4":
			fmt.Fprintln(m.out, dimStyle.Render("Goodbye."))
			return nil
		default:
			m.fail("Invalid option")
		}
	}
}

func (m *Menu) printMenu() {
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, titleStyle.Render("IMAGE INSPECT"))
	fmt.Fprintln(m.out, divider)
	fmt.Fprintln(m.out, "1] Analyze by Link")
	fmt.Fprintln(m.out, "2] Analyze by File")
	fmt.Fprintln(m.out, "3] Open Web UI")
	fmt.Fprintln(m.out, "4] Quit")
}

func (m *Menu) analyzeLink(ctx context.Context) {
	url, err := prompt(m.in, m.out, "Image URL: ")
	if err != nil || url == "" {
		m.fail("URL empty")
		return
	}
	m.run(ctx, url)
}

func (m *Menu) analyzeFile(ctx context.Context) {
	path, err := prompt(m.in, m.out, "Image path (blank to browse): ")
	if err != nil {
		if !errors.Is(err, io.EOF) {
			m.fail(err.Error())
		}
		return
	}
	if path == "" {
		path, err = m.pickFile()
		if errors.Is(err, ErrNoSelection) {
			fmt.Fprintln(m.out, dimStyle.Render("No file selected."))
			return
		}
		if err != nil {
			m.fail(fmt.Sprintf("File picker unavailable: %v", err))
			return
		}
	}
	m.run(ctx, path)
}

func (m *Menu) run(ctx context.Context, input string) {
	report, err := Analyze(ctx, m.fetcher, input, m.quality)
	if err != nil {
		log.Debug().Err(err).Str("input", input).Msg("Console analysis failed")
		m.fail(err.Error())
		return
	}

	saved, err := SaveELA(m.outputPath, report.ELA)
	if err != nil {
		m.fail(err.Error())
		return
	}

	fmt.Fprintln(m.out)
	fmt.Fprintf(m.out, "%s %s\n", labelStyle.Render("Saved ELA image to:"), saved)
	PrintReport(m.out, report)
}

func (m *Menu) openWebUI() {
	if err := m.openBrowser(m.webURL); err != nil {
		m.fail(fmt.Sprintf("Could not open browser: %v", err))
		fmt.Fprintf(m.out, "Open %s manually.\n", m.webURL)
		return
	}
	fmt.Fprintf(m.out, "Opened %s\n", m.webURL)
}

func (m *Menu) fail(msg string) {
	fmt.Fprintln(m.out, errorStyle.Render(msg))
}

// Analyze runs a full analysis of input, which is either an http(s) URL
// fetched through f or a local file path.
func Analyze(ctx context.Context, f Fetcher, input string, quality int) (*forensics.Report, error) {
	if IsURL(input) {
		data, err := f.Get(ctx, input)
		if err != nil {
			return nil, err
		}
		return forensics.Analyze(data, forensics.Options{Quality: quality, Source: input})
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return forensics.Analyze(data, forensics.Options{Quality: quality, Filename: filepath.Base(input)})
}

// IsURL reports whether input should be fetched rather than read from disk.
func IsURL(input string) bool {
	lower := strings.ToLower(input)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// SaveELA writes png to path, replacing any previous output, and returns
// the absolute path written.
func SaveELA(path string, png []byte) (string, error) {
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("save ELA image: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}
