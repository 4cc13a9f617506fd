package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fpang/image-inspect/internal/cli"
	"github.com/fpang/image-inspect/internal/fetch"
	"github.com/fpang/image-inspect/internal/forensics"
	"github.com/fpang/image-inspect/internal/logging"
	"github.com/fpang/image-inspect/internal/metrics"
	"github.com/fpang/image-inspect/internal/webui"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 10 * time.Second

// CLI flags
var (
	hostFlag         string
	portFlag         int
	qualityFlag      int
	outputFlag       string
	fetchTimeoutFlag time.Duration
	maxBytesFlag     string
	logLevelFlag     string
	metricsFlag      bool
)

var rootCmd = &cobra.Command{
	Use:   "image-inspect",
	Short: "Image forensics: EXIF, GPS and Error Level Analysis",
	Long: `Image Inspect extracts EXIF metadata and GPS coordinates from an image and
produces an Error Level Analysis (ELA) image that highlights regions with a
different compression history.

Without a subcommand it starts the web UI and an interactive console menu.

Examples:
  image-inspect
  image-inspect --port 8080 --quality 95
  image-inspect serve --host 127.0.0.1
  image-inspect analyze https://example.com/photo.jpg --output ela.png
  image-inspect analyze ./photo.jpg`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              runMain,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web UI only",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <url|path>",
	Short: "Analyze one image and write its ELA to --output",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&hostFlag, "host", "0.0.0.0", "Address the web UI listens on")
	pf.IntVar(&portFlag, "port", 5000, "Port the web UI listens on")
	pf.IntVarP(&qualityFlag, "quality", "q", forensics.DefaultQuality, "JPEG quality used for Error Level Analysis (1-100)")
	pf.StringVarP(&outputFlag, "output", "o", cli.DefaultOutputPath, "File the console writes the ELA image to")
	pf.DurationVar(&fetchTimeoutFlag, "fetch-timeout", fetch.DefaultTimeout, "Timeout for downloading an image URL")
	pf.StringVar(&maxBytesFlag, "max-bytes", "32MiB", "Largest accepted image download or upload")
	pf.StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error (default from "+logging.LevelEnv+")")
	pf.BoolVar(&metricsFlag, "metrics", false, "Emit embedded-metric-format lines to stderr")

	rootCmd.AddCommand(serveCmd, analyzeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// maxBytes is the parsed value of --max-bytes.
var maxBytes int64

func setup(cmd *cobra.Command, args []string) error {
	logging.Init(os.Stderr, logLevelFlag)
	if metricsFlag {
		metrics.SetOutput(os.Stderr)
	}

	if qualityFlag < 1 || qualityFlag > 100 {
		return fmt.Errorf("--quality %d: %w", qualityFlag, forensics.ErrInvalidQuality)
	}
	n, err := humanize.ParseBytes(maxBytesFlag)
	if err != nil || n == 0 {
		return fmt.Errorf("invalid --max-bytes %q", maxBytesFlag)
	}
	maxBytes = int64(n)
	return nil
}

func newFetcher() *fetch.Client {
	return fetch.NewClient(fetch.WithTimeout(fetchTimeoutFlag), fetch.WithMaxBytes(maxBytes))
}

func logStartup(command string, console bool) {
	logging.NewStartupLogger("image-inspect").
		Version(version).
		Listener("http", listenAddr()).
		Feature("console", console).
		Feature("metrics", metricsFlag).
		Config("command", command).
		Config("quality", strconv.Itoa(qualityFlag)).
		Config("fetchTimeout", fetchTimeoutFlag.String()).
		Config("maxBytes", humanize.IBytes(uint64(maxBytes))).
		Log()
}

func listenAddr() string {
	return net.JoinHostPort(hostFlag, strconv.Itoa(portFlag))
}

// browserURL is the address a local browser should use for the web UI.
func browserURL() string {
	host := hostFlag
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(portFlag)) + "/"
}

// startServer binds the listener synchronously so a bind failure is reported
// before anything else starts. The returned channel yields the serve error.
func startServer(fetcher *fetch.Client) (*http.Server, <-chan error, error) {
	srv := webui.New(fetcher,
		webui.WithQuality(qualityFlag),
		webui.WithMaxBytes(maxBytes),
	).NewHTTPServer(listenAddr())

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info().Str("addr", srv.Addr).Msg("Web UI listening")
	return srv, errCh, nil
}

func shutdown(srv *http.Server) error {
	log.Info().Msg("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// runMain runs the web UI and the console menu side by side. Quitting the
// menu, EOF on stdin, or a signal shuts the listener down.
func runMain(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher := newFetcher()
	srv, serveErr, err := startServer(fetcher)
	if err != nil {
		return err
	}
	logStartup("menu", true)
	fmt.Printf("\n  Image Inspect web UI: %s\n", browserURL())

	menu := cli.NewMenu(cli.Config{
		In:         os.Stdin,
		Out:        os.Stdout,
		Fetcher:    fetcher,
		Quality:    qualityFlag,
		OutputPath: outputFlag,
		WebURL:     browserURL(),
	})
	menuDone := make(chan error, 1)
	go func() {
		menuDone <- menu.Run(ctx)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case err := <-menuDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("Console stopped")
		}
	case <-ctx.Done():
	}

	return shutdown(srv)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, serveErr, err := startServer(newFetcher())
	if err != nil {
		return err
	}
	logStartup("serve", false)
	fmt.Printf("\n  Image Inspect web UI: %s\n\n", browserURL())

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}
	return shutdown(srv)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	report, err := cli.Analyze(cmd.Context(), newFetcher(), args[0], qualityFlag)
	if err != nil {
		return err
	}
	saved, err := cli.SaveELA(outputFlag, report.ELA)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Saved ELA image to: %s\n", saved)
	cli.PrintReport(out, report)
	return nil
}
