// lutumd is the research backend: a loopback HTTP server driving the
// deep-research, academic and ask pipelines against a SearxNG instance and a
// headless browser.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lutumlabs/lutum/internal/ask"
	"github.com/lutumlabs/lutum/internal/checkpoint"
	"github.com/lutumlabs/lutum/internal/events"
	"github.com/lutumlabs/lutum/internal/export"
	"github.com/lutumlabs/lutum/internal/httpapi"
	"github.com/lutumlabs/lutum/internal/logbuf"
	"github.com/lutumlabs/lutum/internal/research"
	"github.com/lutumlabs/lutum/internal/scrape"
	"github.com/lutumlabs/lutum/internal/search"
)

const defaultListen = "127.0.0.1:8420"

func main() {
	// .env is a convenience for local runs; absence is not an error.
	_ = godotenv.Load()
	normalizeProxyEnv()

	var (
		listen       string
		configPath   string
		searxURL     string
		searxKey     string
		searxUA      string
		fileSearch   string
		scraper      string
		checkpoints  string
		exports      string
		exportPDF    bool
		allowPrivate bool
		verbose      bool
	)
	flag.StringVar(&listen, "listen", "", "Listen address (default 127.0.0.1:8420)")
	flag.StringVar(&configPath, "config", os.Getenv("LUTUM_CONFIG"), "Path to optional YAML config file")
	flag.StringVar(&searxURL, "searx.url", os.Getenv("SEARX_URL"), "SearxNG base URL")
	flag.StringVar(&searxKey, "searx.key", os.Getenv("SEARX_KEY"), "SearxNG API key (optional)")
	flag.StringVar(&searxUA, "searx.ua", "", "Custom User-Agent for SearxNG requests")
	flag.StringVar(&fileSearch, "search.file", os.Getenv("SEARCH_FILE"), "Path to JSON file for the offline search provider")
	flag.StringVar(&scraper, "scraper", "", "Scraper backend: rod (headless browser) or http")
	flag.StringVar(&checkpoints, "dirs.checkpoints", os.Getenv("LUTUM_CHECKPOINT_DIR"), "Checkpoint root directory")
	flag.StringVar(&exports, "dirs.exports", os.Getenv("LUTUM_EXPORT_DIR"), "Backup and journal root directory")
	flag.BoolVar(&exportPDF, "export.pdf", false, "Additionally render synthesis backups as PDF")
	flag.BoolVar(&allowPrivate, "allow-private", false, "Allow scraping private/loopback addresses (local fixtures only)")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	fc, err := loadFileConfig(configPath)
	if err != nil {
		log.Fatal().Str("path", configPath).Err(err).Msg("config file unreadable")
	}
	listen = fallback(listen, os.Getenv("LUTUM_LISTEN"), fc.Listen, defaultListen)
	searxURL = fallback(searxURL, fc.Searx.URL)
	searxKey = fallback(searxKey, fc.Searx.Key)
	searxUA = fallback(searxUA, fc.Searx.UA, "lutum/1.0")
	fileSearch = fallback(fileSearch, fc.Search.File)
	scraper = fallback(scraper, os.Getenv("LUTUM_SCRAPER"), fc.Scraper, "rod")
	checkpoints = fallback(checkpoints, fc.Dirs.Checkpoints, "research_checkpoints")
	exports = fallback(exports, fc.Dirs.Exports, ".")
	exportPDF = exportPDF || fc.Export.PDF
	allowPrivate = allowPrivate || fc.AllowPrivate
	verbose = verbose || fc.Verbose

	buffer := logbuf.New()
	setupLogging(verbose, buffer)

	var provider search.Provider
	switch {
	case fileSearch != "":
		provider = &search.FileProvider{Path: fileSearch}
	case searxURL != "":
		provider = &search.SearxNG{BaseURL: searxURL, APIKey: searxKey, UserAgent: searxUA}
	default:
		log.Fatal().Msg("no search provider: set -searx.url or -search.file")
	}

	var navigator scrape.NavigatorFactory
	switch scraper {
	case "rod":
		navigator = scrape.NewRodNavigator
	case "http":
		navigator = func() (scrape.Navigator, error) { return scrape.NewHTTPNavigator(), nil }
	default:
		log.Fatal().Str("scraper", scraper).Msg("unknown scraper backend")
	}

	bus := events.NewBus()
	store := &checkpoint.Store{Root: checkpoints}
	writer := &export.Writer{Root: exports, PDF: exportPDF}

	engine := &research.Engine{
		Bus:            bus,
		Checkpoints:    store,
		Export:         writer,
		LogBuffer:      buffer,
		SearchProvider: provider,
		NewNavigator:   navigator,
		AllowPrivate:   allowPrivate,
	}
	askSvc := &ask.Service{
		Bus:            bus,
		Export:         writer,
		LogBuffer:      buffer,
		SearchProvider: provider,
		NewNavigator:   navigator,
		AllowPrivate:   allowPrivate,
	}
	api := &httpapi.Server{
		Engine:       engine,
		Ask:          askSvc,
		Bus:          bus,
		Checkpoints:  store,
		NewNavigator: navigator,
	}

	srv := &http.Server{
		Addr:              listen,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("listen", listen).Str("search", provider.Name()).Str("scraper", scraper).Msg("lutumd up")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown incomplete")
	}
}

// setupLogging wires the console writer, the optional file sink, and the
// ring buffer hook that feeds log envelopes into event streams.
func setupLogging(verbose bool, buffer *logbuf.Buffer) {
	zerolog.TimeFieldFormat = time.RFC3339
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	var sink io.Writer = console
	if disabled, _ := strconv.ParseBool(os.Getenv("LUTUM_DISABLE_LOG_FILE")); !disabled {
		if f := openLogFile(); f != nil {
			sink = zerolog.MultiLevelWriter(console, f)
		}
	}
	log.Logger = zerolog.New(sink).With().Timestamp().Logger().Hook(buffer)

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// openLogFile opens the append-only log sink under LUTUM_LOG_DIR (default
// "logs"), named LUTUM_LOG_FILE or lutumd.log. Failure disables the file
// sink, it never blocks startup.
func openLogFile() *os.File {
	dir := fallback(os.Getenv("LUTUM_LOG_DIR"), "logs")
	name := fallback(os.Getenv("LUTUM_LOG_FILE"), "lutumd.log")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn().Str("dir", dir).Err(err).Msg("log dir not writable, console only")
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Warn().Str("file", name).Err(err).Msg("log file not writable, console only")
		return nil
	}
	return f
}
