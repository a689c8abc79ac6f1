// Command carescribe is the main entry point for the CareScribe server: it
// turns recorded care-management conversations into structured care-plan
// reports.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/carescribe/carescribe/internal/api"
	"github.com/carescribe/carescribe/internal/clientstore"
	"github.com/carescribe/carescribe/internal/config"
	"github.com/carescribe/carescribe/internal/extract"
	extractanyllm "github.com/carescribe/carescribe/internal/extract/anyllm"
	extractopenai "github.com/carescribe/carescribe/internal/extract/openai"
	"github.com/carescribe/carescribe/internal/health"
	"github.com/carescribe/carescribe/internal/observe"
	"github.com/carescribe/carescribe/internal/pipeline"
	"github.com/carescribe/carescribe/internal/reportstore"
	"github.com/carescribe/carescribe/internal/resolve"
	"github.com/carescribe/carescribe/internal/transcriptstore"
	"github.com/carescribe/carescribe/pkg/provider/stt"
	sttopenai "github.com/carescribe/carescribe/pkg/provider/stt/openai"
	"github.com/carescribe/carescribe/pkg/provider/stt/whisper"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "carescribe: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "carescribe: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("carescribe starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "carescribe",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Database ──────────────────────────────────────────────────────────────
	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		slog.Error("failed to create database pool", "err", err)
		return 1
	}
	defer pool.Close()

	transcripts := transcriptstore.NewPostgresStore(pool)
	clients := clientstore.NewPostgresStore(pool)
	reports := reportstore.NewPostgresStore(pool)

	for name, migrate := range map[string]func(context.Context) error{
		"transcriptions":    transcripts.Migrate,
		"clients":           clients.Migrate,
		"care_plan_reports": reports.Migrate,
	} {
		if err := migrate(ctx); err != nil {
			slog.Error("schema migration failed", "table", name, "err", err)
			return 1
		}
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	transcriber, extractor, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	resolver := resolve.New(clients)

	var pipeOpts []pipeline.Option
	if cfg.Pipeline.Language != "" {
		pipeOpts = append(pipeOpts, pipeline.WithLanguage(cfg.Pipeline.Language))
	}
	if cfg.Pipeline.TranscribeTimeoutSec > 0 {
		pipeOpts = append(pipeOpts, pipeline.WithTranscribeTimeout(time.Duration(cfg.Pipeline.TranscribeTimeoutSec)*time.Second))
	}
	if cfg.Pipeline.ExtractTimeoutSec > 0 {
		pipeOpts = append(pipeOpts, pipeline.WithExtractTimeout(time.Duration(cfg.Pipeline.ExtractTimeoutSec)*time.Second))
	}
	pipe := pipeline.New(transcriber, extractor, resolver, transcripts, reports, pipeOpts...)

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.NewHandler(pipe, transcripts, reports, clients, logger)
	healthHandler := health.New(health.Database(pool))
	router := api.NewRouter(handler, healthHandler, nil, logger)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           router.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyLLMExtractors lists the extraction backends served through the shared
// any-llm client.
var anyLLMExtractors = []string{"gemini", "anthropic", "ollama", "deepseek", "mistral", "groq"}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		return sttopenai.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Extractors ────────────────────────────────────────────────────────────

	reg.RegisterExtractor("openai", func(entry config.ProviderEntry) (extract.Extractor, error) {
		var opts []extractopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, extractopenai.WithBaseURL(entry.BaseURL))
		}
		return extractopenai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range anyLLMExtractors {
		reg.RegisterExtractor(providerName, func(entry config.ProviderEntry) (extract.Extractor, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return extractanyllm.New(providerName, entry.Model, opts...)
		})
	}
}

// buildProviders instantiates the providers named in cfg. The extractor is
// required; STT is optional and nil when not configured (text-only mode).
func buildProviders(cfg *config.Config, reg *config.Registry) (stt.Transcriber, extract.Extractor, error) {
	var transcriber stt.Transcriber
	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		transcriber = p
		slog.Info("provider created", "kind", "stt", "name", name, "model", cfg.Providers.STT.Model)
	} else {
		slog.Warn("no stt provider configured — audio uploads will be rejected")
	}

	extractor, err := reg.CreateExtractor(cfg.Providers.Extractor)
	if err != nil {
		return nil, nil, fmt.Errorf("create extractor provider %q: %w", cfg.Providers.Extractor.Name, err)
	}
	slog.Info("provider created", "kind", "extractor", "name", cfg.Providers.Extractor.Name, "model", cfg.Providers.Extractor.Model)

	return transcriber, extractor, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
