package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/woozymasta/diarymap/internal/api"
	"github.com/woozymasta/diarymap/internal/config"
	"github.com/woozymasta/diarymap/internal/icon"
	"github.com/woozymasta/diarymap/internal/logger"
	"github.com/woozymasta/diarymap/internal/processor"
	"github.com/woozymasta/diarymap/internal/viewport"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile  string   `short:"c" long:"config"      env:"CONFIG_FILE" description:"Path to configuration file"        default:"config.yaml"`
	Limit       []string `short:"l" long:"limit"       env:"LIMIT_NAMES" description:"Limit processing to specific area names"`
	OutDir      string   `short:"o" long:"out"         env:"OUT_DIR"     description:"Output directory"                  default:"areas"`
	Concurrency int      `short:"p" long:"concurrency" env:"CONCURRENCY" description:"Icon rendering concurrency (default icons.concurrency)"`
	NoIcons     bool     `short:"n" long:"no-icons"    description:"Skip icon warming"`
	Force       bool     `short:"f" long:"force"       description:"Force overwrite of existing files"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := api.NewHTTPClient(cfg.Backend)
	client, err := api.New(api.Options{
		HTTPClient:      httpClient,
		BaseURL:         cfg.Backend.BaseURL,
		BreakerFailures: cfg.Backend.BreakerFailures,
		BreakerTimeout:  cfg.Backend.BreakerTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create backend client")
	}

	var icons viewport.IconResolver
	if !opts.NoIcons {
		icons = icon.NewResolver(icon.ResolverOptions{
			HTTPClient:      httpClient,
			PinWidth:        cfg.Icons.PinWidth,
			Quality:         cfg.Icons.Quality,
			RenderTimeout:   cfg.Icons.RenderTimeout,
			MaxSourceBytes:  cfg.Icons.MaxSourceBytes,
			MaxSourcePixels: cfg.Icons.MaxSourcePixels,
		})
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = cfg.Icons.Concurrency
	}

	areas := processor.SelectAreas(cfg.Areas, opts.Limit)

	log.Info().
		Int("areas_total", len(cfg.Areas)).
		Int("areas_queued", len(areas)).
		Bool("icons", icons != nil).
		Msg("Starting loader")

	popts := processor.Options{
		Thresholds: icon.Thresholds{
			Medium: cfg.Icons.ClusterMedium,
			Large:  cfg.Icons.ClusterLarge,
		},
		OutDir:        opts.OutDir,
		ZoomThreshold: cfg.Viewport.ZoomThreshold,
		Concurrency:   opts.Concurrency,
		Force:         opts.Force,
	}

	failed := 0
	for _, area := range areas {
		if ctx.Err() != nil {
			break
		}

		res, err := processor.ProcessArea(ctx, client, icons, area, popts)
		if err != nil {
			failed++
			log.Error().Err(err).Str("area", area.Name).Msg("Failed to process area")
			continue
		}
		if res.Skipped {
			continue
		}

		log.Info().
			Str("area", area.Name).
			Str("mode", string(res.Mode)).
			Int("markers", res.Markers).
			Int("icons", res.Icons).
			Str("path", res.Path).
			Msg("Area written")
	}

	if failed > 0 {
		log.Fatal().Int("failed", failed).Msg("Loader finished with errors")
	}
	log.Info().Msg("Loader finished successfully")
}
