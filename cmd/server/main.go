package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/woozymasta/diarymap/internal/api"
	"github.com/woozymasta/diarymap/internal/config"
	"github.com/woozymasta/diarymap/internal/geolocate"
	"github.com/woozymasta/diarymap/internal/icon"
	"github.com/woozymasta/diarymap/internal/logger"
	"github.com/woozymasta/diarymap/internal/metrics"
	"github.com/woozymasta/diarymap/internal/server"
	"github.com/woozymasta/diarymap/internal/viewport"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile    string `short:"c" long:"config"         env:"CONFIG_FILE"    description:"Path to configuration file"            default:"config.yaml"`
	Addr          string `short:"a" long:"addr"           env:"LISTEN_ADDRESS" description:"Address to listen on"                  default:"0.0.0.0"`
	Port          int    `short:"p" long:"port"           env:"LISTEN_PORT"    description:"Port to listen on"                     default:"8080"`
	ZoomThreshold int    `short:"z" long:"zoom-threshold" env:"ZOOM_THRESHOLD" description:"Override clustered/individual zoom boundary"`
	NoLocation    bool   `short:"L" long:"no-location"    env:"NO_LOCATION"    description:"Disable the current location and route preview"`
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

	// Setup Logging
	opts.Logger.Setup()

	// Load Config
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if opts.ZoomThreshold > 0 {
		cfg.Viewport.ZoomThreshold = opts.ZoomThreshold
	}
	if opts.NoLocation {
		cfg.Location.Disabled = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration override")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	httpClient := api.NewHTTPClient(cfg.Backend)

	client, err := api.New(api.Options{
		HTTPClient:      httpClient,
		Session:         api.NewSession(""),
		Metrics:         m,
		BaseURL:         cfg.Backend.BaseURL,
		BreakerFailures: cfg.Backend.BreakerFailures,
		BreakerTimeout:  cfg.Backend.BreakerTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create backend client")
	}

	resolver := icon.NewResolver(icon.ResolverOptions{
		HTTPClient:      httpClient,
		Metrics:         m,
		PinWidth:        cfg.Icons.PinWidth,
		Quality:         cfg.Icons.Quality,
		RenderTimeout:   cfg.Icons.RenderTimeout,
		MaxSourceBytes:  cfg.Icons.MaxSourceBytes,
		MaxSourcePixels: cfg.Icons.MaxSourcePixels,
	})

	vopts := viewport.OptionsFromConfig(cfg)
	vopts.Fetcher = client
	vopts.Icons = resolver
	vopts.Locator = geolocate.FromConfig(cfg.Location)
	vopts.Metrics = m

	ctl := viewport.New(vopts)
	defer ctl.Close()
	ctl.Mount(ctx)

	srvCtx := server.NewServerContext(cfg, ctl, m)
	handler := server.RequestLogger(srvCtx.Routes(), m)

	listenAddr := fmt.Sprintf("%s:%d", opts.Addr, opts.Port)
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", listenAddr).
			Str("backend", cfg.Backend.BaseURL).
			Int("zoom_threshold", cfg.Viewport.ZoomThreshold).
			Dur("throttle", cfg.Viewport.Throttle).
			Dur("debounce", cfg.Viewport.Debounce).
			Msg("Web server started")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	log.Info().Msg("Server stopped")
}
