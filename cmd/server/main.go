package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devadigapratham/pandaprint/api"
	"github.com/devadigapratham/pandaprint/bambu"
	"github.com/devadigapratham/pandaprint/bridge"
	"github.com/devadigapratham/pandaprint/config"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Parse command line flags
	flags := config.ParseFlags()

	if flags.ExampleConfig {
		example, err := config.Example()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render example config: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(example)
		return
	}

	// Load the config file
	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		if config.IsConfigError(err) {
			fmt.Fprintf(os.Stderr, "Invalid config file %s: %v\n", flags.ConfigFile, err)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel, flags.Pretty)

	// Create the bridge with one session per printer
	registry := bridge.NewStaticRegistry(cfg.Printers)
	dialer := bambu.NewPahoDialer(cfg.MQTTPort)
	uploader := bambu.NewFTPSUploader(cfg.FTPSPort, cfg.UploadTimeout, log)
	b := bridge.New(registry, dialer, uploader, bambu.SessionConfig{MaxBackoff: cfg.MaxBackoff}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)

	// Setup HTTP router
	gin.SetMode(gin.ReleaseMode)
	router := api.SetupRouter(b, log)

	// Start HTTP server
	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	// Handle shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Error shutting down HTTP server")
	}

	// Disconnect from the printers
	b.Stop()

	log.Info().Msg("Shutdown complete")
}

func newLogger(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var log zerolog.Logger
	if pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(lvl).With().Timestamp().Logger()
}
