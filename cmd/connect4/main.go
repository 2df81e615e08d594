package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/domino14/connect4/config"
	"github.com/domino14/connect4/shell"
	"github.com/domino14/connect4/solver"
)

var (
	GitVersion string
)

//go:embed connect4.txt
var connect4banner string

func setupLogging(cfg *config.Config) {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	output.FormatLevel = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
	}
	output.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("%s", i)
	}
	output.FormatFieldName = func(i interface{}) string {
		return fmt.Sprintf("%s:", i)
	}

	var logger zerolog.Logger
	if cfg.GetBool(config.ConfigDebug) {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		logger = zerolog.New(output).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		logger = zerolog.New(output).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	}
	zerolog.DefaultContextLogger = &logger
	log.Logger = logger
	logger.Debug().Msg("Debug logging is on")
}

func main() {
	cfg := &config.Config{}
	if err := cfg.Load(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	setupLogging(cfg)
	log.Debug().Msgf("Loaded config: %v", cfg.SanitizedSettings())

	if cfg.GetString(config.ConfigCPUProfile) != "" {
		f, err := os.Create(cfg.GetString(config.ConfigCPUProfile))
		if err != nil {
			panic("could not create CPU profile: " + err.Error())
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			panic("could not start CPU profile: " + err.Error())
		}
		defer pprof.StopCPUProfile()
	}

	pool, err := solver.NewPool(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("creating-solver")
	}

	if cfg.GetBool(config.ConfigBatch) {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := shell.RunBatch(ctx, cfg, pool, os.Stdin, os.Stdout, os.Stderr); err != nil {
			log.Error().Err(err).Msg("batch-failed")
		}
		return
	}

	fmt.Println(connect4banner)
	fmt.Println(GitVersion)

	sc, err := shell.NewShellController(cfg, pool)
	if err != nil {
		log.Fatal().Err(err).Msg("creating-shell")
	}

	quit := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for range sig {
			// the first interrupt only stops a running search.
			if sc.CancelSearch() {
				continue
			}
			log.Info().Msg("got quit signal...")
			close(quit)
			return
		}
	}()

	if line := strings.TrimSpace(strings.Join(cfg.Args(), " ")); line != "" {
		sc.Execute(line)
		return
	}
	go sc.Loop(sig)
	<-quit
	log.Info().Msg("bye")
}
