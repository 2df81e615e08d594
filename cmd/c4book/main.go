package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/domino14/connect4/book"
	"github.com/domino14/connect4/bookgen"
	"github.com/domino14/connect4/config"
)

const (
	flagDepth = "depth"
	flagOut   = "out"
	flagRoot  = "root"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  c4book generate --depth D --out FILE [--root MOVES] [--staging-db DB] [--threads N]
  c4book info FILE`)
}

func setupLogging(cfg *config.Config) {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	output.FormatLevel = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
	}
	var logger zerolog.Logger
	if cfg.GetBool(config.ConfigDebug) {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		logger = zerolog.New(output).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		logger = zerolog.New(output).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	}
	log.Logger = logger
}

func generate(args []string) error {
	cfg := &config.Config{}
	err := cfg.LoadWithFlags(args, func(fs *pflag.FlagSet) {
		fs.Int(flagDepth, 12, "solve every position with at most this many moves")
		fs.String(flagOut, "7x6.book", "book file to write")
		fs.String(flagRoot, "", "only enumerate positions reached from this move sequence")
	})
	if err != nil {
		return err
	}
	setupLogging(cfg)
	// the book being built is the only book.
	cfg.Set(config.ConfigBookPath, "")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cfg.GetString(flagOut)
	tmp := out + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)
	w := bufio.NewWriter(f)

	opts := bookgen.OptionsFromConfig(cfg, cfg.GetInt(flagDepth), cfg.GetString(flagRoot))
	start := time.Now()
	report, err := bookgen.Generate(ctx, cfg, opts, w)
	if err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, out); err != nil {
		return err
	}
	log.Info().Str("out", out).Int("positions", report.Written).Int("solved", report.Solved).
		Int("reused", report.Reused).Float64("mean-nodes", report.Nodes.Mean()).
		Dur("elapsed", time.Since(start)).Msg("generated-book")
	return nil
}

type bookInfo struct {
	Path    string      `yaml:"path"`
	Header  book.Header `yaml:"header"`
	Entries uint64      `yaml:"slots"`
}

func info(args []string) error {
	if len(args) != 1 {
		usage()
		return fmt.Errorf("info needs a book file")
	}
	b, err := book.Load(args[0])
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	return enc.Encode(bookInfo{Path: args[0], Header: b.Header(), Entries: b.Slots()})
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "generate":
		err = generate(os.Args[2:])
	case "info":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
		err = info(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
