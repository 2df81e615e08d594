package bookgen

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/domino14/connect4/book"
	"github.com/domino14/connect4/config"
	"github.com/domino14/connect4/position"
	"github.com/domino14/connect4/solver"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	os.Exit(m.Run())
}

// four rows of a game that never makes four in a row.
var lateRoot = strings.Repeat("1324576", 4)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Set(config.ConfigBookPath, "")
	cfg.Set(config.ConfigTTLogSize, 18)
	cfg.Set(config.ConfigThreads, 2)
	return cfg
}

func TestEnumerate(t *testing.T) {
	is := is.New(t)
	ps := enumerate(position.New(), 1)
	// the empty board and four first moves up to symmetry.
	is.Equal(len(ps), 5)

	root, _ := position.FromSequence(lateRoot)
	seen := map[uint64]bool{}
	for _, p := range enumerate(root, root.NbMoves()+2) {
		is.True(!seen[p.Key3()])
		seen[p.Key3()] = true
		is.True(!p.CanWinNext())
		is.Equal(p.IsEnd(), position.Ongoing)
		is.True(p.NbMoves() <= root.NbMoves()+2)
	}
}

func TestGenerate(t *testing.T) {
	is := is.New(t)
	cfg := testConfig()
	depth := len(lateRoot) + 2
	opts := OptionsFromConfig(cfg, depth, lateRoot)
	opts.StagingDB = filepath.Join(t.TempDir(), "staging.db")

	var buf bytes.Buffer
	report, err := Generate(context.Background(), cfg, opts, &buf)
	is.NoErr(err)
	is.True(report.Enumerated > 1)
	is.Equal(report.Solved, report.Enumerated)
	is.Equal(report.Reused, 0)
	is.Equal(report.Written, report.Enumerated)
	is.Equal(report.Nodes.Iterations(), report.Solved)
	is.Equal(report.Header.Depth, depth)

	b, err := book.Read(&buf)
	is.NoErr(err)

	root, _ := position.FromSequence(lateRoot)
	checkEveryPosition(t, b, root, depth)

	// a second run finds everything staged.
	buf.Reset()
	report, err = Generate(context.Background(), cfg, opts, &buf)
	is.NoErr(err)
	is.Equal(report.Solved, 0)
	is.Equal(report.Reused, report.Enumerated)
	is.True(buf.Len() > 6)
}

// checkEveryPosition looks up every position the generator enumerates,
// under either orientation, and compares it with a fresh search.
func checkEveryPosition(t *testing.T, b *book.Book, root *position.Position, depth int) {
	t.Helper()
	is := is.New(t)
	tt, err := solver.NewTable(18)
	is.NoErr(err)
	ref := solver.New(tt)
	for _, p := range enumerate(root, depth) {
		want := ref.Solve(&p, false)
		score, ok := b.Lookup(&p)
		is.True(ok)
		is.Equal(score, want)
		score, ok = b.Lookup(p.Mirror())
		is.True(ok)
		is.Equal(score, want)
	}
}

func TestGenerateKeepsEveryPosition(t *testing.T) {
	is := is.New(t)
	cfg := testConfig()
	rootSeq := strings.Repeat("1324576", 2) + "132457"
	depth := len(rootSeq) + 3
	var buf bytes.Buffer
	report, err := Generate(context.Background(), cfg,
		OptionsFromConfig(cfg, depth, rootSeq), &buf)
	is.NoErr(err)
	is.True(report.Enumerated > 100)
	is.Equal(report.Written, report.Enumerated)

	b, err := book.Read(&buf)
	is.NoErr(err)
	root, _ := position.FromSequence(rootSeq)
	checkEveryPosition(t, b, root, depth)
}

func TestGenerateInMemory(t *testing.T) {
	is := is.New(t)
	cfg := testConfig()
	var buf bytes.Buffer
	report, err := Generate(context.Background(), cfg,
		Options{Depth: len(lateRoot) + 1, Root: lateRoot, Threads: 1}, &buf)
	is.NoErr(err)
	is.Equal(report.Solved, report.Enumerated)
	is.Equal(report.Header.Width, position.Width)
}

func TestGenerateRejectsBadInput(t *testing.T) {
	is := is.New(t)
	cfg := testConfig()
	var buf bytes.Buffer
	_, err := Generate(context.Background(), cfg, Options{Depth: 4, Root: "881"}, &buf)
	is.True(errors.Is(err, ErrBadRoot))
	_, err = Generate(context.Background(), cfg, Options{Depth: 2, Root: "4444"}, &buf)
	is.True(errors.Is(err, ErrBadRoot))
	_, err = Generate(context.Background(), cfg, Options{Depth: book.MaxDepth + 1}, &buf)
	is.True(err != nil)
	is.Equal(buf.Len(), 0)
}

func TestGenerateCancelled(t *testing.T) {
	is := is.New(t)
	cfg := testConfig()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	_, err := Generate(ctx, cfg, Options{Depth: 4, Threads: 2}, &buf)
	is.True(err != nil)
	is.Equal(buf.Len(), 0)
}
