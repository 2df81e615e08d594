// Package book reads and writes opening books: precomputed exact scores for
// every position up to a given number of moves, keyed by the symmetric
// position key.
package book

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"math/bits"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/domino14/connect4/cache"
	"github.com/domino14/connect4/config"
	"github.com/domino14/connect4/position"
	"github.com/domino14/connect4/ttable"
)

// MaxDepth is the deepest book: Key3 of a position with more stones does not
// fit in 64 bits.
const MaxDepth = 33

var ErrBadHeader = errors.New("bad opening book header")

// Header is the fixed six-byte preamble of a book file.
type Header struct {
	Width           int `yaml:"width"`
	Height          int `yaml:"height"`
	Depth           int `yaml:"depth"`
	PartialKeyBytes int `yaml:"partial_key_bytes"`
	ValueBytes      int `yaml:"value_bytes"`
	LogSize         int `yaml:"log_size"`
}

type table interface {
	Get(key uint64) uint8
	Find(key uint64) uint8
	Insert(key uint64, value uint8) bool
	Size() uint64
	Exact() bool
	FullKeys() bool
	io.ReaderFrom
	io.WriterTo
}

// Book maps positions to exact scores. Books written by Write store whole
// keys and resolve slot collisions by probing forward. Books with narrower
// partial keys keep one position per slot and are read without probing;
// when the partial key is too narrow to tell keys in the same slot apart a
// lookup may return the score of another position.
type Book struct {
	header Header
	t      table
}

// Entry is a solved position for Write.
type Entry struct {
	Key3  uint64
	Score int
}

func (h Header) validate() error {
	switch {
	case h.Width != position.Width:
		return fmt.Errorf("%w: width %d", ErrBadHeader, h.Width)
	case h.Height != position.Height:
		return fmt.Errorf("%w: height %d", ErrBadHeader, h.Height)
	case h.Depth > MaxDepth:
		return fmt.Errorf("%w: depth %d", ErrBadHeader, h.Depth)
	case h.ValueBytes != 1:
		return fmt.Errorf("%w: value bytes %d", ErrBadHeader, h.ValueBytes)
	case h.LogSize > ttable.MaxLogSize || h.LogSize < 1:
		return fmt.Errorf("%w: log size %d", ErrBadHeader, h.LogSize)
	}
	return nil
}

// key3Bits is an upper bound on the bits of Key3 for positions with at most
// depth moves.
func key3Bits(depth int) int {
	// depth stones plus one separator per column, then divided by 3.
	var max uint64 = 1
	for i := 0; i < depth+position.Width-1; i++ {
		if max > math.MaxUint64/3 {
			return 64
		}
		max *= 3
	}
	return bits.Len64(max)
}

func newTable(h Header) (table, error) {
	keyBits := key3Bits(h.Depth)
	switch h.PartialKeyBytes {
	case 1:
		return ttable.NewLossy[uint8](h.LogSize, keyBits)
	case 2:
		return ttable.NewLossy[uint16](h.LogSize, keyBits)
	case 4:
		return ttable.NewLossy[uint32](h.LogSize, keyBits)
	case 8:
		return ttable.NewLossy[uint64](h.LogSize, keyBits)
	}
	return nil, fmt.Errorf("%w: partial key bytes %d", ErrBadHeader, h.PartialKeyBytes)
}

// Read parses a book from r.
func Read(r io.Reader) (*Book, error) {
	var raw [6]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadHeader, err)
	}
	h := Header{
		Width:           int(raw[0]),
		Height:          int(raw[1]),
		Depth:           int(raw[2]),
		PartialKeyBytes: int(raw[3]),
		ValueBytes:      int(raw[4]),
		LogSize:         int(raw[5]),
	}
	if err := h.validate(); err != nil {
		return nil, err
	}
	t, err := newTable(h)
	if err != nil {
		return nil, err
	}
	if _, err := t.ReadFrom(r); err != nil {
		return nil, err
	}
	if !t.Exact() {
		log.Warn().Int("depth", h.Depth).Int("partial-key-bytes", h.PartialKeyBytes).
			Int("log-size", h.LogSize).Msg("opening-book-keys-not-exact")
	}
	return &Book{header: h, t: t}, nil
}

// Load reads the book file at path.
func Load(path string) (*Book, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	b, err := Read(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("loading book %s: %w", path, err)
	}
	log.Info().Str("path", path).Int("depth", b.header.Depth).
		Uint64("num-elems", b.t.Size()).Msg("loaded-opening-book")
	return b, nil
}

func loadFunc(cfg *config.Config, key string) (any, error) {
	return Load(key)
}

// LoadCached returns the book at path, reading the file only the first time
// it is requested in this process.
func LoadCached(cfg *config.Config, path string) (*Book, error) {
	obj, err := cache.Load(cfg, path, loadFunc)
	if err != nil {
		return nil, err
	}
	b, ok := obj.(*Book)
	if !ok {
		return nil, fmt.Errorf("cached object %s is not a book", path)
	}
	return b, nil
}

func (b *Book) Header() Header {
	return b.header
}

func (b *Book) Depth() int {
	return b.header.Depth
}

// Slots is the number of table slots, used or not.
func (b *Book) Slots() uint64 {
	return b.t.Size()
}

// Lookup returns the score of p if the book has it. A nil book has
// nothing.
func (b *Book) Lookup(p *position.Position) (int, bool) {
	if b == nil || p.NbMoves() > b.header.Depth {
		return 0, false
	}
	var v uint8
	if b.t.FullKeys() {
		v = b.t.Find(p.Key3())
	} else {
		v = b.t.Get(p.Key3())
	}
	if v == 0 {
		return 0, false
	}
	return int(v) + position.MinScore - 1, true
}

// Write builds a book of the given depth from entries and writes it to w.
// The table stores whole keys and has at least twice as many slots as there
// are entries, so every entry is kept. A later entry for the same key
// replaces an earlier one. Write returns the header and the number of
// distinct positions written.
func Write(w io.Writer, depth int, entries []Entry) (Header, int, error) {
	distinct := make(map[uint64]struct{}, len(entries))
	for _, e := range entries {
		distinct[e.Key3] = struct{}{}
	}
	logSize := 1
	for (uint64(1) << logSize) < uint64(2*len(distinct)) {
		logSize++
	}
	keyBits := key3Bits(depth)
	partialKeyBytes := 1
	for partialKeyBytes*8 < keyBits {
		partialKeyBytes *= 2
	}
	h := Header{
		Width:           position.Width,
		Height:          position.Height,
		Depth:           depth,
		PartialKeyBytes: partialKeyBytes,
		ValueBytes:      1,
		LogSize:         logSize,
	}
	if err := h.validate(); err != nil {
		return h, 0, err
	}
	t, err := newTable(h)
	if err != nil {
		return h, 0, err
	}
	for _, e := range entries {
		if e.Score < position.MinScore || e.Score > position.MaxScore {
			return h, 0, fmt.Errorf("score %d out of range for key %d", e.Score, e.Key3)
		}
		if partialKeyBytes < 8 && e.Key3 >= uint64(1)<<(partialKeyBytes*8) {
			return h, 0, fmt.Errorf("key %d too large for a depth %d book", e.Key3, depth)
		}
		if !t.Insert(e.Key3, uint8(e.Score-position.MinScore+1)) {
			return h, 0, fmt.Errorf("no free slot for key %d", e.Key3)
		}
	}
	raw := []byte{byte(h.Width), byte(h.Height), byte(h.Depth),
		byte(h.PartialKeyBytes), byte(h.ValueBytes), byte(h.LogSize)}
	if _, err := w.Write(raw); err != nil {
		return h, 0, err
	}
	if _, err := t.WriteTo(w); err != nil {
		return h, 0, err
	}
	return h, len(distinct), nil
}
