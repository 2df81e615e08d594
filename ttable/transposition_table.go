package ttable

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/bits"
	"sync/atomic"
	"unsafe"

	"github.com/pbnjay/memory"
	"github.com/rs/zerolog/log"

	"github.com/domino14/connect4/position"
)

const (
	// MinLogSize is the smallest table that can still validate a full
	// position key with a 32-bit partial key.
	MinLogSize = position.KeyBits - 32
	MaxLogSize = 40

	DefaultLogSize = 24
)

var ErrKeyTooNarrow = errors.New("partial key type too narrow for table size")

// PartialKey is the type used to store the low bits of a key in each slot.
type PartialKey interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Cache is what the solver needs from a transposition table. A zero value
// means "not found".
type Cache interface {
	Get(key uint64) uint8
	Put(key uint64, value uint8)
	Reset()
}

// Table is a fixed-size hash table with one slot per bucket. The slot count
// is a prime just above 2^logSize and each slot keeps the low bits of the
// key. As long as the stored bits plus logSize cover the whole key, the pair
// (key mod size, key mod 2^bits) is unique and every hit is exact.
type Table[K PartialKey] struct {
	keys   []K
	values []uint8
	size   uint64
	// exact is set when every hit is guaranteed to be the stored key.
	exact bool
	// full is set when the partial key holds the whole key.
	full bool

	created    atomic.Uint64
	lookups    atomic.Uint64
	hits       atomic.Uint64
	collisions atomic.Uint64
}

// Stats are counters since the last Reset.
type Stats struct {
	Created    uint64
	Lookups    uint64
	Hits       uint64
	Collisions uint64
}

// New allocates a table for keys of up to position.KeyBits bits.
func New[K PartialKey](logSize int) (*Table[K], error) {
	return NewForKeyBits[K](logSize, position.KeyBits)
}

// NewForKeyBits allocates a table for keys of up to keyBits bits.
func NewForKeyBits[K PartialKey](logSize, keyBits int) (*Table[K], error) {
	var k K
	if partialBits := int(unsafe.Sizeof(k)) * 8; keyBits-logSize > partialBits {
		return nil, fmt.Errorf("%w: %d bits stored, %d needed", ErrKeyTooNarrow,
			partialBits, keyBits-logSize)
	}
	return NewLossy[K](logSize, keyBits)
}

// NewLossy allocates a table even when the partial key is too narrow to
// validate keyBits-bit keys. Such a table may return a value stored for a
// different key.
func NewLossy[K PartialKey](logSize, keyBits int) (*Table[K], error) {
	if logSize < 1 || logSize > MaxLogSize {
		return nil, fmt.Errorf("table log size %d out of range", logSize)
	}
	var k K
	partialBits := int(unsafe.Sizeof(k)) * 8
	size := NextPrime(uint64(1) << logSize)
	t := &Table[K]{
		keys:   make([]K, size),
		values: make([]uint8, size),
		size:   size,
		exact:  keyBits-logSize <= partialBits,
		full:   keyBits <= partialBits,
	}
	log.Debug().Int("log-size", logSize).Uint64("num-elems", size).
		Int("partial-key-bits", partialBits).Bool("exact", t.exact).
		Uint64("estimated-total-memory-bytes", size*uint64(partialBits/8+1)).
		Msg("transposition-table-size")
	return t, nil
}

func (t *Table[K]) index(key uint64) uint64 {
	return key % t.size
}

// Put stores value for key, overwriting whatever was in the slot.
func (t *Table[K]) Put(key uint64, value uint8) {
	pos := t.index(key)
	t.keys[pos] = K(key)
	t.values[pos] = value
	t.created.Add(1)
}

// Get returns the value stored for key, or 0 if the slot is empty or holds
// a different key.
func (t *Table[K]) Get(key uint64) uint8 {
	t.lookups.Add(1)
	pos := t.index(key)
	if t.keys[pos] != K(key) {
		if t.values[pos] != 0 {
			t.collisions.Add(1)
		}
		return 0
	}
	v := t.values[pos]
	if v != 0 {
		t.hits.Add(1)
	}
	return v
}

// Reset empties the table and its counters.
func (t *Table[K]) Reset() {
	clear(t.keys)
	clear(t.values)
	t.created.Store(0)
	t.lookups.Store(0)
	t.hits.Store(0)
	t.collisions.Store(0)
}

func (t *Table[K]) Size() uint64 {
	return t.size
}

// Exact reports whether a hit always belongs to the key looked up.
func (t *Table[K]) Exact() bool {
	return t.exact
}

// FullKeys reports whether the stored partial keys are whole keys, which
// Insert and Find need.
func (t *Table[K]) FullKeys() bool {
	return t.full
}

// Insert stores value for key in the first slot, from key mod size onwards,
// that is empty or already holds key. It returns false if the table is full
// or the partial key cannot hold the whole key. value must not be 0.
func (t *Table[K]) Insert(key uint64, value uint8) bool {
	if !t.full || value == 0 {
		return false
	}
	pos := t.index(key)
	for i := uint64(0); i < t.size; i++ {
		if t.values[pos] == 0 || t.keys[pos] == K(key) {
			t.keys[pos] = K(key)
			t.values[pos] = value
			t.created.Add(1)
			return true
		}
		t.collisions.Add(1)
		pos++
		if pos == t.size {
			pos = 0
		}
	}
	return false
}

// Find returns the value stored for key by Insert, or 0. It probes forward
// from key mod size until it meets key or an empty slot.
func (t *Table[K]) Find(key uint64) uint8 {
	t.lookups.Add(1)
	pos := t.index(key)
	for i := uint64(0); i < t.size; i++ {
		v := t.values[pos]
		if v == 0 {
			return 0
		}
		if t.keys[pos] == K(key) {
			t.hits.Add(1)
			return v
		}
		pos++
		if pos == t.size {
			pos = 0
		}
	}
	return 0
}

func (t *Table[K]) Stats() Stats {
	return Stats{
		Created:    t.created.Load(),
		Lookups:    t.lookups.Load(),
		Hits:       t.hits.Load(),
		Collisions: t.collisions.Load(),
	}
}

// ReadFrom fills the table from size little-endian partial keys followed by
// size value bytes.
func (t *Table[K]) ReadFrom(r io.Reader) (int64, error) {
	if err := binary.Read(r, binary.LittleEndian, t.keys); err != nil {
		return 0, fmt.Errorf("reading keys: %w", err)
	}
	n, err := io.ReadFull(r, t.values)
	keyBytes := int64(len(t.keys)) * int64(unsafe.Sizeof(t.keys[0]))
	if err != nil {
		return keyBytes + int64(n), fmt.Errorf("reading values: %w", err)
	}
	return keyBytes + int64(n), nil
}

// WriteTo writes the table in the layout ReadFrom expects.
func (t *Table[K]) WriteTo(w io.Writer) (int64, error) {
	if err := binary.Write(w, binary.LittleEndian, t.keys); err != nil {
		return 0, err
	}
	n, err := w.Write(t.values)
	return int64(len(t.keys))*int64(unsafe.Sizeof(t.keys[0])) + int64(n), err
}

// LogSizeForMemory returns the largest log size whose uint32-keyed table
// fits in fractionOfMemory of the system memory.
func LogSizeForMemory(fractionOfMemory float64) int {
	const entrySize = 5 // uint32 key + uint8 value
	totalMem := memory.TotalMemory()
	desiredNElems := fractionOfMemory * (float64(totalMem) / entrySize)
	logSize := MinLogSize
	if desiredNElems >= 2 {
		logSize = int(math.Log2(desiredNElems))
	}
	// the prime is a little above the power of two.
	logSize--
	if logSize < MinLogSize {
		logSize = MinLogSize
	}
	if logSize > 32 {
		logSize = 32
	}
	log.Debug().Uint64("total-system-memory-bytes", totalMem).
		Float64("desired-num-elems", desiredNElems).
		Int("log-size", logSize).Msg("table-size-from-memory")
	return logSize
}

// NextPrime returns the smallest prime >= n.
func NextPrime(n uint64) uint64 {
	if n <= 2 {
		return 2
	}
	if n%2 == 0 {
		n++
	}
	for !isPrime(n) {
		n += 2
	}
	return n
}

func isPrime(n uint64) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	limit := uint64(1) << ((bits.Len64(n) + 1) / 2)
	for d := uint64(3); d <= limit && d*d <= n; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}
