package ttable

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cespare/xxhash"
)

type shard struct {
	sync.Mutex
	table *Table[uint32]
}

// Sharded is a Cache safe for concurrent use. Keys are spread over
// independent tables by an xxhash of the key, and each shard is locked on
// its own, so it keeps the overwrite and validation rules of Table.
type Sharded struct {
	shards []*shard
}

// NewSharded creates n shards of 2^logSize slots each.
func NewSharded(n, logSize int) (*Sharded, error) {
	if n < 1 {
		return nil, fmt.Errorf("need at least one shard, got %d", n)
	}
	s := &Sharded{shards: make([]*shard, n)}
	for i := range s.shards {
		t, err := New[uint32](logSize)
		if err != nil {
			return nil, err
		}
		s.shards[i] = &shard{table: t}
	}
	return s, nil
}

func (s *Sharded) shardFor(key uint64) *shard {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], key)
	return s.shards[xxhash.Sum64(buf[:])%uint64(len(s.shards))]
}

func (s *Sharded) Get(key uint64) uint8 {
	sh := s.shardFor(key)
	sh.Lock()
	defer sh.Unlock()
	return sh.table.Get(key)
}

func (s *Sharded) Put(key uint64, value uint8) {
	sh := s.shardFor(key)
	sh.Lock()
	defer sh.Unlock()
	sh.table.Put(key, value)
}

func (s *Sharded) Reset() {
	for _, sh := range s.shards {
		sh.Lock()
		sh.table.Reset()
		sh.Unlock()
	}
}

// Stats sums the counters of all shards.
func (s *Sharded) Stats() Stats {
	var st Stats
	for _, sh := range s.shards {
		sh.Lock()
		ss := sh.table.Stats()
		sh.Unlock()
		st.Created += ss.Created
		st.Lookups += ss.Lookups
		st.Hits += ss.Hits
		st.Collisions += ss.Collisions
	}
	return st
}
