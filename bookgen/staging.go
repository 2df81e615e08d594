package bookgen

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/domino14/connect4/book"
)

const schema = `CREATE TABLE IF NOT EXISTS solved (
	key3 INTEGER PRIMARY KEY,
	moves INTEGER NOT NULL,
	score INTEGER NOT NULL
)`

// stagingStore keeps solved positions in sqlite so an interrupted
// generation can pick up where it stopped.
type stagingStore struct {
	db *sql.DB
}

func openStaging(ctx context.Context, path string) (*stagingStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening staging db: %w", err)
	}
	// one connection: an in-memory database exists per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating staging schema: %w", err)
	}
	log.Debug().Str("path", path).Msg("opened-staging-db")
	return &stagingStore{db: db}, nil
}

func (s *stagingStore) Close() error {
	return s.db.Close()
}

// solvedKeys returns the keys that already have a score.
func (s *stagingStore) solvedKeys(ctx context.Context) (map[uint64]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key3 FROM solved")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	keys := map[uint64]bool{}
	for rows.Next() {
		var k int64
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys[uint64(k)] = true
	}
	return keys, rows.Err()
}

// insert stores a batch of results in one transaction.
func (s *stagingStore) insert(ctx context.Context, results []result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO solved (key3, moves, score) VALUES (?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, int64(r.key3), r.moves, r.score); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// entries returns every staged position with at most depth moves.
func (s *stagingStore) entries(ctx context.Context, depth int) ([]book.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key3, score FROM solved WHERE moves <= ? ORDER BY moves DESC, key3", depth)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []book.Entry
	for rows.Next() {
		var k int64
		var score int
		if err := rows.Scan(&k, &score); err != nil {
			return nil, err
		}
		entries = append(entries, book.Entry{Key3: uint64(k), Score: score})
	}
	return entries, rows.Err()
}
