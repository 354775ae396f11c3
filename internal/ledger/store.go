// Package ledger provides the deposit-aggregation ledger backed by SQLite.
// It owns, per destination, the running window total, the per-contributor
// balances, and the contributor set, and it records completed settlements.
// Each operation is a single transaction; serialization of deposit and
// settlement flows per destination is the dispatcher's job.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"poolgate.io/pgw/internal/types"

	_ "modernc.org/sqlite"
)

const (
	defaultDBFile    = "poolgate.db"
	maxBusyTimeoutMs = 5000
)

// Ledger manages destination windows and settlement history in a SQLite
// database file.
type Ledger struct {
	db   *sql.DB
	file string

	// configured destination set, immutable after Open
	destinations map[types.Destination]struct{}
}

// Open creates or opens the ledger database and pins the configured
// destination set for the lifetime of the ledger.
func Open(filePath string, destinations []types.Destination) (*Ledger, error) {
	if filePath == "" {
		filePath = defaultDBFile
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("resolve db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s", filepath.Clean(absPath)))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single connection keeps PRAGMAs effective and writes serialized
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", maxBusyTimeoutMs)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	l := &Ledger{
		db:           db,
		file:         absPath,
		destinations: make(map[types.Destination]struct{}, len(destinations)),
	}
	for _, dest := range destinations {
		l.destinations[dest] = struct{}{}
	}

	if err := l.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return l, nil
}

// Close releases the underlying database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Supported reports whether dest is part of the configured destination set.
func (l *Ledger) Supported(dest types.Destination) bool {
	_, ok := l.destinations[dest]
	return ok
}

// Destinations returns the configured destination set in unspecified order.
func (l *Ledger) Destinations() []types.Destination {
	dests := make([]types.Destination, 0, len(l.destinations))
	for dest := range l.destinations {
		dests = append(dests, dest)
	}
	return dests
}

func (l *Ledger) ensureSchema() error {
	_, err := l.db.Exec(`CREATE TABLE IF NOT EXISTS window_entries (
		destination TEXT NOT NULL,
		depositor TEXT NOT NULL,
		amount INTEGER NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (destination, depositor)
	)`)
	if err != nil {
		return fmt.Errorf("create window_entries table: %w", err)
	}

	_, err = l.db.Exec(`CREATE TABLE IF NOT EXISTS window_totals (
		destination TEXT PRIMARY KEY,
		total INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create window_totals table: %w", err)
	}

	_, err = l.db.Exec(`CREATE TABLE IF NOT EXISTS settlements (
		id TEXT PRIMARY KEY,
		message_id TEXT NOT NULL,
		destination TEXT NOT NULL,
		receiver TEXT NOT NULL,
		contributors TEXT NOT NULL,
		balances TEXT NOT NULL,
		total INTEGER NOT NULL,
		fee_asset TEXT NOT NULL,
		fee_amount INTEGER NOT NULL,
		settled_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create settlements table: %w", err)
	}

	var mode string
	if err := l.db.QueryRow("PRAGMA journal_mode=WAL").Scan(&mode); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	return nil
}
