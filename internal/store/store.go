// Package store provides the SQLite-backed market-data store: mortgage pool
// snapshots with their monthly factor history, and TBA price snapshots.
// Data is persisted across restarts; the analytics engine reads from here.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/quantdesk/mbsiq/internal/analytics"
)

// MarketStore persists and retrieves pool and TBA market data.
// Implementations must be safe for concurrent use.
type MarketStore interface {
	// UpsertPool inserts or replaces a pool snapshot (without history).
	UpsertPool(ctx context.Context, p analytics.Pool) error
	// AppendObservation adds one factor observation to a pool's history.
	AppendObservation(ctx context.Context, poolID string, obs analytics.Observation) error
	// Pools returns every pool snapshot with its full factor history,
	// oldest observation first, ordered by pool ID.
	Pools(ctx context.Context) ([]analytics.Pool, error)
	// Pool returns one pool with history, or sql.ErrNoRows wrapped.
	Pool(ctx context.Context, poolID string) (analytics.Pool, error)
	// UpsertTBA inserts or replaces a TBA snapshot keyed by CUSIP.
	UpsertTBA(ctx context.Context, s analytics.TBASecurity) error
	// TBASecurities returns every TBA snapshot ordered by CUSIP.
	TBASecurities(ctx context.Context) ([]analytics.TBASecurity, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a MarketStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the market database.
// It resolves to ~/.mbsiq/market.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".mbsiq")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "market.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS pools (
    pool_id          TEXT    PRIMARY KEY,
    as_of_date       INTEGER NOT NULL,  -- Unix timestamp (seconds)
    current_balance  REAL    NOT NULL,
    original_balance REAL    NOT NULL,
    wac              REAL    NOT NULL,
    wam              INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS pool_factors (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    pool_id     TEXT    NOT NULL REFERENCES pools(pool_id),
    as_of_date  INTEGER NOT NULL,
    factor      REAL    NOT NULL,
    UNIQUE (pool_id, as_of_date)
);
CREATE INDEX IF NOT EXISTS idx_pool_factors_pool_date
    ON pool_factors (pool_id, as_of_date);
CREATE TABLE IF NOT EXISTS tba_securities (
    cusip            TEXT    PRIMARY KEY,
    agency           TEXT    NOT NULL CHECK(agency IN ('FNMA','FHLMC','GNMA')),
    coupon           REAL    NOT NULL,
    settlement_date  INTEGER NOT NULL,
    price            REAL    NOT NULL,
    yield            REAL    NOT NULL,
    duration         REAL    NOT NULL
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// UpsertPool inserts or replaces a pool snapshot. History rows are untouched.
func (s *SQLiteStore) UpsertPool(ctx context.Context, p analytics.Pool) error {
	const q = `
INSERT INTO pools (pool_id, as_of_date, current_balance, original_balance, wac, wam)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(pool_id) DO UPDATE SET
    as_of_date       = excluded.as_of_date,
    current_balance  = excluded.current_balance,
    original_balance = excluded.original_balance,
    wac              = excluded.wac,
    wam              = excluded.wam`
	_, err := s.db.ExecContext(ctx, q,
		p.PoolID, p.AsOfDate.Unix(), p.CurrentBalance, p.OriginalBalance, p.WAC, p.WAM)
	if err != nil {
		return fmt.Errorf("store: upsert pool %s: %w", p.PoolID, err)
	}
	return nil
}

// AppendObservation adds one factor observation. Re-reporting the same month
// replaces the earlier value rather than duplicating the row.
func (s *SQLiteStore) AppendObservation(ctx context.Context, poolID string, obs analytics.Observation) error {
	const q = `
INSERT INTO pool_factors (pool_id, as_of_date, factor)
VALUES (?, ?, ?)
ON CONFLICT(pool_id, as_of_date) DO UPDATE SET factor = excluded.factor`
	if _, err := s.db.ExecContext(ctx, q, poolID, obs.AsOfDate.Unix(), obs.Factor); err != nil {
		return fmt.Errorf("store: append observation %s: %w", poolID, err)
	}
	return nil
}

// Pools returns every pool with its factor history attached.
func (s *SQLiteStore) Pools(ctx context.Context) ([]analytics.Pool, error) {
	const q = `
SELECT pool_id, as_of_date, current_balance, original_balance, wac, wam
FROM   pools
ORDER  BY pool_id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: pools: %w", err)
	}
	defer rows.Close()

	var pools []analytics.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: pools rows: %w", err)
	}
	for i := range pools {
		history, err := s.history(ctx, pools[i].PoolID)
		if err != nil {
			return nil, err
		}
		pools[i].History = history
	}
	return pools, nil
}

// Pool returns one pool with its factor history.
func (s *SQLiteStore) Pool(ctx context.Context, poolID string) (analytics.Pool, error) {
	const q = `
SELECT pool_id, as_of_date, current_balance, original_balance, wac, wam
FROM   pools
WHERE  pool_id = ?`
	row := s.db.QueryRowContext(ctx, q, poolID)
	p, err := scanPool(row)
	if err != nil {
		return analytics.Pool{}, err
	}
	p.History, err = s.history(ctx, poolID)
	if err != nil {
		return analytics.Pool{}, err
	}
	return p, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPool(row scanner) (analytics.Pool, error) {
	var p analytics.Pool
	var asOf int64
	if err := row.Scan(&p.PoolID, &asOf, &p.CurrentBalance, &p.OriginalBalance, &p.WAC, &p.WAM); err != nil {
		return analytics.Pool{}, fmt.Errorf("store: scan pool: %w", err)
	}
	p.AsOfDate = time.Unix(asOf, 0).UTC()
	return p, nil
}

// history returns a pool's factor series, oldest first.
func (s *SQLiteStore) history(ctx context.Context, poolID string) ([]analytics.Observation, error) {
	const q = `
SELECT as_of_date, factor
FROM   pool_factors
WHERE  pool_id = ?
ORDER  BY as_of_date ASC`
	rows, err := s.db.QueryContext(ctx, q, poolID)
	if err != nil {
		return nil, fmt.Errorf("store: history %s: %w", poolID, err)
	}
	defer rows.Close()

	var obs []analytics.Observation
	for rows.Next() {
		var o analytics.Observation
		var asOf int64
		if err := rows.Scan(&asOf, &o.Factor); err != nil {
			return nil, fmt.Errorf("store: history scan: %w", err)
		}
		o.AsOfDate = time.Unix(asOf, 0).UTC()
		obs = append(obs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: history rows: %w", err)
	}
	return obs, nil
}

// UpsertTBA inserts or replaces a TBA snapshot keyed by CUSIP.
func (s *SQLiteStore) UpsertTBA(ctx context.Context, sec analytics.TBASecurity) error {
	const q = `
INSERT INTO tba_securities (cusip, agency, coupon, settlement_date, price, yield, duration)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(cusip) DO UPDATE SET
    agency          = excluded.agency,
    coupon          = excluded.coupon,
    settlement_date = excluded.settlement_date,
    price           = excluded.price,
    yield           = excluded.yield,
    duration        = excluded.duration`
	_, err := s.db.ExecContext(ctx, q,
		sec.CUSIP, string(sec.Agency), sec.Coupon, sec.SettlementDate.Unix(), sec.Price, sec.Yield, sec.Duration)
	if err != nil {
		return fmt.Errorf("store: upsert tba %s: %w", sec.CUSIP, err)
	}
	return nil
}

// TBASecurities returns every TBA snapshot ordered by CUSIP.
func (s *SQLiteStore) TBASecurities(ctx context.Context) ([]analytics.TBASecurity, error) {
	const q = `
SELECT cusip, agency, coupon, settlement_date, price, yield, duration
FROM   tba_securities
ORDER  BY cusip`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: tba securities: %w", err)
	}
	defer rows.Close()

	var secs []analytics.TBASecurity
	for rows.Next() {
		var sec analytics.TBASecurity
		var agency string
		var settle int64
		if err := rows.Scan(&sec.CUSIP, &agency, &sec.Coupon, &settle, &sec.Price, &sec.Yield, &sec.Duration); err != nil {
			return nil, fmt.Errorf("store: tba scan: %w", err)
		}
		sec.Agency = analytics.Agency(agency)
		sec.SettlementDate = time.Unix(settle, 0).UTC()
		secs = append(secs, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: tba rows: %w", err)
	}
	return secs, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
