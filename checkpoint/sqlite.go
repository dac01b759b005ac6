package checkpoint

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/uranc/slmea/errs"
	"github.com/uranc/slmea/monitoring"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound indicates a session with no stored result.
var ErrNotFound = errors.New("checkpoint: not found")

// DB is the checkpoint database.
type DB struct {
	*sql.DB
}

// OpenDB opens (creating if needed) the SQLite database at path and applies
// pending migrations.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", errs.ErrPersistence, path, err)
	}
	res := &DB{db}
	if err := res.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return res, nil
}

// MigrateUp runs all pending migrations up to the latest version.
func (db *DB) MigrateUp() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed; closing it would close the underlying connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%w: migration up failed: %w", errs.ErrPersistence, err)
	}
	return nil
}

// MigrateVersion returns the current migration version, or 0 before any migration.
func (db *DB) MigrateVersion() (uint, error) {
	m, err := db.newMigrate()
	if err != nil {
		return 0, err
	}
	version, _, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	return version, err
}

func (db *DB) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create sqlite driver: %w", errs.ErrPersistence, err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool {
	return false
}

// SQLiteSink writes batches into checkpoint_batches.
type SQLiteSink struct {
	db *DB
}

// NewSQLiteSink returns a sink writing into db.
func NewSQLiteSink(db *DB) *SQLiteSink {
	return &SQLiteSink{db: db}
}

// WriteBatch implements Sink.
func (s *SQLiteSink) WriteBatch(b Batch) error {
	blob, err := encode(b.Iterates)
	if err != nil {
		return fmt.Errorf("%w: encode batch: %w", errs.ErrPersistence, err)
	}
	_, err = s.db.Exec(`INSERT INTO checkpoint_batches (session_id, run_id, first_iter, last_iter, blob) VALUES (?, ?, ?, ?, ?)`,
		b.SessionID, b.RunID, b.First(), b.Last(), blob)
	if err != nil {
		return fmt.Errorf("%w: insert batch %d-%d: %w", errs.ErrPersistence, b.First(), b.Last(), err)
	}
	return nil
}

// LoadBatches returns the batches of a session ordered by run and then by
// first iteration.
func (db *DB) LoadBatches(sessionID string) ([]Batch, error) {
	rows, err := db.Query(`SELECT run_id, blob FROM checkpoint_batches WHERE session_id = ? ORDER BY run_id, first_iter`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Batch
	for rows.Next() {
		var blob []byte
		b := Batch{SessionID: sessionID}
		if err := rows.Scan(&b.RunID, &blob); err != nil {
			return nil, err
		}
		if err := decode(blob, &b.Iterates); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

// Record is a persisted solve result.
type Record struct {
	SessionID  string
	RunID      string
	Strategy   string
	Status     string
	Objective  float64
	Iterations int
	X          []float64
}

// ResultStore persists final results in the results table.
type ResultStore struct {
	db *DB
}

// NewResultStore returns a store over db.
func NewResultStore(db *DB) *ResultStore {
	return &ResultStore{db: db}
}

// Save inserts or replaces the result of r.SessionID; the latest run wins.
func (s *ResultStore) Save(r Record) error {
	blob, err := encode(r.X)
	if err != nil {
		return fmt.Errorf("%w: encode result: %w", errs.ErrPersistence, err)
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO results (session_id, run_id, strategy, status, objective, iterations, blob) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.RunID, r.Strategy, r.Status, r.Objective, r.Iterations, blob)
	if err != nil {
		return fmt.Errorf("%w: save result %s: %w", errs.ErrPersistence, r.SessionID, err)
	}
	monitoring.Logf("[checkpoint] saved %s result for session %s", r.Status, r.SessionID)
	return nil
}

// Load returns the stored result of sessionID.
func (s *ResultStore) Load(sessionID string) (*Record, error) {
	r := &Record{SessionID: sessionID}
	var blob []byte
	err := s.db.QueryRow(`SELECT run_id, strategy, status, objective, iterations, blob FROM results WHERE session_id = ?`, sessionID).
		Scan(&r.RunID, &r.Strategy, &r.Status, &r.Objective, &r.Iterations, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, err
	}
	if err := decode(blob, &r.X); err != nil {
		return nil, err
	}
	return r, nil
}
