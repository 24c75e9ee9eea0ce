package cache

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// StoreProvider is an interface for a versioned response store.
// It stores and retrieves []byte values, which represent captured HTTP
// responses, grouped under named store versions. Exactly one version is
// current at a time; superseded versions are deleted wholesale.
//
// Implementations must be thread-safe!
type StoreProvider interface {
	// Open ensures the store for the given version exists.
	// Opening an existing version is a no-op and never loses entries.
	Open(version string) error
	// Get returns the stored bytes for the given key within a version.
	// It also returns a boolean indicating whether the key was present.
	Get(version, key string) ([]byte, bool, error)
	// Put stores the given bytes under the key within a version.
	// A later Put for the same key replaces the earlier entry
	// (last write wins).
	Put(version, key string, bytes []byte) error
	// Versions returns the names of all store versions present.
	Versions() ([]string, error)
	// DeleteVersion removes a store version and all of its entries.
	// Deleting an absent version is a no-op.
	DeleteVersion(version string) error
	// Close releases the underlying storage.
	Close() error
}

type SQLiteStore struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteStore creates a new store with the given filename as the db.
// If the file name is empty, a new in-memory db is opened.
func NewSQLiteStore(filename string) SQLiteStore {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		version TEXT,
		key TEXT,
		captured_at INTEGER,
		bytes BLOB,
		PRIMARY KEY (version, key)
	)`)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("CREATE TABLE IF NOT EXISTS versions (version TEXT PRIMARY KEY)")
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		panic(err)
	}
	return SQLiteStore{
		db:         db,
		writeMutex: &sync.Mutex{},
	}
}

func (s SQLiteStore) Open(version string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("INSERT OR IGNORE INTO versions (version) VALUES (?)", version)
	return err
}

func (s SQLiteStore) Get(version, key string) ([]byte, bool, error) {
	var bytes []byte
	err := s.db.QueryRow(
		"SELECT bytes FROM entries WHERE version = ? AND key = ?",
		version, key,
	).Scan(&bytes)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bytes, true, nil
}

func (s SQLiteStore) Put(version, key string, bytes []byte) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if _, err := s.db.Exec("INSERT OR IGNORE INTO versions (version) VALUES (?)", version); err != nil {
		return err
	}
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO entries (version, key, captured_at, bytes) VALUES (?, ?, ?, ?)",
		version, key, time.Now().Unix(), bytes,
	)
	return err
}

func (s SQLiteStore) Versions() ([]string, error) {
	rows, err := s.db.Query("SELECT version FROM versions UNION SELECT DISTINCT version FROM entries")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	versions := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return versions, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s SQLiteStore) DeleteVersion(version string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if _, err := s.db.Exec("DELETE FROM entries WHERE version = ?", version); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM versions WHERE version = ?", version)
	return err
}

func (s SQLiteStore) Close() error {
	return s.db.Close()
}
