// Package db owns the portal's encrypted SQLite store (users and login sessions).
package db

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kuitang/gisportal/internal/crypto"
)

const (
	// DefaultDataDirectory is the default root directory for database files.
	DefaultDataDirectory = "./data"

	// PortalDBName is the filename of the portal database.
	PortalDBName = "portal.db"

	// MaxOpenConns bounds the pool; SQLite is single-writer.
	MaxOpenConns = 10

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns = 2

	dbKeyPurpose = "portal-db"
	dbKeyVersion = 1
)

// DB wraps the sql.DB connection and exposes typed queries.
type DB struct {
	db *sql.DB
}

// NewFromSQL wraps an existing sql.DB.
func NewFromSQL(sqlDB *sql.DB) *DB {
	return &DB{db: sqlDB}
}

// Open opens (creating if needed) the SQLCipher-encrypted portal database in dataDir.
// masterKeyHex must be 64 hex characters. The page key is derived from it,
// so the master key itself never reaches the driver.
func Open(dataDir, masterKeyHex string) (*DB, error) {
	master, err := hex.DecodeString(masterKeyHex)
	if err != nil || len(master) != crypto.KeySize {
		return nil, fmt.Errorf("master key must be 32 hex-encoded bytes")
	}
	key := crypto.DeriveKey(master, dbKeyPurpose, dbKeyVersion)

	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, PortalDBName)
	// Format: file.db?_pragma_key=x'HEX_KEY'&_pragma_cipher_page_size=4096
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, hex.EncodeToString(key))
	dsn = appendSQLiteParams(dsn, sqliteCommonParams())

	sqlDB, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open portal database: %w", err)
	}
	sqlDB.SetMaxOpenConns(MaxOpenConns)
	sqlDB.SetMaxIdleConns(MaxIdleConns)

	if err := initialize(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return NewFromSQL(sqlDB), nil
}

// OpenInMemory opens a private in-memory database with the schema applied.
// name isolates shared-cache databases between tests.
func OpenInMemory(name string) (*DB, error) {
	if name == "" {
		name = "portal-test"
	}
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	sqlDB, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(MaxOpenConns)

	for _, pragma := range []string{
		"PRAGMA journal_mode=MEMORY",
		"PRAGMA synchronous=OFF",
		"PRAGMA temp_store=MEMORY",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := initialize(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return NewFromSQL(sqlDB), nil
}

func initialize(sqlDB *sql.DB) error {
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping portal database: %w", err)
	}
	if _, err := sqlDB.Exec(Schema); err != nil {
		return fmt.Errorf("failed to initialize portal schema: %w", err)
	}
	return nil
}

func sqliteCommonParams() string {
	// Production-safe defaults: WAL + NORMAL provides good throughput while preserving safety.
	return "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
}

func appendSQLiteParams(dsn, params string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
