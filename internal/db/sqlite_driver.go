package db

import (
	"crypto/sha3"
	"database/sql"
	"fmt"
	"strings"

	sqlite3 "github.com/mutecomm/go-sqlcipher/v4"
)

// SQLiteDriverName is the SQLCipher driver with session_digest() registered.
const SQLiteDriverName = "sqlite3_gisportal"

func init() {
	sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			err := conn.RegisterFunc("session_digest", sessionDigest, true)
			if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
				return fmt.Errorf("register session_digest SQL function: %w", err)
			}
			return nil
		},
	})
}

// sessionDigest backs session_digest(X): the SHA3-256 of a session id.
// Session ids never reach disk in the clear.
func sessionDigest(id string) []byte {
	sum := sha3.Sum256([]byte(id))
	return sum[:]
}
