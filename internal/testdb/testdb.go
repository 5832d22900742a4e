// Package testdb opens isolated in-memory portal databases for tests.
package testdb

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/kuitang/gisportal/internal/db"
)

// New opens an in-memory database with the schema applied, private to t,
// and closes it when t finishes.
func New(t testing.TB) *db.DB {
	t.Helper()

	store, err := db.OpenInMemory(Name(t))
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// Name returns a shared-cache database name unique to this run of t.
// Repeated runs (-count) and parallel subtests never share a database.
func Name(t testing.TB) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, t.Name())
	return clean + "_" + uuid.NewString()
}
