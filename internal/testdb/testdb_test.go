package testdb

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kuitang/gisportal/internal/db"
)

func TestNew_IsolatedPerCall(t *testing.T) {
	a := New(t)
	b := New(t)

	if err := a.InsertUser(context.Background(), db.UserRow{
		ID: "u1", Email: "a@example.com", PasswordHash: "$fake$x", CreatedAt: time.Now().Unix(),
	}); err != nil {
		t.Fatalf("InsertUser: %v", err)
	}
	if _, err := b.GetUserByEmail(context.Background(), "a@example.com"); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("second database should not see the first database rows, got err %v", err)
	}
}

func TestName_SanitizesSubtestNames(t *testing.T) {
	t.Run("with spaces/and?query", func(t *testing.T) {
		name := Name(t)
		if strings.ContainsAny(name, " /?&=") {
			t.Fatalf("name %q has DSN-unsafe characters", name)
		}
		if Name(t) == name {
			t.Fatal("names should differ between calls")
		}
	})
}
