// Package auth implements email/password login backed by the portal database.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	stdtime "time"

	"github.com/google/uuid"

	"github.com/kuitang/gisportal/internal/db"
	"github.com/kuitang/gisportal/internal/obs"
)

// Errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Clock abstracts time for testability.
type Clock interface {
	Now() stdtime.Time
}

type realClock struct{}

func (realClock) Now() stdtime.Time { return stdtime.Now() }

// User represents a user account.
type User struct {
	ID        string
	Email     string
	CreatedAt stdtime.Time
}

// UserService handles user lookup and credential checks.
type UserService struct {
	db     *db.DB
	hasher PasswordHasher
	clock  Clock
}

// NewUserService creates a new user service.
func NewUserService(store *db.DB, hasher PasswordHasher) *UserService {
	if hasher == nil {
		hasher = Argon2Hasher{}
	}
	return &UserService{
		db:     store,
		hasher: hasher,
		clock:  realClock{},
	}
}

// SetClock replaces the clock used by the service. Intended for testing.
func (s *UserService) SetClock(c Clock) {
	s.clock = c
}

// EnsureUser creates the account if missing, or resets its password so the
// configured credentials always work. Used to seed the fixed test identity.
func (s *UserService) EnsureUser(ctx context.Context, emailAddr, password string) (*User, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || password == "" {
		return nil, fmt.Errorf("email and password are required")
	}

	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	row, err := s.db.GetUserByEmail(ctx, emailAddr)
	switch {
	case err == nil:
		if err := s.db.UpdatePasswordHash(ctx, row.ID, hash); err != nil {
			return nil, err
		}
		obs.From(ctx).Info("auth_user_password_reset", "pkg", "auth", "user_id", row.ID)
		return toUser(row), nil
	case errors.Is(err, db.ErrNotFound):
	default:
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	row = db.UserRow{
		ID:           uuid.NewString(),
		Email:        emailAddr,
		PasswordHash: hash,
		CreatedAt:    s.clock.Now().Unix(),
	}
	if err := s.db.InsertUser(ctx, row); err != nil {
		return nil, err
	}
	obs.From(ctx).Info("auth_user_created", "pkg", "auth", "user_id", row.ID)
	return toUser(row), nil
}

// VerifyLogin checks credentials and returns the user.
// Unknown emails and wrong passwords both yield ErrInvalidCredentials.
func (s *UserService) VerifyLogin(ctx context.Context, emailAddr, password string) (*User, error) {
	row, err := s.db.GetUserByEmail(ctx, normalizeEmail(emailAddr))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !s.hasher.VerifyPassword(password, row.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return toUser(row), nil
}

// GetByID returns the user with the given id.
func (s *UserService) GetByID(ctx context.Context, userID string) (*User, error) {
	row, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return toUser(row), nil
}

func toUser(row db.UserRow) *User {
	return &User{
		ID:        row.ID,
		Email:     row.Email,
		CreatedAt: stdtime.Unix(row.CreatedAt, 0),
	}
}

func normalizeEmail(emailAddr string) string {
	return strings.ToLower(strings.TrimSpace(emailAddr))
}
