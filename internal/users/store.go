// Package users stores PrimeGrid accounts and their per-user progress as one
// JSON document per user on any afs-supported filesystem.
package users

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/exp/slices"

	"github.com/dreamware/primegrid/internal/cluster"
)

// DefaultLeaderboardSize is how many users the leaderboard shows.
const DefaultLeaderboardSize = 10

var (
	ErrMissingFields      = errors.New("username and password are required")
	ErrUserExists         = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrNotFound           = errors.New("user not found")
)

// User is the stored account document.
type User struct {
	ID                    string    `json:"id"`
	Username              string    `json:"username"`
	PasswordHash          string    `json:"password_hash"`
	TotalPrimesFound      uint64    `json:"total_primes_found"`
	TotalNumbersProcessed uint64    `json:"total_numbers_processed"`
	CreatedAt             time.Time `json:"created_at"`
}

// Progress returns the user's cumulative contribution.
func (u User) Progress() cluster.UserProgress {
	return cluster.UserProgress{
		TotalPrimesFound:      u.TotalPrimesFound,
		TotalNumbersProcessed: u.TotalNumbersProcessed,
	}
}

// Store keeps every user in memory, indexed by id and username, and writes
// each change through to baseURL.
type Store struct {
	baseURL string
	fs      afs.Service
	cost    int

	mu     sync.RWMutex
	byID   map[string]*User
	byName map[string]string // username -> id
}

// Open loads all user documents under baseURL, creating it if needed.
// A plain path is treated as a local directory.
func Open(ctx context.Context, baseURL string) (*Store, error) {
	if baseURL == "" {
		return nil, errors.New("users: base URL cannot be empty")
	}

	fs := afs.New()
	exists, err := fs.Exists(ctx, baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to check users directory: %w", err)
	}
	if !exists {
		if err := fs.Create(ctx, baseURL, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create users directory: %w", err)
		}
	}

	s := &Store{
		baseURL: url.Normalize(baseURL, file.Scheme),
		fs:      fs,
		cost:    bcrypt.DefaultCost,
		byID:    make(map[string]*User),
		byName:  make(map[string]string),
	}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	objects, err := s.fs.List(ctx, s.baseURL, option.NewRecursive(false))
	if err != nil {
		return fmt.Errorf("failed to list user files: %w", err)
	}

	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			return fmt.Errorf("failed to read user file %s: %w", object.URL(), err)
		}
		var u User
		if err := json.Unmarshal(data, &u); err != nil {
			return fmt.Errorf("failed to unmarshal user from %s: %w", object.URL(), err)
		}
		s.byID[u.ID] = &u
		s.byName[u.Username] = u.ID
	}
	return nil
}

// Len returns the number of registered users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Create registers a new user.
func (s *Store) Create(ctx context.Context, username, password string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return User{}, ErrMissingFields
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[username]; ok {
		return User{}, ErrUserExists
	}

	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.save(ctx, u); err != nil {
		return User{}, err
	}
	s.byID[u.ID] = u
	s.byName[u.Username] = u.ID
	return *u, nil
}

// Authenticate returns the user matching username and password.
func (s *Store) Authenticate(_ context.Context, username, password string) (User, error) {
	s.mu.RLock()
	id, ok := s.byName[strings.TrimSpace(username)]
	var u User
	if ok {
		u = *s.byID[id]
	}
	s.mu.RUnlock()

	if !ok {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Get returns the user with the given id.
func (s *Store) Get(id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return *u, nil
}

// UpdateProgress adds one submission to the user's totals.
func (s *Store) UpdateProgress(ctx context.Context, userID string, primesFound, numbersProcessed uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, userID)
	}

	next := *u
	next.TotalPrimesFound += primesFound
	next.TotalNumbersProcessed += numbersProcessed
	if err := s.save(ctx, &next); err != nil {
		return err
	}
	*u = next
	return nil
}

// Leaderboard returns the top n users by numbers processed, ties broken by
// username.
func (s *Store) Leaderboard(n int) []cluster.LeaderboardEntry {
	s.mu.RLock()
	out := make([]cluster.LeaderboardEntry, 0, len(s.byID))
	for _, u := range s.byID {
		out = append(out, cluster.LeaderboardEntry{
			Username:         u.Username,
			NumbersProcessed: u.TotalNumbersProcessed,
			PrimesFound:      u.TotalPrimesFound,
		})
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b cluster.LeaderboardEntry) int {
		switch {
		case a.NumbersProcessed != b.NumbersProcessed:
			if a.NumbersProcessed > b.NumbersProcessed {
				return -1
			}
			return 1
		default:
			return strings.Compare(a.Username, b.Username)
		}
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// save writes u to its document. Caller must hold s.mu.
func (s *Store) save(ctx context.Context, u *User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	filePath := url.Join(s.baseURL, u.ID+".json")
	if err := s.fs.Upload(ctx, filePath, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save user to file %s: %w", filePath, err)
	}
	return nil
}
