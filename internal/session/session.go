// Package session keeps per-browser state for the HTTP server behind an
// opaque cookie.
package session

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// Data is what the server remembers about one session.
type Data struct {
	BatchSize uint64 // Chosen via /set_batch_size, zero means the server default
	UserID    string // Set after a successful login
	Username  string
}

// Manager maps session cookies to Data. Sessions live in memory and do not
// expire; a restart logs everybody out.
type Manager struct {
	mu         sync.Mutex
	cookieName string
	sessions   map[string]Data
}

// NewManager creates a manager issuing cookies named cookieName.
func NewManager(cookieName string) *Manager {
	return &Manager{
		cookieName: cookieName,
		sessions:   make(map[string]Data),
	}
}

// Get returns the session data of r, or the zero Data when r carries no
// known session.
func (m *Manager) Get(r *http.Request) Data {
	id := m.id(r)
	if id == "" {
		return Data{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// Update applies fn to the session of r, creating the session and setting
// its cookie on w if needed. It returns the updated data.
func (m *Manager) Update(w http.ResponseWriter, r *http.Request, fn func(*Data)) Data {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.id(r)
	if _, ok := m.sessions[id]; id == "" || !ok {
		id = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     m.cookieName,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	data := m.sessions[id]
	fn(&data)
	m.sessions[id] = data
	return data
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) id(r *http.Request) string {
	c, err := r.Cookie(m.cookieName)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return ""
	}
	return c.Value
}
