package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/dreamware/primegrid/internal/cluster"
	"github.com/dreamware/primegrid/internal/coordinator"
	"github.com/dreamware/primegrid/internal/diagram"
	"github.com/dreamware/primegrid/internal/observability"
	"github.com/dreamware/primegrid/internal/session"
	"github.com/dreamware/primegrid/internal/users"
)

// maxSubmitBytes bounds a /submit_primes body. The largest batch holds well
// under a million primes.
const maxSubmitBytes = 32 << 20

// server holds the HTTP handlers of the coordinator process.
type server struct {
	coord            *coordinator.Coordinator
	sessions         *session.Manager
	users            *users.Store
	metrics          *observability.Metrics
	logger           *slog.Logger
	historyPath      string
	staticDir        string
	defaultBatchSize uint64
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /get_batch", s.handleGetBatch)
	mux.HandleFunc("POST /submit_primes", s.handleSubmitPrimes)
	mux.HandleFunc("POST /set_batch_size", s.handleSetBatchSize)
	mux.HandleFunc("GET /get_stats", s.handleGetStats)
	mux.HandleFunc("GET /get_stats_log", s.handleGetStatsLog)

	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("GET /logout", s.handleLogout)
	mux.HandleFunc("GET /user/progress", s.handleUserProgress)
	mux.HandleFunc("GET /leaderboard", s.handleLeaderboard)

	mux.HandleFunc("GET /diagrams", s.handleDiagrams)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	if s.staticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.staticDir)))
	}
	return mux
}

// batchSize is the session's configured size, or the server default.
func (s *server) batchSize(sess session.Data) uint64 {
	if sess.BatchSize != 0 {
		return sess.BatchSize
	}
	return s.defaultBatchSize
}

func (s *server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	size := s.batchSize(s.sessions.Get(r))

	rng, err := s.coord.RequestBatch(r.Context(), clientID(r), size)
	if err != nil {
		s.fail(w, r, "get batch", err)
		return
	}
	writeJSON(w, http.StatusOK, cluster.BatchResponse{Range: rng, Size: rng.Size()})
}

func (s *server) handleSubmitPrimes(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSubmitBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "request body too large or unreadable")
		return
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '[' {
		writeError(w, http.StatusBadRequest, "invalid data format, expected a JSON array")
		return
	}
	var primes []uint64
	if err := json.Unmarshal(body, &primes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid data format, expected a JSON array of non-negative integers")
		return
	}

	sess := s.sessions.Get(r)
	err = s.coord.ReportResult(r.Context(), coordinator.Submission{
		ClientID:  clientID(r),
		UserID:    sess.UserID,
		Primes:    primes,
		BatchSize: s.batchSize(sess),
	})
	if err != nil {
		s.fail(w, r, "submit primes", err)
		return
	}
	writeJSON(w, http.StatusOK, cluster.StatusResponse{Status: "success"})
}

func (s *server) handleSetBatchSize(w http.ResponseWriter, r *http.Request) {
	var req cluster.SetBatchSizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if !coordinator.ValidBatchSize(req.Size) {
		writeError(w, http.StatusBadRequest, "invalid batch size")
		return
	}
	s.sessions.Update(w, r, func(d *session.Data) { d.BatchSize = req.Size })
	writeJSON(w, http.StatusOK, cluster.StatusResponse{Status: "success"})
}

func (s *server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.CurrentStats())
}

func (s *server) handleGetStatsLog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.History())
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var creds cluster.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	_, err := s.users.Create(r.Context(), creds.Username, creds.Password)
	switch {
	case errors.Is(err, users.ErrMissingFields), errors.Is(err, users.ErrUserExists):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.fail(w, r, "register", err)
		return
	}
	writeJSON(w, http.StatusOK, cluster.StatusResponse{Status: "success"})
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds cluster.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	u, err := s.users.Authenticate(r.Context(), creds.Username, creds.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, users.ErrInvalidCredentials.Error())
		return
	}
	s.sessions.Update(w, r, func(d *session.Data) {
		d.UserID = u.ID
		d.Username = u.Username
	})
	writeJSON(w, http.StatusOK, cluster.StatusResponse{Status: "success"})
}

// handleLogout forgets the user but keeps the rest of the session, such as
// the configured batch size.
func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.sessions.Get(r).UserID != "" {
		s.sessions.Update(w, r, func(d *session.Data) {
			d.UserID = ""
			d.Username = ""
		})
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *server) handleUserProgress(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(r)
	if sess.UserID == "" {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	u, err := s.users.Get(sess.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "progress not found")
		return
	}
	writeJSON(w, http.StatusOK, u.Progress())
}

func (s *server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.users.Leaderboard(users.DefaultLeaderboardSize))
}

// handleDiagrams renders the charts from the persisted history file, so the
// page shows what survives a restart rather than the live view.
func (s *server) handleDiagrams(w http.ResponseWriter, r *http.Request) {
	f, err := os.Open(s.historyPath)
	if errors.Is(err, os.ErrNotExist) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := diagram.Render(w, nil); err != nil {
			s.logger.ErrorContext(r.Context(), "render diagrams", "error", err)
		}
		return
	}
	if err != nil {
		s.fail(w, r, "open history", err)
		return
	}
	defer f.Close()

	var buf bytes.Buffer
	if err := diagram.RenderJSON(&buf, f); err != nil {
		s.fail(w, r, "render diagrams", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// fail logs err and answers 400 for invalid input, 500 otherwise.
func (s *server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, coordinator.ErrInvalidBatchSize) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.ErrorContext(r.Context(), op+" failed", "client", clientID(r), "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// clientID identifies a worker by its remote IP, without the port.
func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, cluster.StatusResponse{Error: msg})
}
