package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/dreamware/primegrid/internal/cluster"
)

// File names inside the data directory.
const (
	StateFileName   = "server_state.json"
	HistoryFileName = "stats_log.json"
	LedgerFileName  = "all_primes.txt"
)

// FileStore implements Store on the local filesystem.
//
// The state and history documents are written to a temporary file in the
// same directory and renamed over the target, so a crash mid-write leaves
// the previous document intact. The ledger is opened in append mode.
type FileStore struct {
	stateCodec   Codec
	historyCodec Codec
	dir          string
	mu           sync.Mutex // serializes writers; the coordinator lock already orders them
}

// NewFileStore creates the directory if needed and returns a store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{
		dir:          dir,
		stateCodec:   JSONCodec{},
		historyCodec: JSONCodec{Indent: "    "},
	}, nil
}

// Dir returns the data directory.
func (f *FileStore) Dir() string {
	return f.dir
}

// HistoryPath returns the path of the history log.
func (f *FileStore) HistoryPath() string {
	return filepath.Join(f.dir, HistoryFileName)
}

// LoadState reads the state file. A missing file is a cold start.
func (f *FileStore) LoadState() (cluster.State, bool, error) {
	var state cluster.State
	found, err := f.load(StateFileName, f.stateCodec, &state)
	if err != nil {
		return cluster.State{}, false, err
	}
	return state, found, nil
}

// SaveState overwrites the state file.
func (f *FileStore) SaveState(state cluster.State) error {
	return f.save(StateFileName, f.stateCodec, state)
}

// LoadHistory reads the history log. A missing file yields an empty log.
func (f *FileStore) LoadHistory() ([]cluster.HistoryEntry, error) {
	var entries []cluster.HistoryEntry
	if _, err := f.load(HistoryFileName, f.historyCodec, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SaveHistory rewrites the history log.
func (f *FileStore) SaveHistory(entries []cluster.HistoryEntry) error {
	if entries == nil {
		entries = []cluster.HistoryEntry{}
	}
	return f.save(HistoryFileName, f.historyCodec, entries)
}

// AppendPrimes appends one decimal line per prime to the ledger.
func (f *FileStore) AppendPrimes(primes []uint64) error {
	if len(primes) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(filepath.Join(f.dir, LedgerFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	w := bufio.NewWriter(file)
	buf := make([]byte, 0, 24)
	for _, p := range primes {
		buf = strconv.AppendUint(buf[:0], p, 10)
		buf = append(buf, '\n')
		if _, err := w.Write(buf); err != nil {
			file.Close()
			return fmt.Errorf("write ledger: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("flush ledger: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}
	return nil
}

func (f *FileStore) load(name string, codec Codec, v any) (bool, error) {
	file, err := os.Open(filepath.Join(f.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open %s: %w", name, err)
	}
	defer file.Close()

	if err := codec.Decode(file, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

func (f *FileStore) save(name string, codec Codec, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if err := codec.Encode(tmp, v); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(f.dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}
