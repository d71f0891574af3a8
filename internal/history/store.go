// Package history keeps a local log of finished runs as JSON lines. Writers
// take an exclusive file lock, so concurrent loadgen processes can share one
// history file.
package history

import (
	"bufio"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/oklog/ulid/v2"
)

// Record is one finished run.
type Record struct {
	ID               string    `json:"id"`
	StartedAt        time.Time `json:"started_at"`
	Method           string    `json:"method"`
	Target           string    `json:"target"`
	ArrivalModel     string    `json:"arrival_model,omitempty"`
	Concurrency      int       `json:"concurrency"`
	TargetRPS        int       `json:"target_rps"`
	DurationSec      float64   `json:"duration_seconds"`
	ElapsedSec       float64   `json:"elapsed_seconds"`
	Total            int64     `json:"total"`
	Succeeded        int64     `json:"succeeded"`
	Failed           int64     `json:"failed"`
	AchievedRPS      float64   `json:"achieved_rps"`
	P99LatencyMs     float64   `json:"p99_latency_ms"`
	Verdict          string    `json:"verdict"`
	ThresholdsFailed int       `json:"thresholds_failed,omitempty"`
}

// Store appends to and reads from a JSONL history file.
type Store struct {
	path string
	lock *flock.Flock

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewStore returns a store backed by path. The file and its directory are
// created on first Append.
func NewStore(path string) *Store {
	return &Store{
		path:    path,
		lock:    flock.New(path + ".lock"),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Path is the history file location.
func (s *Store) Path() string {
	return s.path
}

// Append writes rec as a new line, assigning an ID when it has none. It
// returns the stored record.
func (s *Store) Append(rec Record) (Record, error) {
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	if rec.ID == "" {
		id, err := s.newID(rec.StartedAt)
		if err != nil {
			return rec, fmt.Errorf("history id: %w", err)
		}
		rec.ID = id
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return rec, err
	}
	line = append(line, '\n')

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return rec, fmt.Errorf("history dir: %w", err)
	}
	if err := s.lock.Lock(); err != nil {
		return rec, fmt.Errorf("lock history: %w", err)
	}
	defer s.lock.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return rec, fmt.Errorf("open history: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return rec, fmt.Errorf("write history: %w", err)
	}
	return rec, f.Close()
}

// List returns up to limit records, newest first. limit <= 0 returns all of
// them. A missing file yields no records. Lines that do not parse are
// skipped.
func (s *Store) List(limit int) ([]Record, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("history dir: %w", err)
	}
	if err := s.lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock history: %w", err)
	}
	defer s.lock.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	// ULIDs sort by creation time.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ID > records[j].ID
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *Store) newID(at time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(at), s.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
