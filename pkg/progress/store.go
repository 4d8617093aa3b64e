// Package progress persists run progress so an interrupted run resumes
// exactly where it stopped. The snapshot is a single JSON document written
// with a temp-file-then-rename replace, so a reader always observes either
// the previous complete snapshot or the new one, never a mix.
package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// FailureInfo records why an id exhausted its retry attempts.
type FailureInfo struct {
	// ErrorKind is the taxonomy kind of the final failure
	ErrorKind string `json:"error_type"`
	// ErrorMessage is the final failure message
	ErrorMessage string `json:"error_message"`
	// Attempts is how many extraction attempts were made
	Attempts int `json:"attempts"`
}

// Outcome is the terminal result of one id, as the store needs to see it.
type Outcome struct {
	RUC          string
	Success      bool
	LineCount    int
	ErrorKind    string
	ErrorMessage string
	Attempts     int
}

// snapshot is the on-disk document shape.
type snapshot struct {
	ProcessedRUCs []string               `json:"processed_rucs"`
	FailedRUCs    map[string]FailureInfo `json:"failed_rucs"`
	Statistics    *Statistics            `json:"statistics"`
	LastSave      string                 `json:"last_save"`
}

// Store owns the in-memory progress state and its durable snapshot. All
// mutation happens through the single result consumer, so only Save needs
// its own critical section against concurrent checkpoint triggers.
type Store struct {
	path   string
	logger *logrus.Logger

	processed map[string]bool
	order     []string
	failed    map[string]FailureInfo
	stats     *Statistics

	saveMu sync.Mutex
}

// NewStore creates a store persisting to the given file path.
func NewStore(path string, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{
		path:      path,
		logger:    logger,
		processed: make(map[string]bool),
		failed:    make(map[string]FailureInfo),
		stats:     NewStatistics(),
	}
}

// Load restores a previous snapshot if one exists. It returns whether
// prior state was restored. A corrupt snapshot is logged and treated as
// absent rather than failing the run.
func (s *Store) Load() (bool, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading progress file: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.WithError(err).Warn("Could not parse progress file, starting fresh")
		return false, nil
	}

	s.processed = make(map[string]bool, len(snap.ProcessedRUCs))
	s.order = append([]string(nil), snap.ProcessedRUCs...)
	for _, id := range snap.ProcessedRUCs {
		s.processed[id] = true
	}
	s.failed = snap.FailedRUCs
	if s.failed == nil {
		s.failed = make(map[string]FailureInfo)
	}
	if snap.Statistics != nil {
		s.stats = snap.Statistics
		if s.stats.ErrorsByKind == nil {
			s.stats.ErrorsByKind = make(map[string]int)
		}
	}

	return true, nil
}

// Record folds a terminal outcome into the in-memory state. Not durable by
// itself; call Save to checkpoint.
func (s *Store) Record(o Outcome) {
	if !s.processed[o.RUC] {
		s.processed[o.RUC] = true
		s.order = append(s.order, o.RUC)
	}

	s.stats.Processed++
	if o.Success {
		s.stats.Successful++
		s.stats.TotalLines += o.LineCount
	} else {
		s.stats.Failed++
		kind := o.ErrorKind
		if kind == "" {
			kind = "unknown"
		}
		s.stats.ErrorsByKind[kind]++
		s.failed[o.RUC] = FailureInfo{
			ErrorKind:    kind,
			ErrorMessage: o.ErrorMessage,
			Attempts:     o.Attempts,
		}
	}
	if o.Attempts > 1 {
		s.stats.TotalRetries += o.Attempts - 1
	}
}

// Save serializes the current state and atomically replaces the snapshot
// on disk. Calls are serialized so concurrent checkpoint triggers cannot
// interleave writes.
func (s *Store) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	snap := snapshot{
		ProcessedRUCs: append([]string(nil), s.order...),
		FailedRUCs:    s.failed,
		Statistics:    s.stats,
		LastSave:      time.Now().Format(time.RFC3339),
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling progress: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating progress dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing progress temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing progress file: %w", err)
	}
	return nil
}

// Pending returns the ids from allIDs never recorded as processed,
// preserving input order. A Failed id from a previous run counts as
// processed and is not retried automatically.
func (s *Store) Pending(allIDs []string) []string {
	pending := make([]string, 0, len(allIDs))
	for _, id := range allIDs {
		if !s.processed[id] {
			pending = append(pending, id)
		}
	}
	return pending
}

// Failed returns the failure ledger.
func (s *Store) Failed() map[string]FailureInfo {
	return s.failed
}

// Statistics returns the aggregate counters.
func (s *Store) Statistics() *Statistics {
	return s.stats
}
