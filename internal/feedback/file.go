package feedback

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	responsesFile = "responses.jsonl"
	feedbackFile  = "feedback.jsonl"
	storeLockFile = ".feedback.lock"

	lockRetryInterval = 50 * time.Millisecond

	// maxLineSize bounds a single JSONL record. Answers are capped well
	// below this by the generation layer.
	maxLineSize = 1 << 20
)

// FileStore persists responses and ratings as append-only JSONL files.
// Appends take an OS file lock so several processes can share the
// directory; the response index is rebuilt from disk on open and then
// tracks writes made through this process.
type FileStore struct {
	dir  string
	lock *flock.Flock

	mu        sync.RWMutex
	responses map[string]ResponseMeta
}

// NewFileStore opens (or creates) a JSONL store in dir.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating feedback directory: %w", err)
	}

	s := &FileStore{
		dir:       dir,
		lock:      flock.New(filepath.Join(dir, storeLockFile)),
		responses: make(map[string]ResponseMeta),
	}
	if err := s.loadResponses(); err != nil {
		return nil, err
	}
	return s, nil
}

// loadResponses rebuilds the response index from the responses file.
func (s *FileStore) loadResponses() error {
	f, err := os.Open(filepath.Join(s.dir, responsesFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening responses file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var meta ResponseMeta
		if err := json.Unmarshal(line, &meta); err != nil {
			return fmt.Errorf("parsing %s line %d: %w", responsesFile, lineNo, err)
		}
		s.responses[meta.ResponseID] = meta
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading responses file: %w", err)
	}
	return nil
}

// SaveResponse appends the metadata for a completed turn and indexes it.
func (s *FileStore) SaveResponse(ctx context.Context, meta ResponseMeta) error {
	line, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	if err := s.appendLine(ctx, responsesFile, line); err != nil {
		return err
	}

	s.mu.Lock()
	s.responses[meta.ResponseID] = meta
	s.mu.Unlock()
	return nil
}

// GetResponse looks up a recorded response in the index.
func (s *FileStore) GetResponse(_ context.Context, responseID string) (ResponseMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.responses[responseID]
	if !ok {
		return ResponseMeta{}, ErrResponseNotFound
	}
	return meta, nil
}

// SaveFeedback appends one rating.
func (s *FileStore) SaveFeedback(ctx context.Context, rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding feedback: %w", err)
	}
	return s.appendLine(ctx, feedbackFile, line)
}

// ReadFeedback returns every stored rating in append order.
func (s *FileStore) ReadFeedback(ctx context.Context) ([]Record, error) {
	locked, err := s.lock.TryRLockContext(ctx, lockRetryInterval)
	if err != nil || !locked {
		return nil, fmt.Errorf("acquiring file lock: %w", err)
	}
	defer s.lock.Unlock()

	f, err := os.Open(filepath.Join(s.dir, feedbackFile))
	if os.IsNotExist(err) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening feedback file: %w", err)
	}
	defer f.Close()

	var records []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", feedbackFile, err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading feedback file: %w", err)
	}
	return records, nil
}

// appendLine writes one record under the cross-process file lock.
func (s *FileStore) appendLine(ctx context.Context, name string, line []byte) error {
	locked, err := s.lock.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return fmt.Errorf("acquiring file lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("acquiring file lock: lock not acquired")
	}
	defer s.lock.Unlock()

	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", name, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("appending to %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}
	return nil
}
