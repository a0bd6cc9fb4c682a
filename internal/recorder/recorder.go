package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"reconstudy/internal/models"
)

// Recorder appends finalized task records to one JSON array file per
// (user, level) pair. Writes for the same file are serialized and performed
// via a temp file plus rename so a crash never leaves a truncated log.
type Recorder struct {
	baseDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Recorder rooted at baseDir.
func New(baseDir string) *Recorder {
	return &Recorder{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Append adds one record to the end of the user's log for the level.
// Existing records are preserved in order and never rewritten.
func (r *Recorder) Append(userID string, level models.Level, record models.TaskRecord) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	lock := r.fileLock(userID, level)
	lock.Lock()
	defer lock.Unlock()

	records, err := r.readLocked(userID, level)
	if err != nil {
		return err
	}
	records = append(records, record)

	dir := filepath.Join(r.baseDir, userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create results dir: %w", err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	path := r.path(userID, level)
	tmp, err := os.CreateTemp(dir, "."+string(level)+"-*.json")
	if err != nil {
		return fmt.Errorf("create temp log: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp log: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace log: %w", err)
	}
	return nil
}

// Read returns the ordered records for a user and level, empty if none exist.
func (r *Recorder) Read(userID string, level models.Level) ([]models.TaskRecord, error) {
	lock := r.fileLock(userID, level)
	lock.Lock()
	defer lock.Unlock()
	return r.readLocked(userID, level)
}

// Count reports how many tasks the user has completed at the level.
func (r *Recorder) Count(userID string, level models.Level) (int, error) {
	records, err := r.Read(userID, level)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (r *Recorder) readLocked(userID string, level models.Level) ([]models.TaskRecord, error) {
	data, err := os.ReadFile(r.path(userID, level))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read log: %w", err)
	}
	var records []models.TaskRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode log: %w", err)
	}
	return records, nil
}

func (r *Recorder) path(userID string, level models.Level) string {
	return filepath.Join(r.baseDir, userID, string(level)+".json")
}

func (r *Recorder) fileLock(userID string, level models.Level) *sync.Mutex {
	key := userID + "/" + string(level)
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[key] = lock
	}
	return lock
}
