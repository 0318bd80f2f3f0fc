// Package state persists sync progress (the watermark) across restarts.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrStorage wraps I/O failures of the backing store. A missing file on load
// is not a storage error; anything else is.
var ErrStorage = errors.New("state storage failure")

// Storage is the durable key/value backing for State.
type Storage interface {
	Retrieve() (map[string]string, error)
	Save(state map[string]string) error
}

// JSONFileStorage keeps the whole state mapping in a single JSON file,
// rewritten wholesale on every save.
type JSONFileStorage struct {
	path string
}

func NewJSONFileStorage(path string) *JSONFileStorage {
	return &JSONFileStorage{path: path}
}

func (s *JSONFileStorage) Retrieve() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		// First run: no file yet. Treated as empty state, created on first save.
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrStorage, s.path, err)
	}

	state := map[string]string{}
	if len(data) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrStorage, s.path, err)
	}
	return state, nil
}

// Save rewrites the file and fsyncs it before returning, so a committed
// watermark survives an immediate crash.
func (s *JSONFileStorage) Save(state map[string]string) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("%w: encode state: %w", ErrStorage, err)
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrStorage, s.path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrStorage, s.path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %w", ErrStorage, s.path, err)
	}
	return nil
}
