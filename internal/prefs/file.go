package prefs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileBackend keeps State as JSON in <dataDir>/prefs.json.
type FileBackend struct {
	dataDir string
	maxAge  time.Duration
	now     func() time.Time
}

// NewFileBackend creates a file backend. maxAge <= 0 uses DefaultMaxAge.
func NewFileBackend(dataDir string, maxAge time.Duration) *FileBackend {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &FileBackend{dataDir: dataDir, maxAge: maxAge, now: time.Now}
}

// configFile returns the path to the prefs file.
func (b *FileBackend) configFile() string {
	return filepath.Join(b.dataDir, "prefs.json")
}

// Load reads the prefs file. A missing, invalid or expired file loads
// nothing.
func (b *FileBackend) Load(ctx context.Context) (State, bool, error) {
	data, err := os.ReadFile(b.configFile())
	if err != nil {
		return State{}, false, nil // File doesn't exist yet
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, false, nil
	}
	if b.now().Sub(st.SavedAt) > b.maxAge {
		os.Remove(b.configFile())
		return State{}, false, nil
	}
	return st, true, nil
}

// Save writes the prefs file.
func (b *FileBackend) Save(ctx context.Context, st State) error {
	if err := os.MkdirAll(b.dataDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(b.configFile(), data, 0644)
}

// MemoryBackend keeps State in process memory; nothing survives a restart.
type MemoryBackend struct {
	mu sync.Mutex
	st State
	ok bool
}

func (b *MemoryBackend) Load(ctx context.Context) (State, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.st, b.ok, nil
}

func (b *MemoryBackend) Save(ctx context.Context, st State) error {
	b.mu.Lock()
	b.st, b.ok = st, true
	b.mu.Unlock()
	return nil
}
