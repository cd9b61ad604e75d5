// Package engine implements the Item Store backends for the Safari board.
package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/celerix-dev/safari/pkg/schema"
)

// Snapshot is the on-disk form of one universe.
type Snapshot struct {
	Version uint64              `json:"version"`
	Items   []schema.ActionItem `json:"items"`
}

// Persistence handles the disk I/O for the MemStore
type Persistence struct {
	DataDir string
	mu      sync.Mutex // Protects concurrent writes to the filesystem
	written map[string]uint64
}

// NewPersistence initializes a persistence handler.
func NewPersistence(dir string) (*Persistence, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Persistence{DataDir: dir, written: make(map[string]uint64)}, nil
}

func (p *Persistence) path(universe string) string {
	return filepath.Join(p.DataDir, fmt.Sprintf("%s.json", universe))
}

// Save writes a universe snapshot atomically. Snapshots older than the last
// one written are dropped, so out-of-order background saves never regress the file.
func (p *Persistence) Save(universe string, snap Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if last, ok := p.written[universe]; ok && snap.Version <= last {
		return nil
	}

	filePath := p.path(universe)
	tempPath := filePath + ".tmp"

	bytes, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(tempPath, bytes, 0644); err != nil {
		return err
	}
	// Rename is atomic on POSIX: readers see the old file or the new one.
	if err := os.Rename(tempPath, filePath); err != nil {
		return err
	}
	p.written[universe] = snap.Version
	return nil
}

// Load reads a universe snapshot. A missing file is an empty universe.
func (p *Persistence) Load(universe string) (Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	content, err := os.ReadFile(p.path(universe))
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	if err := json.Unmarshal(content, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode %s: %w", p.path(universe), err)
	}
	p.written[universe] = snap.Version
	return snap, nil
}
