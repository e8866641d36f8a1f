// Package counter implements the durable, monotonic counters canonical ids
// are drawn from.
package counter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Name identifies a counter.
type Name string

const (
	BR         Name = "br" // bibliographic resources
	RA         Name = "ra" // responsible agents
	Role       Name = "ar" // agent roles
	Embodiment Name = "re" // resource embodiments (page ranges)
	Identifier Name = "id" // identifier entities
)

// Names lists every counter.
var Names = []Name{BR, RA, Role, Embodiment, Identifier}

// ErrCorrupt is returned when an existing counter file cannot be read as a
// number. Numbering must never silently restart.
var ErrCorrupt = errors.New("counter file corrupt")

// Files stores one counter per file ("<dir>/<name>.txt"), each holding the
// last value handed out.
type Files struct {
	dir string
	mu  sync.Mutex
}

// NewFiles returns counters stored under dir.
func NewFiles(dir string) *Files {
	return &Files{dir: dir}
}

// Path returns the file backing the named counter.
func (f *Files) Path(name Name) string {
	return filepath.Join(f.dir, string(name)+".txt")
}

// Current returns the last value handed out. A missing file counts as zero.
func (f *Files) Current(name Name) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read(name)
}

func (f *Files) read(name Name) (int64, error) {
	data, err := os.ReadFile(f.Path(name))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
	}
	line, _, _ := strings.Cut(string(data), "\n")
	v, err := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s: %q", ErrCorrupt, name, strings.TrimSpace(line))
	}
	return v, nil
}

// Reserve hands out n consecutive values and returns the first of them.
// The new high-water mark is on disk before Reserve returns, so a reserved
// value is never handed out again, even after a crash.
func (f *Files) Reserve(name Name, n int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur, err := f.read(name)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return cur + 1, nil
	}
	if err := f.write(name, cur+int64(n)); err != nil {
		return 0, err
	}
	return cur + 1, nil
}

// write replaces the counter file atomically via a synced temp file.
func (f *Files) write(name Name, v int64) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("creating counter directory: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, string(name)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp counter: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(strconv.FormatInt(v, 10) + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing counter %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing counter %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing counter %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, f.Path(name)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing counter %s: %w", name, err)
	}
	return nil
}

// Memory is a non-durable counter set, used for dry runs and tests.
type Memory struct {
	mu     sync.Mutex
	values map[Name]int64
}

// NewMemory returns in-memory counters starting at the given values.
func NewMemory(start map[Name]int64) *Memory {
	values := make(map[Name]int64, len(start))
	for k, v := range start {
		values[k] = v
	}
	return &Memory{values: values}
}

// Snapshot returns in-memory counters starting from the durable values in f.
// Reservations against the snapshot never touch the files.
func Snapshot(f *Files) (*Memory, error) {
	start := make(map[Name]int64, len(Names))
	for _, name := range Names {
		v, err := f.Current(name)
		if err != nil {
			return nil, err
		}
		start[name] = v
	}
	return NewMemory(start), nil
}

// Reserve hands out n consecutive values and returns the first of them.
func (m *Memory) Reserve(name Name, n int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	first := m.values[name] + 1
	if n > 0 {
		m.values[name] += int64(n)
	}
	return first, nil
}

// Current returns the last value handed out.
func (m *Memory) Current(name Name) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[name]
}
