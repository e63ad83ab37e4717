package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// dateCheckpointLayout is the format date checkpoints are stored in.
const dateCheckpointLayout = "2006-01-02"

// Checkpoints persists harvester progress under a state directory so an
// interrupted run resumes where it stopped instead of starting over.
// Each harvester names a scope (its outlet) and tracks two things per
// section: a checkpoint value and the set of already processed IDs.
//
// Layout:
//
//	{stateDir}/{scope}/checkpoints/{section}.txt
//	{stateDir}/{scope}/ids/{section}.json
type Checkpoints struct {
	stateDir string
	mu       sync.Mutex
}

// NewCheckpoints creates the store rooted at stateDir.
func NewCheckpoints(stateDir string) (*Checkpoints, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Checkpoints{stateDir: stateDir}, nil
}

// SectionCheckpoint returns the stored checkpoint for scope/section.
// The second return is false when no checkpoint exists yet.
func (c *Checkpoints) SectionCheckpoint(scope, section string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.checkpointPath(scope, section))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

// SaveSectionCheckpoint stores the checkpoint value for scope/section.
func (c *Checkpoints) SaveSectionCheckpoint(scope, section, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.checkpointPath(scope, section)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return atomicWriteFile(path, []byte(value))
}

// DateCheckpoint interprets the section checkpoint as a date.
func (c *Checkpoints) DateCheckpoint(scope, section string) (time.Time, bool, error) {
	raw, ok, err := c.SectionCheckpoint(scope, section)
	if err != nil || !ok {
		return time.Time{}, false, err
	}

	t, err := time.Parse(dateCheckpointLayout, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid date checkpoint %q: %w", raw, err)
	}
	return t, true, nil
}

// SaveDateCheckpoint stores a date as the section checkpoint.
func (c *Checkpoints) SaveDateCheckpoint(scope, section string, t time.Time) error {
	return c.SaveSectionCheckpoint(scope, section, t.Format(dateCheckpointLayout))
}

// OffsetCheckpoint interprets the section checkpoint as an integer
// offset. Harvesters store a negative offset to mark a section as
// fully walked.
func (c *Checkpoints) OffsetCheckpoint(scope, section string) (int, bool, error) {
	raw, ok, err := c.SectionCheckpoint(scope, section)
	if err != nil || !ok {
		return 0, false, err
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid offset checkpoint %q: %w", raw, err)
	}
	return n, true, nil
}

// SaveOffsetCheckpoint stores an integer offset as the section
// checkpoint.
func (c *Checkpoints) SaveOffsetCheckpoint(scope, section string, offset int) error {
	return c.SaveSectionCheckpoint(scope, section, strconv.Itoa(offset))
}

// ProcessedIDs loads the set of IDs already processed for a section.
// A missing file yields an empty set.
func (c *Checkpoints) ProcessedIDs(scope, section string) (map[string]bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.idsPath(scope, section))
	if os.IsNotExist(err) {
		return make(map[string]bool), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read processed IDs: %w", err)
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse processed IDs: %w", err)
	}

	ids := make(map[string]bool, len(list))
	for _, id := range list {
		ids[id] = true
	}
	return ids, nil
}

// SaveProcessedIDs persists the set as a sorted JSON array so repeated
// saves with the same content produce identical files.
func (c *Checkpoints) SaveProcessedIDs(scope, section string, ids map[string]bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := make([]string, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	sort.Strings(list)

	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to marshal processed IDs: %w", err)
	}

	path := c.idsPath(scope, section)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create IDs directory: %w", err)
	}
	return atomicWriteFile(path, data)
}

// ClearSection drops the checkpoint and processed IDs for a section.
func (c *Checkpoints) ClearSection(scope, section string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, path := range []string{c.checkpointPath(scope, section), c.idsPath(scope, section)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	return nil
}

func (c *Checkpoints) checkpointPath(scope, section string) string {
	return filepath.Join(c.stateDir, scope, "checkpoints", sanitizeStateName(section)+".txt")
}

func (c *Checkpoints) idsPath(scope, section string) string {
	return filepath.Join(c.stateDir, scope, "ids", sanitizeStateName(section)+".json")
}

// sanitizeStateName keeps section names filesystem-safe.
func sanitizeStateName(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", " ", "_")
	return replacer.Replace(name)
}

// atomicWriteFile writes via a temp file and rename so readers never
// observe a partial state file.
func atomicWriteFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move state file into place: %w", err)
	}
	return nil
}
