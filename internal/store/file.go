package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aatumaykin/shuttlewatch/internal/job"
)

// Snapshot is the persisted shape: owner -> jobs in creation order.
type Snapshot map[string][]job.Job

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for owner, jobs := range s {
		cp := make([]job.Job, len(jobs))
		for i, j := range jobs {
			cp[i] = j.Clone()
		}
		out[owner] = cp
	}
	return out
}

// ReadFile decodes a job file. A missing or empty file is an empty snapshot.
func ReadFile(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Snapshot{}, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}
	if snap == nil {
		snap = Snapshot{}
	}
	return snap, nil
}

// WriteFile persists snap atomically: the data goes to a temp file in the
// same directory, is synced, then renamed over path.
func WriteFile(path string, snap Snapshot) error {
	if snap == nil {
		snap = Snapshot{}
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal jobs: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary job file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temporary job file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temporary job file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temporary job file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to rename temporary job file: %w", err)
	}
	return nil
}
