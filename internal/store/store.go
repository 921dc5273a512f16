// Package store keeps the set of monitoring jobs and mirrors it to a JSON file.
// The Store is the only authority for whether a job exists and whether it has
// completed; runners keep working copies and write changes back through it.
//
// Every mutation is applied to a copy, persisted atomically, and only then made
// visible, so the file on disk and the in-memory view never diverge.
package store

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/aatumaykin/shuttlewatch/internal/job"
	"github.com/aatumaykin/shuttlewatch/internal/logger"
)

const (
	// DefaultFilename is the job file name used when only a directory is configured.
	DefaultFilename = "jobs.json"
)

// Entry pairs a job with its owner.
type Entry struct {
	Owner string
	Job   job.Job
}

// Store serializes all job mutations behind a single mutex.
type Store struct {
	mu   sync.RWMutex
	path string
	data Snapshot
	// blocked is set when the file could not be read or moved aside.
	blocked error
	logger  *logger.Logger
	now     func() time.Time
}

// Load reads the job file at path. It never fails: a missing file gives an
// empty store, and a corrupt or unreadable one is moved aside and replaced by
// an empty store. If the file cannot be moved aside, every write returns
// ErrUnavailable.
// Jobs saved before ids existed get one here and the file is rewritten.
func Load(path string, log *logger.Logger) *Store {
	s := &Store{
		path:   path,
		data:   Snapshot{},
		logger: log,
		now:    time.Now,
	}

	snap, err := ReadFile(path)
	if err != nil {
		kind := "unreadable"
		var corrupt *CorruptError
		if errors.As(err, &corrupt) {
			kind = "corrupt"
		}
		if qerr := s.quarantine(kind); qerr != nil {
			// Writing now would replace jobs we could not read.
			s.blocked = fmt.Errorf("%w: %v", ErrUnavailable, err)
			log.Error("job file unreadable and could not be moved aside, refusing writes", qerr,
				logger.Field{Key: "file", Value: path},
				logger.Field{Key: "reason", Value: err.Error()})
			return s
		}
		log.Warn("job file unreadable, starting with an empty store",
			logger.Field{Key: "file", Value: path},
			logger.Field{Key: "reason", Value: err.Error()})
		return s
	}
	s.data = snap

	assigned := 0
	for owner, jobs := range s.data {
		for i := range jobs {
			if jobs[i].ID == "" {
				jobs[i].ID = job.NewID()
				assigned++
			}
		}
		s.data[owner] = jobs
	}
	if assigned > 0 {
		if err := WriteFile(s.path, s.data); err != nil {
			log.Error("failed to persist assigned job ids", err,
				logger.Field{Key: "file", Value: path})
		} else {
			log.Info("assigned ids to legacy jobs",
				logger.Field{Key: "count", Value: assigned})
		}
	}

	log.Debug("job store loaded",
		logger.Field{Key: "file", Value: path},
		logger.Field{Key: "owners", Value: len(s.data)})

	return s
}

// quarantine renames the job file to <path>.<kind>-<unix>.
func (s *Store) quarantine(kind string) error {
	target := fmt.Sprintf("%s.%s-%d", s.path, kind, time.Now().Unix())
	if err := os.Rename(s.path, target); err != nil {
		return fmt.Errorf("failed to move %s job file aside: %w", kind, err)
	}
	s.logger.Warn("job file moved aside",
		logger.Field{Key: "from", Value: s.path},
		logger.Field{Key: "to", Value: target})
	return nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Save writes the whole store to disk.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blocked != nil {
		return s.blocked
	}
	if err := WriteFile(s.path, s.data); err != nil {
		s.logger.Error("failed to save job store", err,
			logger.Field{Key: "file", Value: s.path})
		return err
	}
	return nil
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}

// mutate applies fn to a copy of the data, persists it and swaps it in.
// fn returning changed=false skips the write.
func (s *Store) mutate(fn func(next Snapshot) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blocked != nil {
		return s.blocked
	}

	next := s.data.Clone()
	changed, err := fn(next)
	if err != nil || !changed {
		return err
	}

	if err := WriteFile(s.path, next); err != nil {
		s.logger.Error("failed to persist job store", err,
			logger.Field{Key: "file", Value: s.path})
		return err
	}
	s.data = next
	return nil
}

// Append adds j to the end of owner's jobs, assigning an id and creation time
// when missing, and returns the stored job.
func (s *Store) Append(owner string, j job.Job) (job.Job, error) {
	if j.ID == "" {
		j.ID = job.NewID()
	}
	if j.CreatedAt == nil {
		now := s.now().UTC().Truncate(time.Second)
		j.CreatedAt = &now
	}

	err := s.mutate(func(next Snapshot) (bool, error) {
		next[owner] = append(next[owner], j.Clone())
		return true, nil
	})
	if err != nil {
		return job.Job{}, err
	}

	s.logger.Debug("job appended",
		logger.Field{Key: "owner", Value: owner},
		logger.Field{Key: "job_id", Value: j.ID})
	return j, nil
}

// MarkAllCompleted completes every job of owner and returns how many were
// still active.
func (s *Store) MarkAllCompleted(owner string) (int, error) {
	count := 0
	err := s.mutate(func(next Snapshot) (bool, error) {
		jobs, ok := next[owner]
		if !ok {
			return false, ErrOwnerNotFound
		}
		for i := range jobs {
			if !jobs[i].Completed {
				jobs[i].Completed = true
				count++
			}
		}
		return count > 0, nil
	})
	return count, err
}

// MarkCompleted completes a single job.
func (s *Store) MarkCompleted(id string) error {
	return s.mutate(func(next Snapshot) (bool, error) {
		j := next.find(id)
		if j == nil {
			return false, ErrJobNotFound
		}
		if j.Completed {
			return false, nil
		}
		j.Completed = true
		return true, nil
	})
}

// RecordNotified stores the seat count last reported for a job.
func (s *Store) RecordNotified(id string, seats int) error {
	return s.mutate(func(next Snapshot) (bool, error) {
		j := next.find(id)
		if j == nil {
			return false, ErrJobNotFound
		}
		if j.LastNotified != nil && *j.LastNotified == seats {
			return false, nil
		}
		j.LastNotified = &seats
		return true, nil
	})
}

// RemoveActive deletes the job at the 1-based position among owner's active
// jobs and returns it.
func (s *Store) RemoveActive(owner string, position int) (job.Job, error) {
	var removed job.Job
	err := s.mutate(func(next Snapshot) (bool, error) {
		jobs, ok := next[owner]
		if !ok {
			return false, ErrOwnerNotFound
		}
		active := activeOf(jobs)
		if len(active) == 0 {
			return false, ErrNoActiveJobs
		}
		if position < 1 || position > len(active) {
			return false, fmt.Errorf("%w: %d (have %d)", ErrInvalidPosition, position, len(active))
		}
		removed = active[position-1]
		next[owner] = slices.DeleteFunc(jobs, func(j job.Job) bool {
			return j.ID == removed.ID
		})
		return true, nil
	})
	if err != nil {
		return job.Job{}, err
	}

	s.logger.Debug("job removed",
		logger.Field{Key: "owner", Value: owner},
		logger.Field{Key: "job_id", Value: removed.ID})
	return removed, nil
}

// ExpireBefore completes every active job whose travel date is before day and
// returns them.
func (s *Store) ExpireBefore(day time.Time) ([]Entry, error) {
	cutoff := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	var expired []Entry
	err := s.mutate(func(next Snapshot) (bool, error) {
		for owner, jobs := range next {
			for i := range jobs {
				if jobs[i].Completed {
					continue
				}
				d, err := jobs[i].Date()
				if err != nil || !d.Before(cutoff) {
					continue
				}
				jobs[i].Completed = true
				expired = append(expired, Entry{Owner: owner, Job: jobs[i].Clone()})
			}
		}
		return len(expired) > 0, nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// ListActive returns owner's non-completed jobs in creation order.
func (s *Store) ListActive(owner string) []job.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return activeOf(s.data[owner])
}

// Jobs returns all of owner's jobs in creation order.
func (s *Store) Jobs(owner string) []job.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]job.Job, 0, len(s.data[owner]))
	for _, j := range s.data[owner] {
		jobs = append(jobs, j.Clone())
	}
	return jobs
}

// Owners returns every owner with at least one job, sorted.
func (s *Store) Owners() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owners := make([]string, 0, len(s.data))
	for owner := range s.data {
		owners = append(owners, owner)
	}
	slices.Sort(owners)
	return owners
}

// Active returns every non-completed job, grouped by owner in sorted order.
func (s *Store) Active() []Entry {
	var entries []Entry
	for _, owner := range s.Owners() {
		for _, j := range s.ListActive(owner) {
			entries = append(entries, Entry{Owner: owner, Job: j})
		}
	}
	return entries
}

// Get looks a job up by id.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for owner, jobs := range s.data {
		for _, j := range jobs {
			if j.ID == id {
				return Entry{Owner: owner, Job: j.Clone()}, true
			}
		}
	}
	return Entry{}, false
}

// IsActive reports whether the job still exists and is not completed.
func (s *Store) IsActive(id string) bool {
	e, ok := s.Get(id)
	return ok && !e.Job.Completed
}

func (snap Snapshot) find(id string) *job.Job {
	for _, jobs := range snap {
		for i := range jobs {
			if jobs[i].ID == id {
				return &jobs[i]
			}
		}
	}
	return nil
}

func activeOf(jobs []job.Job) []job.Job {
	active := make([]job.Job, 0, len(jobs))
	for _, j := range jobs {
		if !j.Completed {
			active = append(active, j.Clone())
		}
	}
	return active
}
