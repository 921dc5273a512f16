package store

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aatumaykin/shuttlewatch/internal/job"
	"github.com/aatumaykin/shuttlewatch/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	return logger.NewNop()
}

func sampleJob(day string, slot string, pax int) job.Job {
	return job.Job{
		Origin:      "WOODLANDS CIQ",
		Destination: "JB SENTRAL",
		Day:         day,
		Month:       "MAR",
		Year:        "2026",
		Time:        slot,
		Passengers:  pax,
		ReturnDay:   day,
		ReturnMonth: "MAR",
		ReturnYear:  "2026",
	}
}

func TestLoad_MissingFile(t *testing.T) {
	s := Load(filepath.Join(t.TempDir(), "jobs.json"), testLogger())
	assert.Empty(t, s.Owners())
	assert.Empty(t, s.Active())
}

func TestLoad_CorruptFileMovedAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	s := Load(path, testLogger())
	assert.Empty(t, s.Active())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	matches, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	// The store stays usable.
	_, err = s.Append("42", sampleJob("05", "08:30", 1))
	require.NoError(t, err)
	assert.Len(t, s.ListActive("42"), 1)
}

func TestReadFile_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	require.NoError(t, os.WriteFile(path, []byte("[1,2,3]"), 0644))

	_, err := ReadFile(path)
	var corrupt *CorruptError
	require.True(t, errors.As(err, &corrupt))
	assert.Equal(t, path, corrupt.Path)
	assert.Error(t, corrupt.Unwrap())
}

func TestReadFile_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0644))

	snap, err := ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "jobs.json")
	n := 3
	snap := Snapshot{
		"42": {
			{ID: "a", Origin: "WOODLANDS CIQ", Destination: "JB SENTRAL", Day: "05", Month: "MAR", Year: "2026",
				Time: "08:30", Passengers: 2, ReturnDay: "05", ReturnMonth: "MAR", ReturnYear: "2026", LastNotified: &n},
			{ID: "b", Origin: "JB SENTRAL", Destination: "WOODLANDS CIQ", Day: "06", Month: "MAR", Year: "2026",
				Time: "10:00", Passengers: 1, ReturnDay: "06", ReturnMonth: "MAR", ReturnYear: "2026", Completed: true},
		},
	}

	require.NoError(t, WriteFile(path, snap))
	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	// No temp files are left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoad_AssignsIDsToLegacyJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	legacy := `{"42":[{"origin":"WOODLANDS CIQ","destination":"JB SENTRAL","day":"05","month":"MAR","year":"2026","time":"08:30","passengers":2,"return_day":"05","return_month":"MAR","return_year":"2026","completed":false}]}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0644))

	s := Load(path, testLogger())
	active := s.ListActive("42")
	require.Len(t, active, 1)
	assert.NotEmpty(t, active[0].ID)

	reloaded := Load(path, testLogger())
	assert.Equal(t, active[0].ID, reloaded.ListActive("42")[0].ID)
}

func TestAppend_PersistsAndAssignsID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	s := Load(path, testLogger())

	j, err := s.Append("42", sampleJob("05", "08:30", 2))
	require.NoError(t, err)
	assert.NotEmpty(t, j.ID)
	require.NotNil(t, j.CreatedAt)

	reloaded := Load(path, testLogger())
	got, ok := reloaded.Get(j.ID)
	require.True(t, ok)
	assert.Equal(t, "42", got.Owner)
	assert.Equal(t, j, got.Job)
}

func TestMarkAllCompleted(t *testing.T) {
	s := Load(filepath.Join(t.TempDir(), "jobs.json"), testLogger())
	_, err := s.Append("42", sampleJob("05", "08:30", 1))
	require.NoError(t, err)
	_, err = s.Append("42", sampleJob("06", "09:45", 1))
	require.NoError(t, err)
	other, err := s.Append("7", sampleJob("07", "11:00", 1))
	require.NoError(t, err)

	n, err := s.MarkAllCompleted("42")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, s.ListActive("42"))
	assert.Len(t, s.Jobs("42"), 2)

	active := s.Active()
	require.Len(t, active, 1)
	assert.Equal(t, other.ID, active[0].Job.ID)

	n, err = s.MarkAllCompleted("42")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = s.MarkAllCompleted("nobody")
	assert.ErrorIs(t, err, ErrOwnerNotFound)
}

func TestRemoveActive(t *testing.T) {
	s := Load(filepath.Join(t.TempDir(), "jobs.json"), testLogger())
	first, _ := s.Append("42", sampleJob("05", "08:30", 1))
	second, _ := s.Append("42", sampleJob("06", "09:45", 1))
	third, _ := s.Append("42", sampleJob("07", "11:00", 1))

	removed, err := s.RemoveActive("42", 2)
	require.NoError(t, err)
	assert.Equal(t, second.ID, removed.ID)

	active := s.ListActive("42")
	require.Len(t, active, 2)
	assert.Equal(t, first.ID, active[0].ID)
	assert.Equal(t, third.ID, active[1].ID)
}

func TestRemoveActive_PositionsCountActiveOnly(t *testing.T) {
	s := Load(filepath.Join(t.TempDir(), "jobs.json"), testLogger())
	done, _ := s.Append("42", sampleJob("05", "08:30", 1))
	keep, _ := s.Append("42", sampleJob("06", "09:45", 1))
	require.NoError(t, s.MarkCompleted(done.ID))

	removed, err := s.RemoveActive("42", 1)
	require.NoError(t, err)
	assert.Equal(t, keep.ID, removed.ID)

	// The completed job is still on record.
	assert.Len(t, s.Jobs("42"), 1)
}

func TestRemoveActive_Errors(t *testing.T) {
	s := Load(filepath.Join(t.TempDir(), "jobs.json"), testLogger())

	_, err := s.RemoveActive("42", 1)
	assert.ErrorIs(t, err, ErrOwnerNotFound)

	j, _ := s.Append("42", sampleJob("05", "08:30", 1))
	_, err = s.RemoveActive("42", 0)
	assert.ErrorIs(t, err, ErrInvalidPosition)
	_, err = s.RemoveActive("42", 2)
	assert.ErrorIs(t, err, ErrInvalidPosition)

	require.NoError(t, s.MarkCompleted(j.ID))
	_, err = s.RemoveActive("42", 1)
	assert.ErrorIs(t, err, ErrNoActiveJobs)
}

func TestMarkCompletedAndIsActive(t *testing.T) {
	s := Load(filepath.Join(t.TempDir(), "jobs.json"), testLogger())
	j, _ := s.Append("42", sampleJob("05", "08:30", 1))

	assert.True(t, s.IsActive(j.ID))
	require.NoError(t, s.MarkCompleted(j.ID))
	assert.False(t, s.IsActive(j.ID))
	require.NoError(t, s.MarkCompleted(j.ID))

	assert.ErrorIs(t, s.MarkCompleted("missing"), ErrJobNotFound)
	assert.False(t, s.IsActive("missing"))
}

func TestRecordNotified(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	s := Load(path, testLogger())
	j, _ := s.Append("42", sampleJob("05", "08:30", 4))

	require.NoError(t, s.RecordNotified(j.ID, 7))

	got, ok := Load(path, testLogger()).Get(j.ID)
	require.True(t, ok)
	require.NotNil(t, got.Job.LastNotified)
	assert.Equal(t, 7, *got.Job.LastNotified)

	assert.ErrorIs(t, s.RecordNotified("missing", 1), ErrJobNotFound)
}

func TestExpireBefore(t *testing.T) {
	s := Load(filepath.Join(t.TempDir(), "jobs.json"), testLogger())
	past, _ := s.Append("42", sampleJob("04", "08:30", 1))
	today, _ := s.Append("42", sampleJob("05", "08:30", 1))
	future, _ := s.Append("7", sampleJob("06", "08:30", 1))

	expired, err := s.ExpireBefore(time.Date(2026, time.March, 5, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "42", expired[0].Owner)
	assert.Equal(t, past.ID, expired[0].Job.ID)

	assert.False(t, s.IsActive(past.ID))
	assert.True(t, s.IsActive(today.ID))
	assert.True(t, s.IsActive(future.ID))
}

func TestMutationFailureKeepsState(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	s := Load(filepath.Join(sub, "jobs.json"), testLogger())

	// The storage directory becomes a regular file, so every write fails.
	require.NoError(t, os.WriteFile(sub, []byte("x"), 0644))
	_, err := s.Append("42", sampleJob("05", "08:30", 1))
	assert.Error(t, err)
	assert.Empty(t, s.Owners())
}

func TestLoad_UnreadableFileMovedAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")
	// A directory at the job path reads back as an I/O error, not as JSON.
	require.NoError(t, os.Mkdir(path, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "keep"), []byte("x"), 0644))

	s := Load(path, testLogger())
	assert.Empty(t, s.Active())

	matches, err := filepath.Glob(path + ".unreadable-*")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	_, err = os.Stat(filepath.Join(matches[0], "keep"))
	assert.NoError(t, err, "the unreadable data is kept aside")

	_, err = s.Append("42", sampleJob("05", "08:30", 1))
	require.NoError(t, err)
	assert.Len(t, Load(path, testLogger()).ListActive("42"), 1)
}

func TestLoad_UnreadableFileThatCannotMoveRefusesWrites(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	s := Load(filepath.Join(blocker, "jobs.json"), testLogger())

	_, err := s.Append("42", sampleJob("05", "08:30", 1))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, s.Save(), ErrUnavailable)
	assert.Empty(t, s.Owners())

	data, err := os.ReadFile(blocker)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestConcurrentMutationsAreNotLost(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	s := Load(path, testLogger())

	const runners = 20
	ids := make([]string, runners)
	for i := range ids {
		j, err := s.Append("42", sampleJob("05", "08:30", 4))
		require.NoError(t, err)
		ids[i] = j.ID
	}

	var wg sync.WaitGroup
	for i := 0; i < runners; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.RecordNotified(ids[i], i+1))
		}()
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				assert.NoError(t, s.MarkCompleted(ids[i]))
			}
		}()
		go func() {
			defer wg.Done()
			_, err := s.Append("7", sampleJob("06", "09:45", 1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, s.Jobs("7"), runners)
	assert.Len(t, s.ListActive("42"), runners/2)
	for i, id := range ids {
		e, ok := s.Get(id)
		require.True(t, ok)
		require.NotNil(t, e.Job.LastNotified)
		assert.Equal(t, i+1, *e.Job.LastNotified)
		assert.Equal(t, i%2 == 0, e.Job.Completed)
	}

	assert.Equal(t, s.Snapshot(), Load(path, testLogger()).Snapshot())
}
