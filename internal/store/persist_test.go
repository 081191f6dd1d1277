package store

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sessionstore/internal/audit"
	"github.com/roach88/sessionstore/internal/record"
	"github.com/roach88/sessionstore/internal/snapshot"
)

func TestBatch_ThresholdTriggersExactlyOneSave(t *testing.T) {
	for _, size := range []int{1, 3, DefaultBatchSize} {
		t.Run(fmt.Sprintf("size=%d", size), func(t *testing.T) {
			s, _ := newTestStore(t, false, WithBatchSize(size))
			s.Add(sampleInput())

			for i := 1; i < size; i++ {
				require.True(t, s.Update(record.Fields{"q3": i}))
				assert.Equal(t, i, s.BatchCount())
			}
			assert.Zero(t, countEvents(s, audit.EventSaved))
			assert.NoFileExists(t, s.Target().Tabular)

			require.True(t, s.Update(record.Fields{"q4": 1}))
			assert.Equal(t, 1, countEvents(s, audit.EventSaved))
			assert.Zero(t, s.BatchCount())
			assert.FileExists(t, s.Target().Tabular)
		})
	}
}

func TestWithBatchSize_IgnoresNonPositive(t *testing.T) {
	s := New(WithBatchSize(0), WithBatchSize(-3))
	assert.Equal(t, DefaultBatchSize, s.BatchSize())
}

func TestSave_EmptyDatasetIsSkipped(t *testing.T) {
	sink, events := collectSink()
	s, _ := newTestStore(t, true, WithSink(sink))

	assert.False(t, s.Save(true))

	assert.NoFileExists(t, s.Target().Tabular)
	assert.Equal(t, audit.EventSaveSkipped, (*events)[len(*events)-1].Type)
}

func TestSave_InactiveRequiresForce(t *testing.T) {
	s, _ := newTestStore(t, false)
	s.Add(sampleInput())
	require.True(t, s.Abandon())

	assert.False(t, s.Save(false))
	assert.NoFileExists(t, s.Target().Tabular)

	assert.True(t, s.Save(true))
	assert.FileExists(t, s.Target().Tabular)
}

func TestSave_WritesBothFormatsAtomically(t *testing.T) {
	s, _ := newTestStore(t, false)
	s.Add(sampleInput())
	s.Update(record.Fields{"q3": 3})

	require.True(t, s.Save(false))
	require.True(t, s.Save(false))

	entries, err := os.ReadDir(filepath.Dir(s.Target().Tabular))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{
		filepath.Base(s.Target().Tabular),
		filepath.Base(s.Target().Binary),
	}, names)

	want := s.Data()
	for _, path := range s.Target().Paths() {
		got, err := snapshot.Load(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}
}

func TestSave_FailureIsLoggedAndKeepsCounter(t *testing.T) {
	s, _ := newTestStore(t, false, WithBatchSize(2))
	s.Add(sampleInput())
	s.Update(record.Fields{"q3": 1})

	// Replace the output directory with a file so writes fail.
	dir := filepath.Dir(s.Target().Tabular)
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, []byte("blocked"), 0o644))

	assert.True(t, s.Update(record.Fields{"q4": 1}), "the update itself succeeded")
	assert.Equal(t, 2, s.BatchCount(), "counter is only reset by a successful save")
	assert.Equal(t, 1, countEvents(s, audit.EventSaveError))
	assert.ErrorIs(t, s.LastError(), ErrPersistence)
	assert.True(t, s.Stats().LastSaveTime.IsZero())
}

func TestSave_UpdatesLastSaveTime(t *testing.T) {
	s, clock := newTestStore(t, false)
	s.Add(sampleInput())

	before := clock.Peek()
	require.True(t, s.Save(false))

	last := s.Stats().LastSaveTime
	assert.False(t, last.IsZero())
	assert.False(t, last.Before(before))
}

func TestScenario_BatchedSessionLifecycle(t *testing.T) {
	s, _ := newTestStore(t, true, WithBatchSize(5))

	id := s.Add(sampleInput())
	require.NotEmpty(t, id)
	assert.Equal(t, 1, countEvents(s, audit.EventSaved), "add saves immediately with backup")

	saved, err := snapshot.ReadCSV(s.Target().Tabular)
	require.NoError(t, err)
	require.Equal(t, 1, saved.Len())

	updates := []record.Fields{
		{"q3": 3},
		{"q4": 4},
		{"q5": 5},
		{"ability": 0.4, "std_error": 0.3},
	}
	for _, f := range updates {
		require.True(t, s.Update(f))
	}
	assert.Equal(t, 4, s.BatchCount())
	assert.Equal(t, 1, countEvents(s, audit.EventSaved))

	require.True(t, s.Update(record.Fields{"administered_items": 5}))
	assert.Zero(t, s.BatchCount())
	assert.Equal(t, 2, countEvents(s, audit.EventSaved))

	final := s.Finalize(nil)
	assert.Equal(t, 3, countEvents(s, audit.EventSaved))
	assert.Equal(t, 1, countEvents(s, audit.EventFinalized))
	assert.False(t, s.Active())

	for _, path := range s.Target().Paths() {
		persisted, err := snapshot.Load(path)
		require.NoError(t, err, path)
		require.Equal(t, 1, persisted.Len(), path)
		assert.Equal(t, record.StatusCompleted, persisted.Records[0].Status, path)
		assert.Equal(t, final, persisted, path)
	}
}
