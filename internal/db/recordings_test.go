package db

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndGetRecording(t *testing.T) {
	db := newTestDB(t)

	rec := &Recording{
		Name:     "nod",
		Geometry: "mini6",
		MotorIDs: []int{1, 2, 3},
		Cadence:  10 * time.Millisecond,
		Frames:   [][]float64{{0.1, -0.2, 0.3}, {0.15, -0.25, 0.35}},
	}
	require.NoError(t, db.SaveRecording(rec))
	require.NotEmpty(t, rec.ID)
	require.False(t, rec.CreatedAt.IsZero())

	got, err := db.GetRecording(rec.ID)
	require.NoError(t, err)

	assert.Equal(t, rec.Name, got.Name)
	assert.Equal(t, rec.Geometry, got.Geometry)
	assert.Equal(t, rec.Cadence, got.Cadence)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	if diff := cmp.Diff(rec.MotorIDs, got.MotorIDs); diff != "" {
		t.Errorf("motor ids mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(rec.Frames, got.Frames); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveRecording_Empty(t *testing.T) {
	db := newTestDB(t)

	rec := &Recording{MotorIDs: []int{1, 2}}
	require.NoError(t, db.SaveRecording(rec))

	got, err := db.GetRecording(rec.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Frames)
}

func TestSaveRecording_RejectsRaggedFrames(t *testing.T) {
	db := newTestDB(t)

	err := db.SaveRecording(&Recording{MotorIDs: []int{1, 2}, Frames: [][]float64{{1, 2}, {3}}})
	require.Error(t, err)

	list, err := db.ListRecordings()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSaveRecording_DuplicateID(t *testing.T) {
	db := newTestDB(t)

	rec := &Recording{ID: "fixed", MotorIDs: []int{1}}
	require.NoError(t, db.SaveRecording(rec))
	assert.Error(t, db.SaveRecording(&Recording{ID: "fixed", MotorIDs: []int{1}}))
}

func TestListRecordings_Summary(t *testing.T) {
	db := newTestDB(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"first", "second", "third"} {
		frames := make([][]float64, i+1)
		for j := range frames {
			frames[j] = []float64{float64(j), -float64(j)}
		}
		require.NoError(t, db.SaveRecording(&Recording{
			Name:      name,
			MotorIDs:  []int{1, 2},
			Cadence:   10 * time.Millisecond,
			Frames:    frames,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	list, err := db.ListRecordings()
	require.NoError(t, err)
	require.Len(t, list, 3)

	names := []string{list[0].Name, list[1].Name, list[2].Name}
	assert.Equal(t, []string{"third", "second", "first"}, names)
	assert.Equal(t, 3, list[0].FrameCount)
	assert.Equal(t, []int{1, 2}, list[0].MotorIDs)
	assert.Equal(t, 10*time.Millisecond, list[0].Cadence)
}

func TestRenameAndDeleteRecording(t *testing.T) {
	db := newTestDB(t)

	rec := &Recording{Name: "old", MotorIDs: []int{1}}
	require.NoError(t, db.SaveRecording(rec))

	require.NoError(t, db.RenameRecording(rec.ID, "new"))
	got, err := db.GetRecording(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Name)

	require.NoError(t, db.DeleteRecording(rec.ID))
	_, err = db.GetRecording(rec.ID)
	assert.ErrorIs(t, err, ErrRecordingNotFound)

	assert.ErrorIs(t, db.DeleteRecording(rec.ID), ErrRecordingNotFound)
	assert.ErrorIs(t, db.RenameRecording(rec.ID, "x"), ErrRecordingNotFound)
}
