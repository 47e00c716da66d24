package store

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyceum-cloud/uplink/internal/common"
	"github.com/lyceum-cloud/uplink/internal/uplink/models"
)

var storeTestSeq int

// setupStore opens a Store over a fresh shared-cache in-memory SQLite
// database and returns it together with a raw handle on the same database
// for assertions that bypass the Store API.
func setupStore(t *testing.T) (Store, *sql.DB) {
	t.Helper()

	storeTestSeq++
	dsn := fmt.Sprintf("file:store_tests_%d?mode=memory&cache=shared", storeTestSeq)

	s, err := Open(context.Background(), dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	raw, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	raw.SetMaxOpenConns(1)
	t.Cleanup(func() { raw.Close() })

	return s, raw
}

func sampleTask(id string) *models.UploadTask {
	return &models.UploadTask{
		ID:         id,
		FileName:   "report.csv",
		FileSize:   1234,
		LocalPath:  "/tmp/report.csv",
		DestPrefix: "docs/",
		Status:     models.StatusPending,
		CreatedAt:  1700000000000,
	}
}

func TestSaveTaskRoundtrip(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	task := sampleTask("t1")
	require.NoError(t, s.SaveTask(ctx, task))

	got, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, task, got)
}

func TestSaveTaskIdempotent(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	task := sampleTask("t1")
	require.NoError(t, s.SaveTask(ctx, task))

	task.Status = models.StatusUploading
	task.Progress = 42
	task.StartTime = 1700000001000
	require.NoError(t, s.SaveTask(ctx, task))
	require.NoError(t, s.SaveTask(ctx, task))

	got, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploading, got.Status)
	assert.Equal(t, 42, got.Progress)

	active, err := s.LoadActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestGetTaskNotFound(t *testing.T) {
	s, _ := setupStore(t)

	_, err := s.GetTask(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrTaskNotFound)
}

func TestLoadActive(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	statuses := []models.TaskStatus{
		models.StatusPending, models.StatusUploading, models.StatusPaused,
		models.StatusCompleted, models.StatusFailed,
	}
	for i, st := range statuses {
		task := sampleTask(fmt.Sprintf("t%d", i))
		task.Status = st
		task.CreatedAt = int64(1700000000000 + i)
		require.NoError(t, s.SaveTask(ctx, task))
	}

	active, err := s.LoadActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, "t0", active[0].ID)
	assert.Equal(t, "t1", active[1].ID)
	assert.Equal(t, "t2", active[2].ID)
}

func TestRemoveTaskCascadesChunks(t *testing.T) {
	s, raw := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTask(ctx, sampleTask("t1")))
	require.NoError(t, s.SaveChunk(ctx, &models.Chunk{TaskID: "t1", Index: 0, Data: []byte("aaaa")}))
	require.NoError(t, s.SaveChunk(ctx, &models.Chunk{TaskID: "t1", Index: 1, Data: []byte("bbbb")}))

	require.NoError(t, s.RemoveTask(ctx, "t1"))

	_, err := s.GetTask(ctx, "t1")
	assert.ErrorIs(t, err, common.ErrTaskNotFound)

	var n int
	require.NoError(t, raw.QueryRowContext(ctx,
		`SELECT count(*) FROM chunks WHERE task_id = ?`, "t1").Scan(&n))
	assert.Equal(t, 0, n)

	// removing again is a no-op
	assert.NoError(t, s.RemoveTask(ctx, "t1"))
}

func TestChunkSealedAtRest(t *testing.T) {
	s, raw := setupStore(t)
	ctx := context.Background()

	plain := []byte("chunk payload bytes")
	require.NoError(t, s.SaveChunk(ctx, &models.Chunk{TaskID: "t1", Index: 3, Data: plain}))

	got, err := s.LoadChunk(ctx, "t1", 3)
	require.NoError(t, err)
	assert.Equal(t, plain, got.Data)

	var stored []byte
	require.NoError(t, raw.QueryRowContext(ctx,
		`SELECT data FROM chunks WHERE task_id = ? AND idx = ?`, "t1", 3).Scan(&stored))
	assert.False(t, bytes.Contains(stored, plain), "chunk stored in the clear")
}

func TestChunkOverwriteAndDelete(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveChunk(ctx, &models.Chunk{TaskID: "t1", Index: 0, Data: []byte("old")}))
	require.NoError(t, s.SaveChunk(ctx, &models.Chunk{TaskID: "t1", Index: 0, Data: []byte("new")}))

	got, err := s.LoadChunk(ctx, "t1", 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got.Data)

	require.NoError(t, s.DeleteChunks(ctx, "t1"))

	_, err = s.LoadChunk(ctx, "t1", 0)
	assert.ErrorIs(t, err, common.ErrChunkNotFound)
}

func TestMeta(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	got, err := s.GetMeta(ctx, "nothing")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.SetMeta(ctx, "k", []byte("v1")))
	require.NoError(t, s.SetMeta(ctx, "k", []byte("v2")))

	got, err = s.GetMeta(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestOpenBootstrapsHostSecret(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	secret, err := s.GetMeta(ctx, metaHostSecret)
	require.NoError(t, err)
	assert.Len(t, secret, 32)

	salt, err := s.GetMeta(ctx, metaHostSalt)
	require.NoError(t, err)
	assert.Len(t, salt, 16)
}
