package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lyceum-cloud/uplink/internal/common"
	"github.com/lyceum-cloud/uplink/internal/dbx"
	"github.com/lyceum-cloud/uplink/internal/uplink/models"
)

// postgresQueries holds the PostgreSQL flavour of the store SQL.
type postgresQueries struct{}

func (postgresQueries) upsertTask(ctx context.Context, db dbx.DBTX, t *models.UploadTask) error {
	query := `INSERT INTO tasks (id, file_name, file_size, local_path, dest_prefix, status,
			progress, error, created_at, start_time, end_time, upload_speed,
			chunked, chunk_size, chunk_count, chunks_done)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			file_name = excluded.file_name,
			file_size = excluded.file_size,
			local_path = excluded.local_path,
			dest_prefix = excluded.dest_prefix,
			status = excluded.status,
			progress = excluded.progress,
			error = excluded.error,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			upload_speed = excluded.upload_speed,
			chunked = excluded.chunked,
			chunk_size = excluded.chunk_size,
			chunk_count = excluded.chunk_count,
			chunks_done = excluded.chunks_done
	`
	_, err := db.ExecContext(ctx, query,
		t.ID, t.FileName, t.FileSize, t.LocalPath, t.DestPrefix, t.Status,
		t.Progress, t.Error, t.CreatedAt, t.StartTime, t.EndTime, t.UploadSpeed,
		t.Chunked, t.ChunkSize, t.ChunkCount, t.ChunksDone)
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}
	return nil
}

func (postgresQueries) getTask(ctx context.Context, db dbx.DBTX, id string) (*models.UploadTask, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	t, err := scanTask(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select task: %w", err)
	}
	return t, nil
}

func (postgresQueries) loadActive(ctx context.Context, db dbx.DBTX) ([]*models.UploadTask, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE status IN ('pending', 'uploading', 'paused')
		ORDER BY created_at`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select active tasks: %w", err)
	}
	return collectTasks(rows)
}

func (postgresQueries) deleteTask(ctx context.Context, db dbx.DBTX, id string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

func (postgresQueries) upsertChunk(ctx context.Context, db dbx.DBTX, taskID string, index int, data []byte) error {
	query := `INSERT INTO chunks (task_id, idx, data) VALUES ($1, $2, $3)
		ON CONFLICT (task_id, idx) DO UPDATE SET data = excluded.data`
	if _, err := db.ExecContext(ctx, query, taskID, index, data); err != nil {
		return fmt.Errorf("failed to upsert chunk: %w", err)
	}
	return nil
}

func (postgresQueries) getChunk(ctx context.Context, db dbx.DBTX, taskID string, index int) ([]byte, error) {
	var data []byte
	row := db.QueryRowContext(ctx, `SELECT data FROM chunks WHERE task_id = $1 AND idx = $2`, taskID, index)
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrChunkNotFound
		}
		return nil, fmt.Errorf("failed to select chunk: %w", err)
	}
	return data, nil
}

func (postgresQueries) deleteChunks(ctx context.Context, db dbx.DBTX, taskID string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM chunks WHERE task_id = $1`, taskID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func (postgresQueries) getMeta(ctx context.Context, db dbx.DBTX, key string) ([]byte, error) {
	var value []byte
	row := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = $1`, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to select meta: %w", err)
	}
	return value, nil
}

func (postgresQueries) setMeta(ctx context.Context, db dbx.DBTX, key string, value []byte) error {
	query := `INSERT INTO meta (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`
	if _, err := db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to upsert meta: %w", err)
	}
	return nil
}
