// Package store persists upload tasks, buffered chunks and engine metadata so
// that in-flight transfers survive a process restart. Two backends are
// supported, SQLite for the usual single-host case and PostgreSQL when state
// must live off-host; the DSN chooses between them.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/lyceum-cloud/uplink/internal/common"
	"github.com/lyceum-cloud/uplink/internal/cryptox"
	"github.com/lyceum-cloud/uplink/internal/dbx"
	"github.com/lyceum-cloud/uplink/internal/logging"
	"github.com/lyceum-cloud/uplink/internal/uplink/models"
	"github.com/lyceum-cloud/uplink/internal/uplink/store/migrations"
)

// Meta keys reserved by the engine.
const (
	metaHostSecret = "host_secret"
	metaHostSalt   = "host_salt"
)

// Store is the durable record of the upload engine. Task rows mirror the
// manager's in-memory state; chunk rows hold sealed payload slices keyed by
// (task id, chunk index) so a chunked transfer can resume without rereading
// the source file.
type Store interface {
	// SaveTask inserts or fully overwrites a task row. Saving the same
	// task repeatedly is safe.
	SaveTask(ctx context.Context, t *models.UploadTask) error

	// GetTask returns one task or common.ErrTaskNotFound.
	GetTask(ctx context.Context, id string) (*models.UploadTask, error)

	// LoadActive returns tasks whose status is pending, uploading or
	// paused, ordered by creation time.
	LoadActive(ctx context.Context) ([]*models.UploadTask, error)

	// RemoveTask deletes a task row together with any chunks it owns.
	// Removing an unknown id is not an error.
	RemoveTask(ctx context.Context, id string) error

	// SaveChunk inserts or overwrites one chunk. The payload is sealed
	// before it touches the database.
	SaveChunk(ctx context.Context, c *models.Chunk) error

	// LoadChunk returns one unsealed chunk or common.ErrChunkNotFound.
	LoadChunk(ctx context.Context, taskID string, index int) (*models.Chunk, error)

	// DeleteChunks drops all chunks belonging to a task.
	DeleteChunks(ctx context.Context, taskID string) error

	// GetMeta returns the value for a meta key, or nil when absent.
	GetMeta(ctx context.Context, key string) ([]byte, error)

	// SetMeta inserts or overwrites a meta value.
	SetMeta(ctx context.Context, key string, value []byte) error

	Close() error
}

// queries is the dialect seam: the same Store logic runs over either set of
// SQL statements.
type queries interface {
	upsertTask(ctx context.Context, db dbx.DBTX, t *models.UploadTask) error
	getTask(ctx context.Context, db dbx.DBTX, id string) (*models.UploadTask, error)
	loadActive(ctx context.Context, db dbx.DBTX) ([]*models.UploadTask, error)
	deleteTask(ctx context.Context, db dbx.DBTX, id string) error
	upsertChunk(ctx context.Context, db dbx.DBTX, taskID string, index int, data []byte) error
	getChunk(ctx context.Context, db dbx.DBTX, taskID string, index int) ([]byte, error)
	deleteChunks(ctx context.Context, db dbx.DBTX, taskID string) error
	getMeta(ctx context.Context, db dbx.DBTX, key string) ([]byte, error)
	setMeta(ctx context.Context, db dbx.DBTX, key string, value []byte) error
}

type sqlStore struct {
	db     *sql.DB
	q      queries
	sealer *cryptox.Sealer
	log    logging.Logger
}

// Open connects to the database named by dsn, applies schema migrations and
// prepares the chunk sealer. DSNs starting with postgres:// or postgresql://
// select the PostgreSQL backend; everything else is treated as an SQLite DSN.
func Open(ctx context.Context, dsn string, log logging.Logger) (Store, error) {
	if log == nil {
		log = logging.Nop()
	}

	var (
		driver  string
		dialect string
		dir     string
		q       queries
	)
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver, dialect, dir, q = "pgx", "pgx", "postgres", postgresQueries{}
	} else {
		driver, dialect, dir, q = "sqlite", "sqlite3", "sqlite", sqliteQueries{}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == "sqlite" {
		// modernc sqlite does not tolerate concurrent writers on one file.
		db.SetMaxOpenConns(1)
	}

	if err := runMigrations(ctx, db, dialect, dir); err != nil {
		db.Close()
		return nil, err
	}

	s := &sqlStore{db: db, q: q, log: log}
	if err := s.initSealer(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Info(ctx, "task store ready", "backend", dialect)
	return s, nil
}

func runMigrations(ctx context.Context, db *sql.DB, dialect, dir string) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// initSealer loads the per-installation secret and salt from the meta table,
// generating and persisting them on first run.
func (s *sqlStore) initSealer(ctx context.Context) error {
	secret, err := s.GetMeta(ctx, metaHostSecret)
	if err != nil {
		return err
	}
	salt, err := s.GetMeta(ctx, metaHostSalt)
	if err != nil {
		return err
	}

	if secret == nil || salt == nil {
		secret = common.GenerateRandByteArray(32)
		salt = common.GenerateRandByteArray(16)
		if err := s.SetMeta(ctx, metaHostSecret, secret); err != nil {
			return err
		}
		if err := s.SetMeta(ctx, metaHostSalt, salt); err != nil {
			return err
		}
		s.log.Info(ctx, "generated host secret for chunk sealing")
	}

	sealer, err := cryptox.NewSealer(secret, salt)
	if err != nil {
		return fmt.Errorf("init sealer: %w", err)
	}
	s.sealer = sealer
	return nil
}

func (s *sqlStore) SaveTask(ctx context.Context, t *models.UploadTask) error {
	return s.q.upsertTask(ctx, s.db, t)
}

func (s *sqlStore) GetTask(ctx context.Context, id string) (*models.UploadTask, error) {
	return s.q.getTask(ctx, s.db, id)
}

func (s *sqlStore) LoadActive(ctx context.Context) ([]*models.UploadTask, error) {
	return s.q.loadActive(ctx, s.db)
}

func (s *sqlStore) RemoveTask(ctx context.Context, id string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.q.deleteChunks(ctx, tx, id); err != nil {
			return err
		}
		return s.q.deleteTask(ctx, tx, id)
	})
}

func (s *sqlStore) SaveChunk(ctx context.Context, c *models.Chunk) error {
	box, err := s.sealer.Seal(c.Data)
	if err != nil {
		return fmt.Errorf("seal chunk: %w", err)
	}
	return s.q.upsertChunk(ctx, s.db, c.TaskID, c.Index, box)
}

func (s *sqlStore) LoadChunk(ctx context.Context, taskID string, index int) (*models.Chunk, error) {
	box, err := s.q.getChunk(ctx, s.db, taskID, index)
	if err != nil {
		return nil, err
	}
	data, err := s.sealer.Open(box)
	if err != nil {
		return nil, fmt.Errorf("unseal chunk %s/%d: %w", taskID, index, err)
	}
	return &models.Chunk{TaskID: taskID, Index: index, Data: data}, nil
}

func (s *sqlStore) DeleteChunks(ctx context.Context, taskID string) error {
	return s.q.deleteChunks(ctx, s.db, taskID)
}

func (s *sqlStore) GetMeta(ctx context.Context, key string) ([]byte, error) {
	return s.q.getMeta(ctx, s.db, key)
}

func (s *sqlStore) SetMeta(ctx context.Context, key string, value []byte) error {
	return s.q.setMeta(ctx, s.db, key, value)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
