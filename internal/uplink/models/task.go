// Package models defines the records tracked by the upload engine.
package models

// TaskStatus is the lifecycle state of an upload task.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusUploading TaskStatus = "uploading"
	StatusPaused    TaskStatus = "paused"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// UploadTask is one tracked file transfer. The manager owns the
// authoritative copy; the store mirrors it for crash recovery.
//
// FileName is the name the object will have remotely, so it already reflects
// any collision rename. LocalPath points at the source file and is persisted
// so a resume after restart can reopen it.
type UploadTask struct {
	ID         string     `json:"id"`
	FileName   string     `json:"fileName"`
	FileSize   int64      `json:"fileSize"`
	LocalPath  string     `json:"localPath"`
	DestPrefix string     `json:"destPrefix"`
	Status     TaskStatus `json:"status"`
	Progress   int        `json:"progress"`
	Error      string     `json:"error,omitempty"`

	// Timestamps in milliseconds since the epoch. CreatedAt orders task
	// lists; StartTime/EndTime bracket the transfer itself.
	CreatedAt int64 `json:"createdAt"`
	StartTime int64 `json:"startTime,omitempty"`
	EndTime   int64 `json:"endTime,omitempty"`

	// UploadSpeed is the derived transfer rate in bytes/sec, recomputed on
	// each progress event while uploading.
	UploadSpeed float64 `json:"uploadSpeed,omitempty"`

	// Chunked transfer bookkeeping. ChunksDone counts contiguously
	// completed chunks, persisted so an interrupted transfer can resume
	// without the source file.
	Chunked    bool  `json:"chunked"`
	ChunkSize  int64 `json:"chunkSize,omitempty"`
	ChunkCount int   `json:"chunkCount,omitempty"`
	ChunksDone int   `json:"chunksDone,omitempty"`
}

// Key is the full remote object key for this task.
func (t *UploadTask) Key() string {
	if t.DestPrefix == "" {
		return t.FileName
	}
	return t.DestPrefix + t.FileName
}

// Active reports whether the task still occupies the engine: queued,
// transferring or paused.
func (t *UploadTask) Active() bool {
	switch t.Status {
	case StatusPending, StatusUploading, StatusPaused:
		return true
	}
	return false
}

// Clone returns a copy safe to hand to observers.
func (t *UploadTask) Clone() UploadTask {
	return *t
}
