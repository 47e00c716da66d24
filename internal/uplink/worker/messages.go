package worker

import "github.com/lyceum-cloud/uplink/internal/uplink/models"

// Command is the closed set of messages accepted by a Worker. The unexported
// marker method keeps the set closed: only this package can add variants, so
// a type switch over commands can be exhaustive.
type Command interface{ isCommand() }

// AddUpload starts a single-request transfer for the given task snapshot.
type AddUpload struct {
	Task models.UploadTask
}

// AddLargeUpload starts a chunked transfer for the given task snapshot.
type AddLargeUpload struct {
	Task models.UploadTask
}

// PauseUpload stops an in-flight transfer without discarding it. Already
// uploaded chunks of a chunked transfer stay valid.
type PauseUpload struct {
	TaskID string
}

// ResumeUpload restarts a paused transfer from the task snapshot. A chunked
// task continues at Task.ChunksDone; a plain one starts over.
type ResumeUpload struct {
	Task models.UploadTask
}

// CancelUpload stops a transfer and aborts any remote chunked session.
type CancelUpload struct {
	TaskID string
}

// SetToken replaces the access token used for subsequent requests.
type SetToken struct {
	Token string
}

func (AddUpload) isCommand()      {}
func (AddLargeUpload) isCommand() {}
func (PauseUpload) isCommand()    {}
func (ResumeUpload) isCommand()   {}
func (CancelUpload) isCommand()   {}
func (SetToken) isCommand()       {}

// Event is the closed set of messages a Worker emits. The stream for one
// task ends with either Completed or Failed; pause and cancel end silently
// because the caller initiated them.
type Event interface{ isEvent() }

// Progress reports transfer advancement for a task.
type Progress struct {
	TaskID      string
	Transferred int64
	Total       int64
	// Speed is the observed rate in bytes per second since the transfer
	// (re)started.
	Speed float64
}

// ChunkDone reports that one chunk of a chunked transfer reached the remote.
// The caller should persist the new high-water mark before acting on it.
type ChunkDone struct {
	TaskID string
	Index  int
}

// Completed reports that the whole object is on the remote.
type Completed struct {
	TaskID string
}

// Failed reports a terminal transfer error.
type Failed struct {
	TaskID string
	Err    string
}

func (Progress) isEvent()  {}
func (ChunkDone) isEvent() {}
func (Completed) isEvent() {}
func (Failed) isEvent()    {}
