package models

// ConflictFile describes an existing remote object that collides with a
// submitted file name. Produced only during pre-upload conflict checking;
// never persisted.
type ConflictFile struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	LastModified int64  `json:"lastModified,omitempty"`
	IsFolder     bool   `json:"isFolder"`
}

// Resolution is the caller's answer to a batch of conflicts.
type Resolution string

const (
	// ResolutionReplace uploads under the original names, overwriting the
	// remote objects.
	ResolutionReplace Resolution = "replace"
	// ResolutionKeep renames each colliding file to a free "name (n).ext"
	// variant and uploads the rest unchanged.
	ResolutionKeep Resolution = "keep"
	// ResolutionCancel aborts the whole batch; no tasks are created.
	ResolutionCancel Resolution = "cancel"
)
