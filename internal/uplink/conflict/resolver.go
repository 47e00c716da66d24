// Package conflict detects name collisions against the remote listing before
// tasks are created, and generates free names for "keep" resolutions.
//
// The check is advisory: another client can still create the same name
// between check and upload, and listing failures never block an upload. The
// remote store's own overwrite semantics stay authoritative.
package conflict

import (
	"context"
	"fmt"
	"strings"

	"github.com/lyceum-cloud/uplink/internal/common"
	"github.com/lyceum-cloud/uplink/internal/filex"
	"github.com/lyceum-cloud/uplink/internal/logging"
	"github.com/lyceum-cloud/uplink/internal/uplink/models"
	"github.com/lyceum-cloud/uplink/internal/uplink/storage"
)

// maxRenameAttempts bounds the "name (n).ext" probe loop.
const maxRenameAttempts = 1000

// CheckResult is the outcome of a pre-upload conflict check. Degraded means
// the remote listing failed and the conflict list is unreliable; callers
// should surface that but proceed.
type CheckResult struct {
	Conflicts []models.ConflictFile
	Degraded  bool
}

type Resolver struct {
	store storage.ObjectStore
	log   logging.Logger
}

func NewResolver(store storage.ObjectStore, log logging.Logger) *Resolver {
	if log == nil {
		log = logging.Nop()
	}
	return &Resolver{store: store, log: log}
}

// Check lists existing objects under destPrefix and returns the submitted
// names that collide with a direct child there. Entries nested under deeper
// prefixes are ignored. On listing failure the check degrades to "no
// conflicts" rather than blocking the upload.
func (r *Resolver) Check(ctx context.Context, names []string, destPrefix string) CheckResult {
	objs, err := r.store.List(ctx, destPrefix, common.DefaultListLimit)
	if err != nil {
		r.log.Warn(ctx, "conflict check degraded, proceeding without it",
			"prefix", destPrefix, "error", err)
		return CheckResult{Degraded: true}
	}

	existing := make(map[string]models.ConflictFile, len(objs))
	for _, obj := range objs {
		rest := strings.TrimPrefix(obj.Key, destPrefix)
		if rest == "" {
			continue
		}
		if i := strings.Index(rest, "/"); i >= 0 {
			// A nested entry still reveals a direct child folder.
			name := rest[:i]
			if _, ok := existing[name]; !ok {
				existing[name] = models.ConflictFile{Name: name, IsFolder: true}
			}
			continue
		}
		existing[rest] = models.ConflictFile{
			Name:         rest,
			Size:         obj.Size,
			LastModified: obj.LastModified.UnixMilli(),
		}
	}

	var conflicts []models.ConflictFile
	for _, name := range names {
		if cf, ok := existing[name]; ok {
			conflicts = append(conflicts, cf)
		}
	}
	return CheckResult{Conflicts: conflicts}
}

// UniqueName returns a variant of name that does not exist under destPrefix,
// formed by appending " (n)" before the extension with n strictly
// incrementing: "report.csv" -> "report (1).csv" -> "report (2).csv" ...
// Each candidate is re-checked remotely. If an existence probe fails, the
// current candidate is returned as a best effort.
func (r *Resolver) UniqueName(ctx context.Context, name, destPrefix string) (string, error) {
	stem, ext := filex.SplitExt(name)

	for n := 1; n <= maxRenameAttempts; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		exists, err := r.store.Exists(ctx, destPrefix+candidate)
		if err != nil {
			r.log.Warn(ctx, "existence probe failed, keeping candidate name",
				"name", candidate, "error", err)
			return candidate, nil
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free name found for %q under %q", name, destPrefix)
}
