package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lyceum-cloud/uplink/internal/uplink/conflict"
	"github.com/lyceum-cloud/uplink/internal/uplink/manager"
	"github.com/lyceum-cloud/uplink/internal/uplink/models"
)

// Token prompts for a fresh access token and installs it engine-wide.
func (a *App) Token(ctx context.Context) error {
	tok, err := GetToken(os.Stdout)
	if err != nil {
		return err
	}
	if tok == "" {
		return errors.New("empty token")
	}
	a.manager.SetAccessToken(tok)
	printlnFn("Token set.")
	return nil
}

// Upload queues one file: up <path> [prefix]. Name collisions on the remote
// surface through the manager's conflict callback before the task is
// created.
func (a *App) Upload(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: up <path> [prefix]")
	}

	id, err := a.manager.UploadFile(ctx, manager.Request{
		LocalPath:  args[0],
		DestPrefix: destPrefix(args, 1),
	})
	if err != nil {
		return err
	}
	if id == "" {
		printlnFn("Upload canceled.")
		return nil
	}
	t, err := a.manager.GetTask(id)
	if err != nil {
		return err
	}
	printlnFn("Queued", shortID(id), "→", t.Key())
	return nil
}

// promptConflict answers the manager's conflict check for the whole batch.
func (a *App) promptConflict(res conflict.CheckResult) manager.Resolution {
	if res.Degraded {
		printlnFn("Warning: could not check for name conflicts; uploading anyway.")
	}
	if len(res.Conflicts) == 0 {
		return manager.ResolutionReplace
	}
	for _, c := range res.Conflicts {
		kind := "file"
		if c.IsFolder {
			kind = "folder"
		}
		printlnFn(fmt.Sprintf("Remote %s %q already exists.", kind, c.Name))
	}
	choice, err := GetSimpleText(a.in, "(r)eplace / (k)eep both / (c)ancel?", os.Stdout)
	if err != nil {
		return manager.ResolutionCancel
	}
	switch strings.ToLower(choice) {
	case "r", "replace":
		return manager.ResolutionReplace
	case "k", "keep":
		return manager.ResolutionKeep
	default:
		return manager.ResolutionCancel
	}
}

// UploadDir queues a directory tree: updir <dir> [prefix]. The tree lands
// under prefix/<dirname>/; a collision on the directory name is resolved
// once for the whole batch.
func (a *App) UploadDir(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: updir <dir> [prefix]")
	}
	root := args[0]
	prefix := destPrefix(args, 1)
	dirName := filepath.Base(filepath.Clean(root))

	res := a.resolver.Check(ctx, []string{dirName}, prefix)
	if res.Degraded {
		printlnFn("Warning: could not check for name conflicts; uploading anyway.")
	}
	if len(res.Conflicts) > 0 {
		choice, err := GetSimpleText(a.in,
			fmt.Sprintf("%q already exists. (r)eplace / (k)eep both / (c)ancel?", dirName), os.Stdout)
		if err != nil {
			return err
		}
		switch strings.ToLower(choice) {
		case "r", "replace":
		case "k", "keep":
			dirName, err = a.uniqueFolderName(ctx, dirName, prefix)
			if err != nil {
				return err
			}
			printlnFn("Uploading as", dirName)
		default:
			printlnFn("Upload canceled.")
			return nil
		}
	}

	ids, err := a.manager.UploadDir(ctx, root, prefix+dirName+"/")
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("Queued %d file(s) under %s", len(ids), prefix+dirName+"/"))
	return nil
}

// uniqueFolderName finds a free "name (n)" for a remote folder. Folders are
// not objects, so candidates are probed with a listing-based conflict check
// rather than a key existence test.
func (a *App) uniqueFolderName(ctx context.Context, name, prefix string) (string, error) {
	for n := 1; n <= 1000; n++ {
		candidate := fmt.Sprintf("%s (%d)", name, n)
		res := a.resolver.Check(ctx, []string{candidate}, prefix)
		if len(res.Conflicts) == 0 {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free name found for %q", name)
}

// List prints the task table in creation order.
func (a *App) List(ctx context.Context) error {
	tasks := a.manager.GetTasks()
	if len(tasks) == 0 {
		printlnFn("No tasks.")
		return nil
	}
	for _, t := range tasks {
		line := fmt.Sprintf("%s  %-9s %3d%%  %s", shortID(t.ID), t.Status, t.Progress, t.Key())
		if t.Status == models.StatusUploading && t.UploadSpeed > 0 {
			line += fmt.Sprintf("  %s/s", formatBytes(int64(t.UploadSpeed)))
		}
		if t.Error != "" {
			line += "  (" + t.Error + ")"
		}
		printlnFn(line)
	}
	return nil
}

func (a *App) Pause(ctx context.Context, args []string) error {
	if len(args) == 1 && args[0] == "all" {
		for _, t := range a.manager.GetTasks() {
			if t.Status == models.StatusPending || t.Status == models.StatusUploading {
				if err := a.manager.Pause(t.ID); err != nil {
					return err
				}
			}
		}
		return nil
	}
	id, err := a.resolveID(args, "pause")
	if err != nil {
		return err
	}
	return a.manager.Pause(id)
}

func (a *App) Resume(ctx context.Context, args []string) error {
	id, err := a.resolveID(args, "resume")
	if err != nil {
		return err
	}
	return a.manager.Resume(id)
}

func (a *App) ResumeAll(ctx context.Context) error {
	a.manager.ResumeAll()
	return nil
}

func (a *App) Cancel(ctx context.Context, args []string) error {
	id, err := a.resolveID(args, "cancel")
	if err != nil {
		return err
	}
	return a.manager.Cancel(id)
}

func (a *App) Retry(ctx context.Context, args []string) error {
	id, err := a.resolveID(args, "retry")
	if err != nil {
		return err
	}
	return a.manager.Retry(id)
}

// Clear drops completed tasks. "clear all" cancels anything still active
// and empties the whole table.
func (a *App) Clear(ctx context.Context, args []string) error {
	if len(args) == 1 && args[0] == "all" {
		a.manager.ClearAll()
	} else {
		a.manager.ClearCompleted()
	}
	return nil
}

// resolveID turns a (possibly shortened) task id argument into a full id.
func (a *App) resolveID(args []string, verb string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("usage: %s <task-id>", verb)
	}
	want := args[0]

	var match string
	for _, t := range a.manager.GetTasks() {
		if t.ID == want {
			return t.ID, nil
		}
		if strings.HasPrefix(t.ID, want) {
			if match != "" {
				return "", fmt.Errorf("task id %q is ambiguous", want)
			}
			match = t.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no task matches %q", want)
	}
	return match, nil
}

func destPrefix(args []string, i int) string {
	if len(args) <= i {
		return ""
	}
	p := args[i]
	if p != "" && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
