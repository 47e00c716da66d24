// Package filex contains small local-filesystem helpers used when capturing
// files for upload.
package filex

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Info is the descriptive metadata captured from a source file at
// submission time.
type Info struct {
	Path string
	Name string
	Size int64
}

// Stat resolves path and captures its name and size. Directories are
// rejected; use Walk for trees.
func Stat(path string) (Info, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.IsDir() {
		return Info{}, fmt.Errorf("%s is a directory", path)
	}
	return Info{Path: path, Name: fi.Name(), Size: fi.Size()}, nil
}

// TreeFile is one regular file found under a walked root, with its path
// relative to that root (always slash-separated).
type TreeFile struct {
	Info
	RelPath string
}

// Walk collects every regular file under root, preserving the relative
// directory structure. Symlinks and other non-regular entries are skipped.
func Walk(root string) ([]TreeFile, error) {
	var out []TreeFile

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, TreeFile{
			Info:    Info{Path: path, Name: d.Name(), Size: fi.Size()},
			RelPath: filepath.ToSlash(rel),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	return out, nil
}

// SplitExt splits a file name into stem and extension, so collision renames
// can insert a counter before the extension: "report.csv" -> ("report", ".csv").
// Names without a dot return an empty extension; a leading dot (".env") is
// treated as part of the stem.
func SplitExt(name string) (stem, ext string) {
	i := strings.LastIndex(name, ".")
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i:]
}

// EnsureSubDir creates (if needed) and returns a subdirectory under dir.
func EnsureSubDir(dir, name string) (string, error) {
	sub := filepath.Join(dir, name)
	if err := os.MkdirAll(sub, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", sub, err)
	}
	return sub, nil
}
