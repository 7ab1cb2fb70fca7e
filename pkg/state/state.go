// Package state owns the runtime folder layout under the DB path and small
// JSON artifacts written by background runners.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Paths is the canonical folder layout under the DB path.
type Paths struct {
	Root      string
	Store     string
	State     string
	Retention string
	Crash     string
	Tmp       string
}

// PathsVar holds the layout for the running process, set by Init.
var PathsVar Paths

// Init ensures the state directory layout exists under dbPath and records
// it in PathsVar. Directories are created with restrictive permissions and
// symlinks are rejected.
func Init(dbPath string) error {
	p := Paths{
		Root:      dbPath,
		Store:     filepath.Join(dbPath, "store"),
		State:     filepath.Join(dbPath, "state"),
		Retention: filepath.Join(dbPath, "state", "retention"),
		Crash:     filepath.Join(dbPath, "state", "crash"),
		Tmp:       filepath.Join(dbPath, "state", "tmp"),
	}
	for _, dir := range []string{p.Store, p.Retention, p.Crash, p.Tmp} {
		if fi, err := os.Lstat(dir); err == nil {
			if fi.Mode()&os.ModeSymlink != 0 {
				return fmt.Errorf("state path is a symlink: %s", dir)
			}
			if !fi.IsDir() {
				return fmt.Errorf("state path exists and is not a directory: %s", dir)
			}
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("cannot create state path %s: %w", dir, err)
		}
	}
	PathsVar = p
	return nil
}

// WriteArtifact atomically writes v as JSON to <dir>/<name>.json via a temp
// file and rename.
func WriteArtifact(dir, name string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+name+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name+".json"))
}

// ReadArtifact loads <dir>/<name>.json into v.
func ReadArtifact(dir, name string, v any) error {
	b, err := os.ReadFile(filepath.Join(dir, name+".json"))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
