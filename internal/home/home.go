// Package home manages the spyglass home directory layout.
//
// The home directory owns all persistent state the server keeps
// between runs.
//
// Layout:
//
//	<root>/
//	  entries.db   (sqlite entry store)
//	  instance     (persistent instance name)
package home

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	petname "github.com/dustinkirkland/golang-petname"
)

// Dir represents a spyglass home directory.
type Dir struct {
	root string
}

// New creates a Dir with an explicit root path.
func New(root string) Dir {
	return Dir{root: root}
}

// Default returns a Dir using the platform-appropriate default location:
//   - Linux:   ~/.config/spyglass
//   - macOS:   ~/Library/Application Support/spyglass
//   - Windows: %APPDATA%/spyglass
func Default() (Dir, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return Dir{}, fmt.Errorf("determine config directory: %w", err)
	}
	return Dir{root: filepath.Join(base, "spyglass")}, nil
}

// Root returns the home directory path.
func (d Dir) Root() string {
	return d.root
}

// EntriesDBPath returns the path to the sqlite entry store.
func (d Dir) EntriesDBPath() string {
	return filepath.Join(d.root, "entries.db")
}

// EnsureExists creates the home directory (and parents) if it doesn't exist.
func (d Dir) EnsureExists() error {
	if err := os.MkdirAll(d.root, 0o750); err != nil {
		return fmt.Errorf("create home directory %s: %w", d.root, err)
	}
	return nil
}

// InstanceName reads the persistent instance name from <root>/instance.
// If the file doesn't exist, a friendly name is generated and written.
func (d Dir) InstanceName() (string, error) {
	return d.readOrCreate("instance", func() string {
		return petname.Generate(2, "-")
	})
}

// readOrCreate reads a single-line value from <root>/<filename>.
// If the file doesn't exist, generate() provides the default which is persisted.
func (d Dir) readOrCreate(filename string, generate func() string) (string, error) {
	p := filepath.Join(d.root, filename)
	data, err := os.ReadFile(p) //nolint:gosec // G304: path is constructed from trusted home dir + constant filename
	if err == nil {
		if v := strings.TrimSpace(string(data)); v != "" {
			return v, nil
		}
	}
	v := generate()
	if err := os.WriteFile(p, []byte(v+"\n"), 0o640); err != nil { //nolint:gosec // G306: instance-name file is not secret, 0640 is intentional
		return "", fmt.Errorf("write %s: %w", filename, err)
	}
	return v, nil
}
