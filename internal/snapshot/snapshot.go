// Package snapshot persists the address set applied by the last successful run.
package snapshot

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"grimm.is/originguard/internal/policy"
)

// DefaultPath is where the snapshot lives when none is configured.
const DefaultPath = "/var/lib/originguard/edges.txt"

// PersistenceError is a failed snapshot read or write.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("snapshot %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store reads and writes the snapshot file.
type Store struct {
	path string
}

// NewStore creates a store for path.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{path: path}
}

// Path returns the snapshot file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the snapshot. A missing file is an empty set. Blank lines,
// comments and lines that are not addresses are skipped.
func (s *Store) Load() (policy.AddressSet, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return policy.AddressSet{}, nil
	}
	if err != nil {
		return policy.AddressSet{}, &PersistenceError{Op: "read", Path: s.path, Err: err}
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return policy.AddressSet{}, &PersistenceError{Op: "read", Path: s.path, Err: err}
	}
	set, _ := policy.ParseAddressSet(lines)
	return set, nil
}

// Save atomically replaces the snapshot with addrs, one address per line,
// IPv4 first. The temporary file is synced and renamed in the same
// directory so readers never observe a partial file.
func (s *Store) Save(addrs policy.AddressSet) error {
	if err := s.save(addrs); err != nil {
		return &PersistenceError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}

func (s *Store) save(addrs policy.AddressSet) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	w := bufio.NewWriter(tmp)
	for _, a := range addrs.Strings() {
		w.WriteString(a)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}
