package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/boshu2/driftwatch/internal/types"
)

const (
	// DefaultBaseDir is the default storage directory.
	DefaultBaseDir = ".agents/driftwatch"

	// maxLineSize bounds a single JSONL line when scanning.
	maxLineSize = 1024 * 1024
)

// validAgentID matches safe agent IDs (alphanumeric, hyphens, underscores).
var validAgentID = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// ValidateAgentID checks if an agent ID is safe for use in file paths.
func ValidateAgentID(id string) error {
	if id == "" {
		return types.ErrEmptyID
	}
	if !validAgentID.MatchString(id) {
		return types.ErrAgentIDInvalid
	}
	return nil
}

// FileStorage implements Storage using the local filesystem.
type FileStorage struct {
	// BaseDir is the root directory (e.g., .agents/driftwatch).
	BaseDir string

	// AgentID selects the namespace <BaseDir>/agents/<AgentID>. Empty means
	// the base directory itself (used for process-wide state).
	AgentID string

	mu sync.Mutex
}

// FileStorageOption configures a FileStorage instance.
type FileStorageOption func(*FileStorage)

// WithBaseDir sets the base directory.
func WithBaseDir(dir string) FileStorageOption {
	return func(fs *FileStorage) {
		fs.BaseDir = dir
	}
}

// WithAgent scopes the storage to one agent namespace.
func WithAgent(agentID string) FileStorageOption {
	return func(fs *FileStorage) {
		fs.AgentID = agentID
	}
}

// NewFileStorage creates a new file-based storage.
func NewFileStorage(opts ...FileStorageOption) *FileStorage {
	fs := &FileStorage{
		BaseDir: DefaultBaseDir,
	}

	for _, opt := range opts {
		opt(fs)
	}

	return fs
}

// ForAgent returns a storage scoped to agentID under the same base directory.
func (fs *FileStorage) ForAgent(agentID string) (*FileStorage, error) {
	if err := ValidateAgentID(agentID); err != nil {
		return nil, fmt.Errorf("agent %q: %w", agentID, err)
	}
	return NewFileStorage(WithBaseDir(fs.BaseDir), WithAgent(agentID)), nil
}

// Dir returns the namespace directory.
func (fs *FileStorage) Dir() string {
	if fs.AgentID == "" {
		return fs.BaseDir
	}
	return filepath.Join(fs.BaseDir, AgentsDir, fs.AgentID)
}

// Path returns the full path to name inside the namespace.
func (fs *FileStorage) Path(name string) string {
	return filepath.Join(fs.Dir(), name)
}

// Init creates the namespace directory.
func (fs *FileStorage) Init() error {
	if fs.BaseDir == "" {
		return ErrBaseDirRequired
	}
	dir := fs.Dir()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// ReadJSON decodes name into v. Absent or malformed files report false and
// leave v untouched so callers keep their safe defaults.
func (fs *FileStorage) ReadJSON(name string, v any) bool {
	data, err := os.ReadFile(fs.Path(name))
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return false
	}
	if !json.Valid(data) {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

// WriteJSON atomically replaces name with the indented JSON encoding of v.
func (fs *FileStorage) WriteJSON(name string, v any) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.atomicWrite(fs.Path(name), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

// AppendJSONL appends v as one JSON line to name.
func (fs *FileStorage) AppendJSONL(name string, v any) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.appendJSONL(fs.Path(name), v)
}

// ReadJSONL decodes every well-formed line of name by calling fn with the
// raw bytes. Malformed lines are the caller's concern; a missing file yields
// no calls and no error.
func (fs *FileStorage) ReadJSONL(name string, fn func(line []byte) error) (err error) {
	f, err := os.Open(fs.Path(name))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	scanner := newScanner(f)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// CountLines returns the number of non-empty lines in name.
func (fs *FileStorage) CountLines(name string) (int, error) {
	n := 0
	err := fs.ReadJSONL(name, func([]byte) error {
		n++
		return nil
	})
	return n, err
}

// TruncateJSONL keeps only the newest keep lines of name. Older lines are
// discarded, not archived.
func (fs *FileStorage) TruncateJSONL(name string, keep int) error {
	if keep < 0 {
		return ErrInvalidKeep
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	var lines [][]byte
	if err := fs.ReadJSONL(name, func(line []byte) error {
		lines = append(lines, append([]byte(nil), line...))
		return nil
	}); err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if len(lines) <= keep {
		return nil
	}
	tail := lines[len(lines)-keep:]

	return fs.atomicWrite(fs.Path(name), func(w io.Writer) error {
		for _, line := range tail {
			if _, err := w.Write(append(line, '\n')); err != nil {
				return err
			}
		}
		return nil
	})
}

// atomicWrite writes to a temp file and renames atomically.
func (fs *FileStorage) atomicWrite(path string, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	// Create temp file in same directory for atomic rename
	tmpFile, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath) //nolint:errcheck // cleanup in error path
		}
	}()

	if err := writeFunc(tmpFile); err != nil {
		_ = tmpFile.Close() //nolint:errcheck // cleanup in error path
		return fmt.Errorf("write content: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close() //nolint:errcheck // cleanup in error path
		return fmt.Errorf("sync file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename to final: %w", err)
	}

	success = true
	return nil
}

// appendJSONL appends a JSON line to a file.
func (fs *FileStorage) appendJSONL(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer func() {
		_ = f.Close() //nolint:errcheck // sync already called, close best-effort
	}()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write line: %w", err)
	}

	return f.Sync()
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineSize)
	return scanner
}
