package cursor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/log-store/log-ship/errors"
	"github.com/log-store/log-ship/event"
)

// envelope is the on-disk form of an offset token
type envelope struct {
	Kind    string           `json:"kind"`
	File    *event.FileToken `json:"file,omitempty"`
	Journal string           `json:"journal,omitempty"`
}

// Store persists a single source's offset token. Each file is written by
// its owning source exclusively; there is no cross-route sharing.
type Store struct {
	path string
}

// NewStore creates a store for the cursor file at path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the cursor file location
func (s *Store) Path() string { return s.path }

// Save atomically replaces the cursor file with the serialized token:
// write a sibling temp file, fsync it, rename over the target.
func (s *Store) Save(tok event.Token) error {
	env := envelope{Kind: tok.Kind()}
	switch t := tok.(type) {
	case event.FileToken:
		env.File = &t
	case event.JournalToken:
		env.Journal = string(t)
	default:
		return errors.WrapInvalid(
			fmt.Errorf("unknown token kind %q", tok.Kind()),
			"Store", "Save", "token serialization")
	}

	data, err := json.Marshal(env)
	if err != nil {
		return errors.WrapInvalid(err, "Store", "Save", "token serialization")
	}

	tmpPath := s.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.WrapTransient(err, "Store", "Save", "temp file create")
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return errors.WrapTransient(err, "Store", "Save", "temp file write")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return errors.WrapTransient(err, "Store", "Save", "temp file sync")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.WrapTransient(err, "Store", "Save", "temp file close")
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return errors.WrapTransient(err, "Store", "Save", "rename over cursor file")
	}

	// Make the rename durable
	if dir, err := os.Open(filepath.Dir(s.path)); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}

	return nil
}

// Load reads the persisted token. Returns (nil, nil) when no cursor file
// exists yet.
func (s *Store) Load() (event.Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WrapTransient(err, "Store", "Load", "cursor file read")
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.WrapInvalid(errors.ErrCursorCorrupt, "Store", "Load", "cursor file decode")
	}

	switch env.Kind {
	case "file":
		if env.File == nil {
			return nil, errors.WrapInvalid(errors.ErrCursorCorrupt, "Store", "Load", "missing file token")
		}
		return *env.File, nil
	case "journal":
		return event.JournalToken(env.Journal), nil
	default:
		return nil, errors.WrapInvalid(errors.ErrCursorCorrupt, "Store", "Load", "unknown token kind")
	}
}
