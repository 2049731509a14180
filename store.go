package asemantic

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// blobVersion is the current serialization version for state
// blobs and builder snapshots.
const blobVersion = 1

// Blob is the durable receiver state. Its size is constant in the
// number of accepted fragments: the protocol never records a
// history, only the anchor, the aligned seed, and a generation
// counter.
type Blob struct {
	Version         int    `json:"version"`
	Mode            string `json:"mode"`
	Anchor          uint64 `json:"anchor"`
	Seed            string `json:"seed,omitempty"`
	RollbackCounter uint64 `json:"rollback_counter,omitempty"`
}

// Store persists receiver state blobs.
//
// Save must be atomic: after a crash at any point, Load returns
// either the previous blob or the new one, never a mixture. Load
// returns (nil, nil) when no blob has been saved yet and
// ErrCorruptBlob when the stored bytes cannot be decoded.
type Store interface {
	Save(*Blob) error
	Load() (*Blob, error)
}

// MemStore is an in-memory Store for tests and receivers that
// accept losing their anchor on restart.
type MemStore struct {
	blob *Blob
}

var _ Store = (*MemStore)(nil)

func (m *MemStore) Save(b *Blob) error {
	cp := *b
	m.blob = &cp
	return nil
}

func (m *MemStore) Load() (*Blob, error) {
	if m.blob == nil {
		return nil, nil
	}
	cp := *m.blob
	return &cp, nil
}

// FileStore persists the blob as JSON in a single file using the
// write-temp, fsync, rename discipline, so a crash mid-save leaves
// the previous blob intact.
type FileStore struct {
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a Store backed by the file at path. The
// file need not exist yet.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (fs *FileStore) Save(b *Blob) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("asemantic: encoding state blob: %w", err)
	}

	tmp := fs.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("asemantic: creating temp blob: %w", err)
	}
	if _, err = f.Write(data); err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("asemantic: writing temp blob: %w", err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("asemantic: committing state blob: %w", err)
	}
	syncDir(filepath.Dir(fs.path))
	return nil
}

func (fs *FileStore) Load() (*Blob, error) {
	data, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("asemantic: reading state blob: %w", err)
	}
	var b Blob
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, ErrCorruptBlob
	}
	if b.Version != blobVersion {
		return nil, ErrCorruptBlob
	}
	if _, err := parseMode(b.Mode); err != nil {
		return nil, ErrCorruptBlob
	}
	return &b, nil
}

// syncDir makes the rename durable. Failure is ignored: the rename
// itself already happened and some filesystems reject directory
// fsync.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}
