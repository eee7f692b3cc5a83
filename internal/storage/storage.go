// ABOUTME: Atomic JSON document persistence with per-document locking
// ABOUTME: Documents are pretty-printed and replaced via temp-file rename

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrStorage wraps file I/O failures other than "file absent".
// Callers should use [errors.Is] to match it.
var ErrStorage = errors.New("storage failure")

// Document serializes all access to a single JSON file. Every mutation is
// a full read-modify-write cycle under the document mutex, and every write
// goes to a temp file in the same directory followed by a rename, so a
// reader never observes a partially written document.
type Document[T any] struct {
	mu   sync.Mutex
	path string
}

// New creates a Document backed by the given file path. The file does not
// need to exist; Load returns the caller's default until the first Write.
func New[T any](path string) *Document[T] {
	return &Document[T]{path: path}
}

// Path returns the file path backing this document.
func (d *Document[T]) Path() string {
	return d.path
}

// Load reads and decodes the document. An absent file is not an error: the
// provided default is returned instead.
func (d *Document[T]) Load(defaultValue T) (T, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loadLocked(defaultValue)
}

// Write atomically replaces the document contents.
func (d *Document[T]) Write(value T) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeLocked(value)
}

// Update performs a read-modify-write cycle under the document mutex. The
// modify function receives the decoded document (or the default when the
// file is absent) and its result is written back atomically. Returning an
// error from modify aborts the cycle without touching the file.
func (d *Document[T]) Update(defaultValue T, modify func(value T) (T, error)) (T, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	value, err := d.loadLocked(defaultValue)
	if err != nil {
		return value, err
	}

	updated, err := modify(value)
	if err != nil {
		return updated, err
	}

	if err := d.writeLocked(updated); err != nil {
		return updated, err
	}
	return updated, nil
}

// loadLocked reads the file. Must be called with mu held.
func (d *Document[T]) loadLocked(defaultValue T) (T, error) {
	data, err := os.ReadFile(d.path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultValue, nil
	}
	if err != nil {
		return defaultValue, fmt.Errorf("%w: reading %s: %v", ErrStorage, d.path, err)
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return defaultValue, fmt.Errorf("%w: decoding %s: %v", ErrStorage, d.path, err)
	}
	return value, nil
}

// writeLocked serializes and atomically replaces the file. Must be called
// with mu held.
func (d *Document[T]) writeLocked(value T) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %v", ErrStorage, d.path, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrStorage, dir, err)
	}

	// The temp file must live in the same directory as the target so the
	// rename stays within one filesystem and remains atomic.
	tmp, err := os.CreateTemp(dir, filepath.Base(d.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file for %s: %v", ErrStorage, d.path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: writing %s: %v", ErrStorage, tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: closing %s: %v", ErrStorage, tmpPath, err)
	}

	if err := os.Rename(tmpPath, d.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: replacing %s: %v", ErrStorage, d.path, err)
	}
	return nil
}
