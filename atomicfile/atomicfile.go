// Package atomicfile writes files via a temporary file in the same
// directory, which is renamed into place only if everything succeeded.
package atomicfile

import (
	"os"
	"path/filepath"
)

// File is a temporary file, that will replace the file at its target path
// on Close.
type File struct {
	*os.File
	target string
	perm   os.FileMode
}

// New creates a temporary file next to filename. Parent directories are
// created as needed.
func New(filename string) (*File, error) {
	return NewPerm(filename, 0644)
}

// NewPerm is like New, with explicit permissions for the final file.
func NewPerm(filename string, perm os.FileMode) (*File, error) {
	dir, name := filepath.Split(filename)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return nil, err
	}
	return &File{File: f, target: filename, perm: perm}, nil
}

// Close syncs and closes the temporary file and moves it to the target
// path. On any error the temporary file is removed.
func (f *File) Close() error {
	err := f.File.Sync()
	if closeErr := f.File.Close(); err == nil {
		err = closeErr
	}
	if permErr := os.Chmod(f.Name(), f.perm); err == nil {
		err = permErr
	}
	if err == nil {
		err = os.Rename(f.Name(), f.target)
	}
	if err != nil {
		os.Remove(f.Name())
	}
	return err
}

// Abort discards the temporary file, leaving the target untouched.
func (f *File) Abort() error {
	f.File.Close()
	return os.Remove(f.Name())
}

// WriteFile writes the data to a temp file and atomically moves it, if
// everything else succeeds.
func WriteFile(filename string, data []byte, perm os.FileMode) error {
	f, err := NewPerm(filename, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Abort()
		return err
	}
	return f.Close()
}
