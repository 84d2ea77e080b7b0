// Package atomicio provides atomic file writing.
package atomicio

import (
	"io/fs"
	"os"
	"path/filepath"
)

// WriteFile writes data to name atomically. Readers observe either the old
// contents or the new ones, never a partial write.
func WriteFile(name string, data []byte, perm fs.FileMode) (err error) {
	// The temporary file must live on the same filesystem for os.Rename.
	f, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if _, err := f.Write(data); err != nil {
		return err
	}
	if err := f.Chmod(perm); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), name)
}

// Perm returns the permission bits of name, or def if it does not exist.
func Perm(name string, def fs.FileMode) fs.FileMode {
	info, err := os.Stat(name)
	if err != nil {
		return def
	}
	return info.Mode().Perm()
}
