// Package transient materializes image data as short-lived files for the
// embedding provider, which only accepts file paths.
package transient

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Release removes a transient file. Calling it more than once is harmless.
type Release func()

// Dir creates transient files under a directory.
type Dir struct {
	path string
}

// NewDir returns a Dir rooted at path; an empty path means os.TempDir().
func NewDir(path string) *Dir {
	if path == "" {
		path = os.TempDir()
	}
	return &Dir{path: path}
}

// Path reports the directory transient files are created in.
func (d *Dir) Path() string { return d.path }

// Write stores data in a new file named <prefix>_<uuid>.jpg.
func (d *Dir) Write(prefix string, data []byte) (string, Release, error) {
	f, path, release, err := d.create(prefix)
	if err != nil {
		return "", nil, err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		release()
		return "", nil, fmt.Errorf("write transient file: %w", err)
	}
	if err := f.Close(); err != nil {
		release()
		return "", nil, fmt.Errorf("close transient file: %w", err)
	}
	return path, release, nil
}

// Copy duplicates the file at src into a new transient file.
func (d *Dir) Copy(prefix, src string) (string, Release, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", nil, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return "", nil, err
	}
	if !info.Mode().IsRegular() {
		return "", nil, fmt.Errorf("%s is not a regular file", src)
	}

	f, path, release, err := d.create(prefix)
	if err != nil {
		return "", nil, err
	}
	if _, err := io.Copy(f, in); err != nil {
		f.Close()
		release()
		return "", nil, fmt.Errorf("copy transient file: %w", err)
	}
	if err := f.Close(); err != nil {
		release()
		return "", nil, fmt.Errorf("close transient file: %w", err)
	}
	return path, release, nil
}

func (d *Dir) create(prefix string) (*os.File, string, Release, error) {
	path := filepath.Join(d.path, fmt.Sprintf("%s_%s.jpg", prefix, uuid.NewString()))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, "", nil, fmt.Errorf("create transient file: %w", err)
	}
	var once sync.Once
	release := func() {
		once.Do(func() { _ = os.Remove(path) })
	}
	return f, path, release, nil
}
