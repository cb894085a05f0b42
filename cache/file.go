package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"
)

// Infinite is the age of a cache file that does not exist.
const Infinite = time.Duration(math.MaxInt64)

// File is a JSON document on disk whose modification time tells its age.
// Writes are plain overwrites, a crash mid-write leaves a corrupt file that
// later reads report as a miss.
type File struct {
	path string
	now  func() time.Time
}

func NewFile(path string) *File {
	return &File{path: path, now: time.Now}
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Age() time.Duration {
	st, err := os.Stat(f.path)
	if err != nil {
		return Infinite
	}
	return f.now().Sub(st.ModTime())
}

// Fresh reports whether the file is younger than maxAge.
func (f *File) Fresh(maxAge time.Duration) bool {
	return f.Age() < maxAge
}

func (f *File) ReadJSON(v any) error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("cache file %s: %w", f.path, ErrMiss)
		}
		return fmt.Errorf("reading cache file %s: %w", f.path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding cache file %s: %w", f.path, err)
	}
	return nil
}

func (f *File) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding cache file %s: %w", f.path, err)
	}
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating cache directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(f.path, data, 0644); err != nil {
		return fmt.Errorf("writing cache file %s: %w", f.path, err)
	}
	return nil
}
