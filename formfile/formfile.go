// Package formfile reads and writes serialized forms as files.
//
// It is generic over the form type: any physical representation with a
// [Codec] can be stored. Writes go through a temporary file in the
// target directory and rename into place, so readers never observe a
// partially written form.
package formfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// A Codec translates one serialized form to and from a byte stream.
type Codec[E any] interface {
	Encode(w io.Writer, form E) error
	Decode(r io.Reader) (E, error)
}

// Save writes form to path using c, replacing any existing file.
func Save[E any](path string, c Codec[E], form E) error {
	dir, base := filepath.Split(path)
	f, err := os.CreateTemp(dir, base+"*.tmp")
	if err != nil {
		return fmt.Errorf("save form: %w", err)
	}
	tmp := f.Name()
	if err := c.Encode(f, form); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("save form: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("save form: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("save form: %w", err)
	}
	return nil
}

// Load reads the form stored at path using c.
func Load[E any](path string, c Codec[E]) (E, error) {
	f, err := os.Open(path)
	if err != nil {
		var zero E
		return zero, fmt.Errorf("load form: %w", err)
	}
	defer f.Close()
	form, err := c.Decode(f)
	if err != nil {
		var zero E
		return zero, fmt.Errorf("load form %s: %w", path, err)
	}
	return form, nil
}
