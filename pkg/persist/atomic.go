package persist

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteFileAtomic replaces path with the bytes produced by write. The data is
// written to a temporary file in the same directory, synced, renamed over
// path and the directory synced, so readers see either the old file or the
// complete new one.
func WriteFileAtomic(path string, perm os.FileMode, write func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			err = errors.Join(err, removeIfExists(tmpName))
		}
	}()

	err = write(tmp)
	if err != nil {
		tmp.Close()

		return err
	}

	err = tmp.Chmod(perm)
	if err != nil {
		tmp.Close()

		return fmt.Errorf("chmod temp file: %w", err)
	}

	err = tmp.Sync()
	if err != nil {
		tmp.Close()

		return fmt.Errorf("sync temp file: %w", err)
	}

	err = tmp.Close()
	if err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	err = os.Rename(tmpName, path)
	if err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir: %w", err)
	}

	err = d.Sync()
	closeErr := d.Close()

	if err != nil {
		return fmt.Errorf("sync dir: %w", err)
	}

	return closeErr
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove temp file: %w", err)
	}

	return nil
}
