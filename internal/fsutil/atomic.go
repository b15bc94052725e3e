// Package fsutil implements the write-to-temporary-then-rename discipline
// every strata mutation relies on. Partial writes are never observable:
// readers racing a writer see either the old state or the fully committed
// new state.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/strataform/strata/internal/fault"
)

// WriteFileAtomic writes data to path via a temporary file in the same
// directory followed by a rename. On failure the prior contents of path
// are untouched.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fault.Wrap(fault.KindAtomicWriteFailure, "fsutil.write", path, err)
	}
	tmp := tempName(dir, filepath.Base(path))
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fault.Wrap(fault.KindAtomicWriteFailure, "fsutil.write", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fault.Wrap(fault.KindAtomicWriteFailure, "fsutil.write", path, err)
	}
	return nil
}

// TempSibling returns a fresh temporary path in the same directory as
// final. The UUID suffix keeps concurrent sessions from colliding on temp
// names. The caller populates it and commits with RenameIntoPlace.
func TempSibling(final string) string {
	return tempName(filepath.Dir(final), filepath.Base(final))
}

// RenameIntoPlace moves a fully populated temporary file or directory over
// its final path. The rename is the commit point: before it, nothing under
// final has changed; after it, the new state is complete.
func RenameIntoPlace(tmp, final string) error {
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		os.RemoveAll(tmp)
		return fault.Wrap(fault.KindAtomicWriteFailure, "fsutil.rename", final, err)
	}
	// A leftover directory from a previous crashed commit must not make the
	// rename fail; version IDs are unique so this only removes debris.
	if info, err := os.Stat(final); err == nil && info.IsDir() {
		if err := os.RemoveAll(final); err != nil {
			os.RemoveAll(tmp)
			return fault.Wrap(fault.KindAtomicWriteFailure, "fsutil.rename", final, err)
		}
	}
	if err := os.Rename(tmp, final); err != nil {
		os.RemoveAll(tmp)
		return fault.Wrap(fault.KindAtomicWriteFailure, "fsutil.rename", final, err)
	}
	return nil
}

// CopyFile copies src to dst (non-atomic; used only inside temporary
// directories that are later renamed into place as a whole).
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return nil
}

func tempName(dir, base string) string {
	return filepath.Join(dir, fmt.Sprintf(".%s.tmp-%s", base, uuid.NewString()))
}
