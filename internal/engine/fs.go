package engine

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

var errNoSymlinks = errors.New("filesystem does not support symlinks")

// lstat stats path without following a final symlink when the filesystem
// allows it.
func lstat(fsys afero.Fs, path string) (fs.FileInfo, error) {
	if l, ok := fsys.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return fsys.Stat(path)
}

func readlink(fsys afero.Fs, path string) (string, error) {
	r, ok := fsys.(afero.LinkReader)
	if !ok {
		return "", errNoSymlinks
	}
	return r.ReadlinkIfPossible(path)
}

func symlink(fsys afero.Fs, oldname, newname string) error {
	l, ok := fsys.(afero.Linker)
	if !ok {
		return errNoSymlinks
	}
	return l.SymlinkIfPossible(oldname, newname)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// copyPath copies a file or, recursively, a directory. Symlinks in the source
// are followed.
func copyPath(fsys afero.Fs, src, dst string) error {
	info, err := fsys.Stat(src)
	if err != nil {
		return err
	}

	if info.IsDir() {
		return copyTree(fsys, src, dst, info.Mode().Perm())
	}

	if !info.Mode().IsRegular() {
		return fmt.Errorf("cannot copy %s: not a regular file", src)
	}

	return copyFile(fsys, src, dst, info.Mode().Perm())
}

func copyTree(fsys afero.Fs, src, dst string, perm os.FileMode) error {
	if err := fsys.MkdirAll(dst, perm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dst, err)
	}

	entries, err := afero.ReadDir(fsys, src)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", src, err)
	}

	for _, entry := range entries {
		if err := copyPath(fsys, filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return err
		}
	}

	return nil
}

func copyFile(fsys afero.Fs, src, dst string, perm os.FileMode) error {
	in, err := fsys.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := fsys.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", dst, err)
	}

	// OpenFile is subject to the umask
	return fsys.Chmod(dst, perm)
}
