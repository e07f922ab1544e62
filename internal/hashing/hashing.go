// Package hashing computes content digests for files and directory trees. The
// digests are only used to decide whether two paths hold the same content.
package hashing

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/hay-kot/dotapply/internal/core"
)

// BlockSize is the read size used when streaming file contents.
const BlockSize = 10 * 1024

// dirTag opens every directory fold.
var dirTag = []byte("dir\x00")

// Digest is the content digest of a file or directory.
type Digest [sha1.Size]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Sum returns the digest of path. Files are hashed by content. Directories are
// hashed by folding the digests of their children, sorted by name, behind a
// directory tag so that no directory shares a digest with a file. Symlinks
// are followed. Any other kind of path yields a *core.PathError.
func Sum(fsys afero.Fs, path string) (Digest, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return Digest{}, &core.PathError{Path: path, Err: err}
	}

	switch {
	case info.IsDir():
		return sumDir(fsys, path)
	case info.Mode().IsRegular():
		return sumFile(fsys, path)
	default:
		return Digest{}, &core.PathError{Path: path, Err: fmt.Errorf("mode %s", info.Mode().Type())}
	}
}

// Bytes returns the digest of in-memory content, comparable with the digest of
// a file holding the same bytes.
func Bytes(b []byte) Digest {
	return sha1.Sum(b)
}

// Equal reports whether a and b have identical content.
func Equal(fsys afero.Fs, a, b string) (bool, error) {
	da, err := Sum(fsys, a)
	if err != nil {
		return false, err
	}

	db, err := Sum(fsys, b)
	if err != nil {
		return false, err
	}

	return da == db, nil
}

func sumFile(fsys afero.Fs, path string) (Digest, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha1.New()
	buf := make([]byte, BlockSize)
	if _, err := io.CopyBuffer(h, onlyReader{f}, buf); err != nil {
		return Digest{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}

func sumDir(fsys afero.Fs, path string) (Digest, error) {
	// afero.ReadDir returns entries sorted by name
	entries, err := afero.ReadDir(fsys, path)
	if err != nil {
		return Digest{}, fmt.Errorf("failed to list %s: %w", path, err)
	}

	h := sha1.New()
	h.Write(dirTag)
	for _, entry := range entries {
		child, err := Sum(fsys, filepath.Join(path, entry.Name()))
		if err != nil {
			return Digest{}, err
		}
		h.Write(child[:])
	}

	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}

// onlyReader hides WriterTo/ReaderFrom so io.CopyBuffer honours the block size.
type onlyReader struct {
	r io.Reader
}

func (o onlyReader) Read(p []byte) (int, error) { return o.r.Read(p) }
