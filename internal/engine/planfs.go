package engine

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// planFs is the filesystem a dry run acts on. Writes land in an in-memory
// layer over a read-only view of the real filesystem, so later actions see
// what earlier ones would have done. The memory layer cannot hold symlinks;
// those are recorded in links and resolved by Stat and Open.
type planFs struct {
	afero.Fs
	base  afero.Fs
	links map[string]string
}

func newPlanFs(base afero.Fs) *planFs {
	return &planFs{
		Fs:    afero.NewCopyOnWriteFs(afero.NewReadOnlyFs(base), afero.NewMemMapFs()),
		base:  base,
		links: map[string]string{},
	}
}

func (p *planFs) Stat(name string) (fs.FileInfo, error) {
	if target, ok := p.links[name]; ok {
		return p.Stat(target)
	}
	return p.Fs.Stat(name)
}

func (p *planFs) Open(name string) (afero.File, error) {
	if target, ok := p.links[name]; ok {
		return p.Open(target)
	}
	return p.Fs.Open(name)
}

func (p *planFs) LstatIfPossible(name string) (fs.FileInfo, bool, error) {
	if _, ok := p.links[name]; ok {
		return plannedLink{name: filepath.Base(name)}, true, nil
	}
	return p.Fs.(afero.Lstater).LstatIfPossible(name)
}

func (p *planFs) ReadlinkIfPossible(name string) (string, error) {
	if target, ok := p.links[name]; ok {
		return target, nil
	}
	return readlink(p.Fs, name)
}

// SymlinkIfPossible records the link. It fails where creating it on the real
// filesystem would: no symlink support, an occupied name or a missing parent.
func (p *planFs) SymlinkIfPossible(oldname, newname string) error {
	if _, ok := p.base.(afero.Linker); !ok {
		return errNoSymlinks
	}
	if _, err := lstat(p, newname); err == nil {
		return &os.LinkError{Op: "symlink", Old: oldname, New: newname, Err: fs.ErrExist}
	}
	if info, err := p.Stat(filepath.Dir(newname)); err != nil || !info.IsDir() {
		return &os.LinkError{Op: "symlink", Old: oldname, New: newname, Err: fs.ErrNotExist}
	}

	p.links[newname] = oldname
	return nil
}

type plannedLink struct {
	name string
}

func (l plannedLink) Name() string       { return l.name }
func (l plannedLink) Size() int64        { return 0 }
func (l plannedLink) Mode() fs.FileMode  { return fs.ModeSymlink | 0o777 }
func (l plannedLink) ModTime() time.Time { return time.Time{} }
func (l plannedLink) IsDir() bool        { return false }
func (l plannedLink) Sys() any           { return nil }
