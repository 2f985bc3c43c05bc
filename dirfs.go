package sealbackup

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/absfs/absfs"
)

// DirFS is an absfs.FileSystem rooted at a directory of the host
// filesystem. Every name, absolute or relative, is resolved below root, so
// "/backups" on a DirFS rooted at /var/lib/app is /var/lib/app/backups.
type DirFS struct {
	root string
	cwd  string
}

var _ absfs.FileSystem = (*DirFS)(nil)

// NewDirFS creates a DirFS rooted at root, creating the directory with
// mode 0700 if it does not exist
func NewDirFS(root string) (*DirFS, error) {
	if root == "" {
		return nil, NewValidationError("root", root, "root directory cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0700); err != nil {
		return nil, NewIOError("mkdir", abs, err)
	}
	return &DirFS{root: abs, cwd: "/"}, nil
}

// Root returns the host directory backing the filesystem
func (d *DirFS) Root() string {
	return d.root
}

func (d *DirFS) resolve(name string) string {
	if !path.IsAbs(filepath.ToSlash(name)) {
		name = path.Join(d.cwd, filepath.ToSlash(name))
	}
	return filepath.Join(d.root, filepath.FromSlash(path.Clean("/"+filepath.ToSlash(name))))
}

func (d *DirFS) OpenFile(name string, flag int, perm os.FileMode) (absfs.File, error) {
	return os.OpenFile(d.resolve(name), flag, perm)
}

func (d *DirFS) Open(name string) (absfs.File, error) {
	return d.OpenFile(name, os.O_RDONLY, 0)
}

func (d *DirFS) Create(name string) (absfs.File, error) {
	return d.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
}

func (d *DirFS) Mkdir(name string, perm os.FileMode) error {
	return os.Mkdir(d.resolve(name), perm)
}

func (d *DirFS) MkdirAll(name string, perm os.FileMode) error {
	return os.MkdirAll(d.resolve(name), perm)
}

func (d *DirFS) Remove(name string) error {
	return os.Remove(d.resolve(name))
}

func (d *DirFS) RemoveAll(name string) error {
	return os.RemoveAll(d.resolve(name))
}

func (d *DirFS) Rename(oldpath, newpath string) error {
	return os.Rename(d.resolve(oldpath), d.resolve(newpath))
}

func (d *DirFS) Stat(name string) (os.FileInfo, error) {
	return os.Stat(d.resolve(name))
}

func (d *DirFS) Chmod(name string, mode os.FileMode) error {
	return os.Chmod(d.resolve(name), mode)
}

func (d *DirFS) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return os.Chtimes(d.resolve(name), atime, mtime)
}

func (d *DirFS) Chown(name string, uid, gid int) error {
	return os.Chown(d.resolve(name), uid, gid)
}

func (d *DirFS) Truncate(name string, size int64) error {
	return os.Truncate(d.resolve(name), size)
}

// Separator reports '/', since names on a DirFS are slash-separated
func (d *DirFS) Separator() uint8 {
	return '/'
}

func (d *DirFS) ListSeparator() uint8 {
	return os.PathListSeparator
}

func (d *DirFS) Chdir(dir string) error {
	info, err := d.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &os.PathError{Op: "chdir", Path: dir, Err: fmt.Errorf("not a directory")}
	}
	if !path.IsAbs(dir) {
		dir = path.Join(d.cwd, dir)
	}
	d.cwd = path.Clean(dir)
	return nil
}

func (d *DirFS) Getwd() (string, error) {
	return d.cwd, nil
}

func (d *DirFS) TempDir() string {
	return "/tmp"
}
