package sealbackup

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/absfs/absfs"
)

// readFile reads a whole file from an absfs filesystem
func readFile(fsys absfs.FileSystem, name string) ([]byte, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// writeFile creates or truncates name and writes data to it
func writeFile(fsys absfs.FileSystem, name string, data []byte, flag int, perm os.FileMode) error {
	f, err := fsys.OpenFile(name, flag, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// readDir lists the entries of a directory
func readDir(fsys absfs.FileSystem, name string) ([]os.FileInfo, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Readdir(-1)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err)
}

func isExist(err error) bool {
	return errors.Is(err, fs.ErrExist) || os.IsExist(err)
}

// exists reports whether name can be stat'ed
func exists(fsys absfs.FileSystem, name string) (bool, error) {
	_, err := fsys.Stat(name)
	if err == nil {
		return true, nil
	}
	if isNotExist(err) {
		return false, nil
	}
	return false, err
}
