// Package fsops implements the filesystem directives. Each call is a thin
// wrapper over the OS; failures carry the platform diagnostic.
package fsops

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Ryuchen/Panda-Sandbox-Agent/internal/core"
)

// DefaultDirMode is used by Mkdir when no mode is given.
const DefaultDirMode os.FileMode = 0o777

func classify(op, msg string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return core.Wrap(core.KindNotFound, op, msg, err)
	default:
		return core.Wrap(core.KindInternal, op, msg, err)
	}
}

func required(op, field, value string) error {
	if value == "" {
		return core.Errorf(core.KindClient, op, "no %s has been provided", field)
	}
	return nil
}

// Mkdir creates path and any missing parents.
func Mkdir(path string, mode os.FileMode) error {
	if err := required("mkdir", "path", path); err != nil {
		return err
	}
	if mode == 0 {
		mode = DefaultDirMode
	}
	if err := os.MkdirAll(path, mode); err != nil {
		return classify("mkdir", "error creating directory", err)
	}
	return nil
}

// Mktemp creates an empty temporary file and returns its path. An empty dir
// uses the system temporary directory.
func Mktemp(prefix, suffix, dir string) (string, error) {
	f, err := os.CreateTemp(dir, prefix+"*"+suffix)
	if err != nil {
		return "", classify("mktemp", "error creating temporary file", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return "", classify("mktemp", "error creating temporary file", err)
	}
	return name, nil
}

// Mkdtemp creates a temporary directory and returns its path.
func Mkdtemp(prefix, suffix, dir string) (string, error) {
	name, err := os.MkdirTemp(dir, prefix+"*"+suffix)
	if err != nil {
		return "", classify("mkdtemp", "error creating temporary directory", err)
	}
	return name, nil
}

// Store writes r to path, creating parent directories. When wantSHA256 is
// set the written content is verified and removed on mismatch.
func Store(path string, r io.Reader, wantSHA256 string) error {
	if err := required("store", "file path", path); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), DefaultDirMode); err != nil {
		return classify("store", "error creating parent directory", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return classify("store", "error storing file", err)
	}
	h := sha256.New()
	_, err = io.Copy(io.MultiWriter(f, h), r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return classify("store", "error storing file", err)
	}
	if wantSHA256 != "" {
		if got := hex.EncodeToString(h.Sum(nil)); got != wantSHA256 {
			_ = os.Remove(path)
			return core.Errorf(core.KindClient, "store", "checksum mismatch: expected %s, got %s", wantSHA256, got)
		}
	}
	return nil
}

// Retrieve opens a regular file for sending. The caller closes it.
func Retrieve(path string) (*os.File, os.FileInfo, error) {
	if err := required("retrieve", "file path", path); err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, classify("retrieve", "error retrieving file", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, classify("retrieve", "error retrieving file", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, core.Errorf(core.KindClient, "retrieve", "%s is a directory", path)
	}
	return f, info, nil
}

// Checksum returns the hex SHA-256 of the file at path.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Remove deletes path. Directories need recursive unless empty. With force,
// permissions are made writable first so read-only entries can go.
func Remove(path string, recursive, force bool) error {
	if err := required("remove", "path", path); err != nil {
		return err
	}
	info, err := os.Lstat(path)
	if err != nil {
		return classify("remove", "error removing path", err)
	}
	if force {
		if err := makeWritable(path, info, recursive); err != nil {
			return classify("remove", "error making path writable", err)
		}
	}
	if info.IsDir() && recursive {
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}
	if err != nil {
		return classify("remove", "error removing path", err)
	}
	return nil
}

func makeWritable(path string, info os.FileInfo, recursive bool) error {
	if info.Mode()&os.ModeSymlink != 0 {
		return nil
	}
	if !info.IsDir() || !recursive {
		return chmodWritable(path, info)
	}
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		return chmodWritable(p, fi)
	})
}

func chmodWritable(path string, info os.FileInfo) error {
	mode := info.Mode().Perm() | 0o200
	if info.IsDir() {
		mode |= 0o700
	}
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return nil
}
