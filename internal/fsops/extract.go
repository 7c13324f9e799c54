package fsops

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/Ryuchen/Panda-Sandbox-Agent/internal/core"
)

// Extract unpacks the zip archive in r into dest, creating dest if needed.
// Entries that would land outside dest are rejected.
func Extract(r io.ReaderAt, size int64, dest string) error {
	if err := required("extract", "destination directory", dest); err != nil {
		return err
	}
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return core.Wrap(core.KindClient, "extract", "invalid zip archive", err)
	}
	if err := os.MkdirAll(dest, DefaultDirMode); err != nil {
		return classify("extract", "error creating destination", err)
	}
	root, err := filepath.Abs(dest)
	if err != nil {
		return classify("extract", "error resolving destination", err)
	}
	for _, f := range zr.File {
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return core.Errorf(core.KindClient, "extract", "archive entry %q escapes destination", f.Name)
		}
		if err := extractFile(f, target); err != nil {
			return classify("extract", fmt.Sprintf("error extracting %s", f.Name), err)
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, DefaultDirMode)
	}
	if err := os.MkdirAll(filepath.Dir(target), DefaultDirMode); err != nil {
		return err
	}
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
