package fsutil

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
)

// EnsureDirectory creates path and any missing parents. Safe to
// call concurrently with other materializer instances.
func EnsureDirectory(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory %v", path)
	}
	return nil
}

// Symlink links src to dst. A pre-existing link at dst pointing at
// src is not an error; anything else occupying dst is.
func Symlink(src, dst string) error {
	err := os.Symlink(src, dst)
	if err == nil {
		return nil
	}

	if !os.IsExist(err) {
		return errors.Wrapf(err, "failed to link %v", dst)
	}

	target, rerr := os.Readlink(dst)
	if rerr == nil && target == src {
		return nil
	}

	return errors.Errorf("%v exists and does not link to %v", dst, src)
}

// RsyncCopy copies files into dst via rsync, preserving
// attributes. Used where symlinks cannot cross filesystems.
func RsyncCopy(ctx context.Context, files []string, dst string) error {
	if len(files) == 0 {
		return nil
	}

	args := append([]string{"-a"}, files...)
	args = append(args, ensureTrailingSlash(dst))

	out, err := exec.CommandContext(ctx, "rsync", args...).CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "rsync to %v failed: %s", dst, out)
	}

	return nil
}

func ensureTrailingSlash(path string) string {
	return filepath.Clean(path) + string(os.PathSeparator)
}
