// Package utils holds the small filesystem primitives shared by the
// publishing steps: existence probes, tree copies (optionally hardlinked)
// and checksum concatenation.
package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileExists checks if a path exists and is accessible.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// DirExists checks if a path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// CopyFile copies src to dst, preserving the source file mode.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
	}
	return out.Close()
}

// CopyTree duplicates the directory tree at src under dst. When hardlink is
// true, regular files become hardlinks to the originals instead of copies;
// directories and file modes are recreated either way.
func CopyTree(src, dst string, hardlink bool) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm())
		}
		if info.Mode()&os.ModeSymlink != 0 {
			linked, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(linked, target)
		}
		if hardlink {
			return os.Link(path, target)
		}
		return CopyFile(path, target)
	})
}

// AppendFile appends the entire content of src onto dst, creating dst if it
// does not exist yet.
func AppendFile(src, dst string) error {
	content, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", dst, err)
	}
	if _, err := out.Write(content); err != nil {
		out.Close()
		return fmt.Errorf("append %s -> %s: %w", src, dst, err)
	}
	return out.Close()
}

// SameFile reports whether two paths refer to the same inode. Used by tests
// to assert hardlinked (or independently copied) trees.
func SameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}
