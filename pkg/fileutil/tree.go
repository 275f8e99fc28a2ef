package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// DirExists checks if a directory exists at the given path
func DirExists(fs afero.Fs, dir string) (bool, error) {
	info, err := fs.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat directory %s: %w", dir, err)
	}
	return info.IsDir(), nil
}

// FileExists checks if a regular file exists at the given path
func FileExists(fs afero.Fs, name string) (bool, error) {
	info, err := fs.Stat(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file %s: %w", name, err)
	}
	return !info.IsDir(), nil
}

// WriteFileAll writes data to name, creating parent directories as needed.
func WriteFileAll(fs afero.Fs, name string, data []byte) error {
	if dir := filepath.Dir(name); dir != "" && dir != "." {
		if err := fs.MkdirAll(dir, ReadWriteExecuteUserReadExecuteOthers); err != nil {
			return fmt.Errorf("failed to create directory path %s: %w", dir, err)
		}
	}
	if err := afero.WriteFile(fs, name, data, ReadWriteUserReadOthers); err != nil {
		return fmt.Errorf("failed to write file %s: %w", name, err)
	}
	return nil
}

// ListFiles returns the slash-separated paths, relative to root, of every regular
// file below root. The result is sorted.
func ListFiles(fs afero.Fs, root string) ([]string, error) {
	var files []string
	err := afero.Walk(fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("failed to relativize %s: %w", p, err)
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// JoinSlash joins a root on the host filesystem with a slash-separated relative path.
func JoinSlash(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(rel))
}

// CleanSlash normalizes a slash-separated relative path, dropping any leading separator.
func CleanSlash(p string) string {
	p = path.Clean("/" + filepath.ToSlash(p))
	return strings.TrimPrefix(p, "/")
}
