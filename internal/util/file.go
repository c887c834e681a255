package util

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"syscall"

	"github.com/natefinch/atomic"
)

// CheckFilePermissionsForExecution checks whether the owner, group and permissions
// of the given file are safe to execute it as root.
func CheckFilePermissionsForExecution(filePath string) (bool, error) {
	file, err := filepath.EvalSymlinks(filePath)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(file)
	if os.IsNotExist(err) {
		return false, errors.New("file not found")
	}
	if err != nil {
		return false, err
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return false, errors.New("unable to read file owner")
	}
	if stat.Uid != 0 {
		return false, errors.New("owner is not root")
	}
	if stat.Gid != 0 && info.Mode()&os.FileMode(0o020) != 0 {
		return false, errors.New("group is not root but has write permission")
	}
	if info.Mode()&os.FileMode(0o002) != 0 {
		return false, errors.New("others have write permission")
	}

	return true, nil
}

// WriteFileAtomic replaces the content of path, readers never see a partial file.
func WriteFileAtomic(path string, data []byte) error {
	if evaluated, err := filepath.EvalSymlinks(path); err == nil && len(evaluated) > 0 {
		path = evaluated
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}
