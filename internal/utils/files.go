package utils

import (
	"io"
	"os"

	"github.com/netwrench/netwrench/internal/log"
)

// CloseOrWarn closes the file and logs a warning when closing fails.
func CloseOrWarn(file io.Closer) {
	if err := file.Close(); err != nil {
		log.Warnf("Failed to close file: %v", err)
	}
}

// RemoveOrWarn removes the file and logs a warning when removal fails.
// Used for temp files whose leftovers are harmless.
func RemoveOrWarn(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warnf("Failed to remove %s: %v", path, err)
	}
}

// EnsureDir creates the directory and its parents when missing.
func EnsureDir(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}
