// Package utils provides general-purpose utility functions for netwrench.
//
// This package contains small helpers used across the application: path
// resolution relative to the configuration directory, and file lifecycle
// helpers for temp files and directories.
package utils
