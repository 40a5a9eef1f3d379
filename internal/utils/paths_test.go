package utils

import (
	"testing"
)

func TestGetAbsolutePath_AlreadyAbsolute(t *testing.T) {
	absolutePath := "/test/file.txt"

	result := GetAbsolutePath(absolutePath, "/base/dir")

	if result != absolutePath {
		t.Errorf("Expected %s, got %s", absolutePath, result)
	}
}

func TestGetAbsolutePath_RelativePath(t *testing.T) {
	result := GetAbsolutePath("relative/file.txt", "/base/dir")
	expected := "/base/dir/relative/file.txt"

	if result != expected {
		t.Errorf("Expected %s, got %s", expected, result)
	}
}

func TestGetAbsolutePath_DotPath(t *testing.T) {
	result := GetAbsolutePath("./file.txt", "/base/dir")
	expected := "/base/dir/file.txt"

	if result != expected {
		t.Errorf("Expected %s, got %s", expected, result)
	}
}

func TestGetAbsolutePath_DoubleDotPath(t *testing.T) {
	result := GetAbsolutePath("../file.txt", "/base/dir")
	expected := "/base/file.txt"

	if result != expected {
		t.Errorf("Expected %s, got %s", expected, result)
	}
}

func TestGetAbsolutePath_PathCleaning(t *testing.T) {
	result := GetAbsolutePath("a//b///c/file.txt", "/base//dir")
	expected := "/base/dir/a/b/c/file.txt"

	if result != expected {
		t.Errorf("Expected %s, got %s", expected, result)
	}
}
