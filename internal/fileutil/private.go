// Package fileutil creates the archive's on-disk files so that only the
// current user can read them. The database, the Takeout extraction cache and
// exports all hold mail content.
package fileutil

import "os"

const (
	dirPerm  os.FileMode = 0o700
	filePerm os.FileMode = 0o600
)

// MkdirPrivate creates path and any missing parents as owner-only
// directories.
func MkdirPrivate(path string) error {
	created := missingDirs(path)
	if err := os.MkdirAll(path, dirPerm); err != nil {
		return err
	}
	for _, dir := range created {
		restrict(dir)
	}
	return nil
}

// CreatePrivate opens path with flag, which must include os.O_CREATE, and
// restricts the file to the current user.
func CreatePrivate(path string, flag int) (*os.File, error) {
	f, err := os.OpenFile(path, flag|os.O_CREATE, filePerm)
	if err != nil {
		return nil, err
	}
	restrict(path)
	return f, nil
}

// WritePrivate writes data to path, truncating it, as an owner-only file.
func WritePrivate(path string, data []byte) error {
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return err
	}
	restrict(path)
	return nil
}
