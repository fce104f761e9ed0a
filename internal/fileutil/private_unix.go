//go:build !windows

package fileutil

// Unix permission bits already do the work; os.MkdirAll and os.OpenFile
// apply them subject to the umask.

func missingDirs(string) []string { return nil }

func restrict(string) {}
