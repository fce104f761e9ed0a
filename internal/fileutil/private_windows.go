//go:build windows

package fileutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// missingDirs lists path and its ancestors that do not exist yet, leaf
// first, so MkdirPrivate can restrict exactly the directories it creates.
func missingDirs(path string) []string {
	var dirs []string
	p := filepath.Clean(path)
	for p != "" && p != "." && p != string(filepath.Separator) {
		if _, err := os.Stat(p); err == nil {
			break
		}
		dirs = append(dirs, p)
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		p = parent
	}
	return dirs
}

// restrict replaces the DACL of path with one granting access to the current
// user only. Failures are logged; the file already carries its Unix mode.
func restrict(path string) {
	if err := setOwnerOnlyDACL(path); err != nil {
		slog.Warn("could not restrict file to current user", "path", path, "err", err)
	}
}

func setOwnerOnlyDACL(path string) error {
	user, err := windows.GetCurrentProcessToken().GetTokenUser()
	if err != nil {
		return fmt.Errorf("current user SID: %w", err)
	}

	// Directories pass the restriction on to everything created inside.
	var inherit uint32 = windows.NO_INHERITANCE
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		inherit = windows.CONTAINER_INHERIT_ACE | windows.OBJECT_INHERIT_ACE
	}

	acl, err := windows.ACLFromEntries([]windows.EXPLICIT_ACCESS{{
		AccessPermissions: windows.GENERIC_ALL,
		AccessMode:        windows.SET_ACCESS,
		Inheritance:       inherit,
		Trustee: windows.TRUSTEE{
			TrusteeForm:  windows.TRUSTEE_IS_SID,
			TrusteeType:  windows.TRUSTEE_IS_USER,
			TrusteeValue: windows.TrusteeValueFromSID(user.User.Sid),
		},
	}}, nil)
	if err != nil {
		return fmt.Errorf("build ACL: %w", err)
	}

	info := windows.SECURITY_INFORMATION(windows.DACL_SECURITY_INFORMATION | windows.PROTECTED_DACL_SECURITY_INFORMATION)
	if err := windows.SetNamedSecurityInfo(path, windows.SE_FILE_OBJECT, info, nil, nil, acl, nil); err != nil {
		return fmt.Errorf("set DACL: %w", err)
	}
	return nil
}
