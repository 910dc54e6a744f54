package security

import (
	"os/user"
	"strings"

	"kernel.org/pub/linux/libs/security/libcap/cap"
)

// HasCaps reports whether the current process already carries every capability
// named in required (by name, e.g. "cap_setuid").
func HasCaps(required []string) bool {
	current := cap.GetProc().String()

	for _, name := range required {
		if !strings.Contains(current, name) {
			return false
		}
	}

	return true
}

// IsRoot reports whether the current process is running as root.
func IsRoot() bool {
	u, err := user.Current()

	return err == nil && u.Uid == "0"
}
