package state

import (
	"fmt"
	"regexp"
)

// Reserved names may never be claimed by a user or a group.
var reservedNames = map[string]bool{
	"global":  true,
	"system":  true,
	"admin":   true,
	"null":    true,
	"none":    true,
	"program": true,
}

var nameRE = regexp.MustCompile(`^[a-z][a-z0-9_-]*[a-z0-9]$`)

// IsReserved reports whether name is in the reserved set.
func IsReserved(name string) bool {
	return reservedNames[name]
}

// CheckName validates a candidate user or group name: lowercase token of
// letters, digits, '-' and '_', starting with a letter, ending with a letter
// or digit. Reservation and uniqueness are checked separately by the
// registry.
func CheckName(name string) error {
	if name == "" {
		return fmt.Errorf("name is empty")
	}
	if !nameRE.MatchString(name) {
		return fmt.Errorf("name %q must be lowercase, start with a letter, end with a letter or digit, and contain only letters, digits, '-' or '_'", name)
	}
	return nil
}
