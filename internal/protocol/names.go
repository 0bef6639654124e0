package protocol

import (
	"strings"

	"github.com/dmitrijs2005/gophrelay/internal/common"
)

// reserved characters would break either the frame layout or the routing
// headers of server frames.
const reserved = ";@>+"

// Canonical is the identity form of a username used for every registry and
// store key.
func Canonical(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateUsername rejects names that cannot be routed unambiguously.
func ValidateUsername(name string) error {
	c := Canonical(name)
	if c == "" || strings.ContainsAny(c, reserved) || strings.ContainsAny(c, " \t\r\n") {
		return common.ErrInvalidUsername
	}
	return nil
}
