package util

import (
	"regexp"
)

var hexRegex = regexp.MustCompile(`^0x([0-9a-fA-F]{2})*$`)

// IsValidHex accepts 0x-prefixed even-length hex strings, including "0x".
func IsValidHex(s string) bool {
	return hexRegex.MatchString(s)
}
