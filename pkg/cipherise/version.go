package cipherise

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a three component server/protocol version.
// Comparison is lexicographic over [major, minor, patch].
type Version struct {
	digits [3]int
}

// NewVersion returns a Version from its 3 components.
func NewVersion(major, minor, patch int) (Version, error) {
	if major < 0 || minor < 0 || patch < 0 {
		return Version{}, newError("version components must be non negative, got %d.%d.%d", major, minor, patch)
	}
	return Version{digits: [3]int{major, minor, patch}}, nil
}

// ParseVersion parses a dotted version string like "6.0.0".
func ParseVersion(text string) (Version, error) {
	parts := strings.Split(text, ".")
	if len(parts) != 3 {
		return Version{}, newError("version %q does not have 3 components", text)
	}

	var digits [3]int
	for pos, part := range parts {
		n, err := strconv.Atoi(part)
		if nil != err || n < 0 {
			return Version{}, newError("version %q has invalid component %q", text, part)
		}
		digits[pos] = n
	}

	return Version{digits: digits}, nil
}

// Major returns the version major component.
func (self Version) Major() int {
	return self.digits[0]
}

// Compare returns -1, 0 or +1 depending on whether self sorts before, equal
// to, or after other.
func (self Version) Compare(other Version) int {
	for pos := range self.digits {
		if self.digits[pos] != other.digits[pos] {
			if self.digits[pos] < other.digits[pos] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// String returns the dotted form of the Version.
func (self Version) String() string {
	return fmt.Sprintf("%d.%d.%d", self.digits[0], self.digits[1], self.digits[2])
}

// UnmarshalText parses a dotted version string.
func (self *Version) UnmarshalText(text []byte) error {
	v, err := ParseVersion(string(text))
	if nil != err {
		return err
	}
	*self = v
	return nil
}

// MarshalText returns the dotted form of the Version.
func (self Version) MarshalText() ([]byte, error) {
	return []byte(self.String()), nil
}
