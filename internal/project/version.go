package project

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidVersion = errors.New("version must be major.minor.patch with non-negative integers")

// Version is a strict three component package version.
type Version struct {
	Major, Minor, Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// ParseVersion accepts exactly "major.minor.patch".
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}

	var nums [3]int
	for i, p := range parts {
		n, err := parseComponent(p)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

func parseComponent(p string) (int, error) {
	if p == "" {
		return 0, ErrInvalidVersion
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return 0, ErrInvalidVersion
		}
	}
	return strconv.Atoi(p)
}

// versionFromExecutable turns an embedded product version into a package
// version. Windows versions carry four components; the fourth is dropped.
func versionFromExecutable(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) == 4 {
		if _, err := parseComponent(parts[3]); err == nil {
			parts = parts[:3]
		}
	}
	return ParseVersion(strings.Join(parts, "."))
}
