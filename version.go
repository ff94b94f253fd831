package camilladsp

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is the engine version reported by GetVersion, e.g. 1.0.3 or 2.0.0-alpha2.
type Version struct {
	Major  int
	Minor  int
	Patch  int
	Suffix string // pre-release or build text after the patch number, without separator
}

// ParseVersion parses "major.minor.patch" with an optional suffix after the patch.
func ParseVersion(text string) (Version, error) {
	parts := strings.SplitN(strings.TrimSpace(text), ".", 3)
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("version %q: want major.minor.patch", text)
	}

	var v Version
	var err error
	if v.Major, err = parseComponent(parts[0]); err != nil {
		return Version{}, fmt.Errorf("version %q: invalid major: %w", text, err)
	}
	if v.Minor, err = parseComponent(parts[1]); err != nil {
		return Version{}, fmt.Errorf("version %q: invalid minor: %w", text, err)
	}

	patch := parts[2]
	end := 0
	for end < len(patch) && isDigit(patch[end]) {
		end++
	}
	if v.Patch, err = parseComponent(patch[:end]); err != nil {
		return Version{}, fmt.Errorf("version %q: invalid patch: %w", text, err)
	}
	v.Suffix = strings.TrimLeft(patch[end:], "-+.")

	return v, nil
}

func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Suffix != "" {
		s += "-" + v.Suffix
	}
	return s
}

// AtLeast reports whether v is major.minor.patch or newer, ignoring the suffix.
func (v Version) AtLeast(major, minor, patch int) bool {
	if v.Major != major {
		return v.Major > major
	}
	if v.Minor != minor {
		return v.Minor > minor
	}
	return v.Patch >= patch
}

// parseComponent accepts unsigned decimal numbers only.
func parseComponent(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return 0, fmt.Errorf("%q is not a number", s)
		}
	}
	return strconv.Atoi(s)
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
