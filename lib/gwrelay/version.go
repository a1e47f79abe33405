package gwrelay

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Version is the build version a worker advertises when it connects
type Version struct {
	Major int
	Minor int
	Patch int
}

var ErrInvalidVersion = errors.New("invalid version")

// MaxVersionComponent is the largest accepted major, minor or patch number
const MaxVersionComponent = 9999

// ParseVersion parses a "major.minor.patch" string, missing trailing components are treated as 0
func ParseVersion(s string) (Version, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	if s == "" {
		return Version{}, errors.WithMessage(ErrInvalidVersion, "empty version")
	}

	split := strings.Split(s, ".")
	if len(split) > 3 {
		return Version{}, errors.WithMessage(ErrInvalidVersion, s)
	}

	var parts [3]int
	for i, v := range split {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > MaxVersionComponent {
			return Version{}, errors.WithMessage(ErrInvalidVersion, s)
		}

		parts[i] = n
	}

	return Version{Major: parts[0], Minor: parts[1], Patch: parts[2]}, nil
}

// MustParseVersion is the same as ParseVersion but panics on errors
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}

	return v
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func (v Version) parts() [3]int {
	return [3]int{v.Major, v.Minor, v.Patch}
}

// CompareVersions returns how much newer b is than a.
//
// The result is positive if b is newer, negative if b is older and 0 if they're equal.
// The magnitude is the difference of the first mismatching component scaled by its position,
// major differences are scaled by 10000, minor by 100 and patch by 1.
// Differences are clamped to MaxVersionComponent so the result can't overflow.
func CompareVersions(a, b Version) int {
	ap := a.parts()
	bp := b.parts()

	scale := 10000
	for i := 0; i < 3; i++ {
		if ap[i] == bp[i] {
			scale /= 100
			continue
		}

		diff := MaxVersionComponent
		if ap[i] > bp[i] {
			diff = -diff
		}

		if ap[i] >= 0 && bp[i] >= 0 {
			d := bp[i] - ap[i]
			if d > -MaxVersionComponent && d < MaxVersionComponent {
				diff = d
			}
		}

		return diff * scale
	}

	return 0
}

// OlderThan returns true if v is strictly older than other
func (v Version) OlderThan(other Version) bool {
	return CompareVersions(v, other) > 0
}
