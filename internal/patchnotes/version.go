package patchnotes

import (
	"fmt"
	"regexp"
	"strconv"
)

// Version is a two-part patch number such as 12.02
type Version struct {
	Major int
	Minor int
}

// String formats the version with a zero-padded two-digit minor
func (v Version) String() string {
	return fmt.Sprintf("%d.%02d", v.Major, v.Minor)
}

// Less orders versions by (major, minor)
func (v Version) Less(other Version) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	return v.Minor < other.Minor
}

var (
	// listingVersionPattern finds versions inside URLs like valorant-patch-notes-12-02
	listingVersionPattern = regexp.MustCompile(`(\d{1,2})[-.](\d{1,2})`)
	// articleVersionPattern requires word boundaries so dates and ids in titles are skipped
	articleVersionPattern = regexp.MustCompile(`\b(\d{1,2})[.-](\d{1,2})\b`)
)

func parseVersion(pattern *regexp.Regexp, value string) (Version, bool) {
	m := pattern.FindStringSubmatch(value)
	if m == nil {
		return Version{}, false
	}
	major, err := strconv.Atoi(m[1])
	if err != nil {
		return Version{}, false
	}
	minor, err := strconv.Atoi(m[2])
	if err != nil {
		return Version{}, false
	}
	return Version{Major: major, Minor: minor}, true
}

// ParseListingVersion extracts a version from a listing URL or anchor text
func ParseListingVersion(value string) (Version, bool) {
	return parseVersion(listingVersionPattern, value)
}

// FindPatchID returns the formatted version from the first value that
// contains one, or "" when none does.
func FindPatchID(values ...string) string {
	for _, value := range values {
		if v, ok := parseVersion(articleVersionPattern, value); ok {
			return v.String()
		}
	}
	return ""
}
