package geo

import (
	"regexp"
	"strings"
)

var (
	// "12A-14B" -> "12A"
	houseRangeRe = regexp.MustCompile(`(\d+[A-Za-z]?)-\d+[A-Za-z]?`)
	// street name followed by a house number with an optional letter;
	// \p{Zs} admits the no-break spaces found in cp1252 exports
	streetNumberRe = regexp.MustCompile(`([\p{L}\p{Zs} .\-]+?)[\s\p{Zs}]+(\d+[A-Za-z]?)`)
	spaceRunRe     = regexp.MustCompile(`[\s\p{Zs}]+`)
)

// CleanAddress reduces a portal address to "<street> <number>" so it can be
// geocoded. It returns false when no street and number can be found.
func CleanAddress(raw string) (string, bool) {
	s := houseRangeRe.ReplaceAllString(strings.TrimSpace(raw), "$1")
	m := streetNumberRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	street := strings.TrimSpace(spaceRunRe.ReplaceAllString(m[1], " "))
	if street == "" {
		return "", false
	}
	return street + " " + strings.TrimSpace(m[2]), true
}
