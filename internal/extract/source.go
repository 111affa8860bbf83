// Package extract turns portal output into normalized cases.
package extract

import (
	"context"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aak-rpa/henstilling-sync/internal/model"
)

// Source yields cases one at a time. Next returns io.EOF when exhausted.
type Source interface {
	Next(ctx context.Context) (*model.Case, error)
}

// SliceSource serves cases from memory.
type SliceSource struct {
	cases []*model.Case
	pos   int
}

// NewSliceSource returns a Source over cases.
func NewSliceSource(cases ...*model.Case) *SliceSource {
	return &SliceSource{cases: cases}
}

func (s *SliceSource) Next(ctx context.Context) (*model.Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.cases) {
		return nil, io.EOF
	}
	c := s.cases[s.pos]
	s.pos++
	return c, nil
}

var dateLayouts = []string{"02-01-2006", "02-01-06", "2006-01-02"}

// ParseDate parses a portal date such as "01-03-25" or "01-03-2025 08:00".
// Anything after the first whitespace is ignored. Malformed input yields nil.
func ParseDate(raw string) *time.Time {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, fields[0]); err == nil {
			return &t
		}
	}
	return nil
}

// ParseDecimal parses a number that may use a decimal comma.
func ParseDecimal(raw string) (float64, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseCoordinate builds a coordinate from separate latitude and longitude
// cells. Out-of-range or unparsable values yield nil.
func ParseCoordinate(lat, lon string) *model.Coordinate {
	la, ok1 := ParseDecimal(lat)
	lo, ok2 := ParseDecimal(lon)
	if !ok1 || !ok2 || la < -90 || la > 90 || lo < -180 || lo > 180 {
		return nil
	}
	return &model.Coordinate{Lat: la, Lon: lo}
}

var mapLinkRe = regexp.MustCompile(`[?&#]ll=(-?[0-9.]+)(?:,|%2C|%2c)(-?[0-9.]+)`)

// ParseMapLink extracts the coordinate from a map link carrying ll=<lat>,<lon>.
func ParseMapLink(link string) *model.Coordinate {
	m := mapLinkRe.FindStringSubmatch(link)
	if m == nil {
		return nil
	}
	return ParseCoordinate(m[1], m[2])
}

// parseOwnerType maps the portal owner type. Blank input yields blank.
func parseOwnerType(raw string, blank model.OwnerType) model.OwnerType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return blank
	case "virksomhed", "organization", "organisation":
		return model.OwnerOrganization
	default:
		return model.OwnerOther
	}
}

func joinAddress(street, number string) string {
	street, number = strings.TrimSpace(street), strings.TrimSpace(number)
	switch {
	case street == "":
		return number
	case number == "":
		return street
	default:
		return street + " " + number
	}
}
