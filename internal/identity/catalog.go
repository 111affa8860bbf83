package identity

import (
	"sort"
	"strings"
	"unicode"
)

// defaultCategories maps allow-listed category codes to permit-type labels.
var defaultCategories = map[string]string{
	"8A.":  "Henstilling Stillads m2",
	"8B.":  "Henstilling Container m2",
	"8C.":  "Henstilling Skurvogn m2",
	"9A.":  "Henstilling Byggematerialer m2",
	"9B.":  "Henstilling Materiel m2",
	"11A.": "Henstilling Vareudstilling m2",
	"11B.": "Henstilling Udeservering m2",
}

// Catalog is the immutable category allow-list with its permit-type labels.
// Build it once at startup and pass it to the components that need it.
type Catalog struct {
	labels map[string]string
}

// NewCatalog builds a catalog from a code→label table. The table is copied.
func NewCatalog(table map[string]string) *Catalog {
	labels := make(map[string]string, len(table))
	for code, label := range table {
		labels[code] = label
	}
	return &Catalog{labels: labels}
}

// DefaultCatalog returns the billing allow-list used in production.
func DefaultCatalog() *Catalog {
	return NewCatalog(defaultCategories)
}

// ParseCategory returns the leading category code of a violation text when
// the code is allow-listed.
func (c *Catalog) ParseCategory(text string) (string, bool) {
	code, _ := splitCode(text)
	if code == "" {
		return "", false
	}
	if _, ok := c.labels[code]; !ok {
		return "", false
	}
	return code, true
}

// Label returns the permit-type label for an allow-listed code.
func (c *Catalog) Label(code string) (string, bool) {
	label, ok := c.labels[code]
	return label, ok
}

// Codes returns the allow-listed codes in sorted order.
func (c *Catalog) Codes() []string {
	codes := make([]string, 0, len(c.labels))
	for code := range c.labels {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Description strips the category code token from a violation text.
func (c *Catalog) Description(text string) string {
	_, rest := splitCode(text)
	return rest
}

// splitCode splits text once on the first run of whitespace.
func splitCode(text string) (string, string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	idx := strings.IndexFunc(text, unicode.IsSpace)
	if idx < 0 {
		return text, ""
	}
	return text[:idx], strings.TrimSpace(text[idx:])
}
