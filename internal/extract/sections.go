package extract

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/aak-rpa/henstilling-sync/internal/model"
)

// Section and key names in a scraped case page.
const (
	sectionCase     = "Sag"
	sectionOwner    = "Ejer"
	sectionAddress  = "Adresse"
	sectionMap      = "Kort"
	sectionValidity = "Gyldighed"
	tableViolations = "Forseelser"
)

// Sections is one scraped case page: labelled key/value panels plus tables.
type Sections struct {
	Fields map[string]map[string]string `json:"fields"`
	Tables map[string][][]string        `json:"tables"`
}

func (s *Sections) field(section, key string) string {
	return strings.TrimSpace(s.Fields[section][key])
}

// Case derives the normalized case from the page.
func (s *Sections) Case() *model.Case {
	c := &model.Case{
		ID:        s.field(sectionCase, "Løbenummer"),
		OwnerType: parseOwnerType(s.field(sectionOwner, "Type"), model.OwnerOther),
		OwnerID:   s.field(sectionOwner, "CVR"),
		OwnerName: s.field(sectionOwner, "Navn"),
		Address:   joinAddress(s.field(sectionAddress, "Gade"), s.field(sectionAddress, "Husnummer")),
		Coord:     ParseMapLink(s.field(sectionMap, "Link")),
		ValidFrom: ParseDate(s.field(sectionValidity, "Fra")),
		ValidTo:   ParseDate(s.field(sectionValidity, "Til")),
	}

	for _, row := range s.Tables[tableViolations] {
		if len(row) < 2 {
			continue
		}
		// Header rows and blank lines fail the number parse.
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(row[0]), ".")))
		if err != nil || n <= 0 {
			continue
		}
		c.Items = append(c.Items, model.ViolationItem{Number: n, Text: strings.TrimSpace(row[1])})
	}
	return c
}

// SectionSource reads a stream of Sections documents, one JSON value per line.
type SectionSource struct {
	dec  *json.Decoder
	read int
}

// NewSectionSource returns a Source over the JSON-lines stream in r.
func NewSectionSource(r io.Reader) *SectionSource {
	return &SectionSource{dec: json.NewDecoder(bufio.NewReader(r))}
}

func (s *SectionSource) Next(ctx context.Context) (*model.Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var doc Sections
	if err := s.dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, eris.Wrapf(err, "sections: decode document %d", s.read+1)
	}
	s.read++
	return doc.Case(), nil
}
