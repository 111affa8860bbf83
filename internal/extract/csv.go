package extract

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/aak-rpa/henstilling-sync/internal/model"
)

// Column names in the portal's case export.
const (
	colCaseID     = "Løbenummer"
	colCaseStatus = "Status på sagen"
	colOwnerType  = "Ejertype"
	colOwnerID    = "Ejerinfo"
	colOwnerName  = "Ejernavn"
	colStart      = "StartDato"
	colEnd        = "SlutDato"
	colStreet     = "Gade"
	colNumber     = "Husnummer"
	colViolation  = "Navn på forseelse"
	colLat        = "Latitude"
	colLon        = "Longitude"
)

var requiredColumns = []string{colCaseID, colCaseStatus, colOwnerID, colViolation}

// Defaults for the portal export.
const (
	DefaultCharset    = "windows-1252"
	DefaultCaseStatus = "Henstilling til oppfølging"
)

// CSVConfig configures a CSVSource.
type CSVConfig struct {
	Charset    string // any WHATWG encoding label; default windows-1252
	CaseStatus string // rows with another case status are ignored
	Delimiter  rune   // default ';'
}

// CSVSource reads the portal's case export. The export has one row per
// violation; rows are grouped into cases by case number in first-seen order
// and numbered 1..n within each case.
type CSVSource struct {
	r      io.Reader
	cfg    CSVConfig
	cases  []*model.Case
	loaded bool
	pos    int
}

// NewCSVSource returns a Source over the export in r.
func NewCSVSource(r io.Reader, cfg CSVConfig) *CSVSource {
	if cfg.Charset == "" {
		cfg.Charset = DefaultCharset
	}
	if cfg.CaseStatus == "" {
		cfg.CaseStatus = DefaultCaseStatus
	}
	if cfg.Delimiter == 0 {
		cfg.Delimiter = ';'
	}
	return &CSVSource{r: r, cfg: cfg}
}

func (s *CSVSource) Next(ctx context.Context) (*model.Case, error) {
	if !s.loaded {
		cases, err := s.load(ctx)
		if err != nil {
			return nil, err
		}
		s.cases, s.loaded = cases, true
	}
	if s.pos >= len(s.cases) {
		return nil, io.EOF
	}
	c := s.cases[s.pos]
	s.pos++
	return c, nil
}

func (s *CSVSource) load(ctx context.Context) ([]*model.Case, error) {
	enc, err := htmlindex.Get(s.cfg.Charset)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: unknown charset %q", s.cfg.Charset)
	}

	reader := csv.NewReader(enc.NewDecoder().Reader(s.r))
	reader.Comma = s.cfg.Delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1 // the portal drops trailing empty cells

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}
	cols, err := headerIndex(header)
	if err != nil {
		return nil, err
	}

	var (
		byID    = make(map[string]*model.Case)
		ordered []*model.Case
		rowNum  = 1
		ignored int
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "csv: context cancelled")
		}
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "csv: read row %d", rowNum+1)
		}
		rowNum++

		get := func(name string) string {
			if i, ok := cols[name]; ok && i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}

		if get(colCaseStatus) != s.cfg.CaseStatus {
			ignored++
			continue
		}
		id := get(colCaseID)
		if id == "" {
			zap.L().Warn("csv: row without case number", zap.Int("row", rowNum))
			ignored++
			continue
		}

		c, ok := byID[id]
		if !ok {
			c = &model.Case{
				ID:        id,
				OwnerType: parseOwnerType(get(colOwnerType), model.OwnerOrganization),
				OwnerID:   get(colOwnerID),
				OwnerName: get(colOwnerName),
				Address:   joinAddress(get(colStreet), get(colNumber)),
				Coord:     ParseCoordinate(get(colLat), get(colLon)),
				ValidFrom: ParseDate(get(colStart)),
				ValidTo:   ParseDate(get(colEnd)),
			}
			byID[id] = c
			ordered = append(ordered, c)
		}
		c.Items = append(c.Items, model.ViolationItem{
			Number: len(c.Items) + 1,
			Text:   get(colViolation),
		})
	}

	zap.L().Debug("csv: export loaded",
		zap.Int("rows", rowNum-1),
		zap.Int("cases", len(ordered)),
		zap.Int("ignored", ignored),
	)
	return ordered, nil
}

func headerIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		cols[h] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, eris.Errorf("csv: missing column %q", name)
		}
	}
	return cols, nil
}
