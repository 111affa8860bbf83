package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aak-rpa/henstilling-sync/internal/extract"
	"github.com/aak-rpa/henstilling-sync/internal/geo"
	"github.com/aak-rpa/henstilling-sync/internal/identity"
	"github.com/aak-rpa/henstilling-sync/internal/model"
	"github.com/aak-rpa/henstilling-sync/internal/store"
)

func TestProcessCase_Gates(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *model.Case)
		reason SkipReason
	}{
		{"missing id", func(c *model.Case) { c.ID = "  " }, SkipMissingCaseID},
		{"individual owner", func(c *model.Case) { c.OwnerType = model.OwnerOther }, SkipOwnerType},
		{"missing owner id", func(c *model.Case) { c.OwnerID = "" }, SkipInvalidOwnerID},
		{"bad checksum", func(c *model.Case) { c.OwnerID = "13585627" }, SkipInvalidOwnerID},
		{"no allow-listed items", func(c *model.Case) { c.Items = c.Items[1:] }, SkipNoBillableItems},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := new(mockStore)
			p := New(st, nil, nil, identity.DefaultCatalog(), Config{})

			c := orgCase("H-001", "8B. Container på vej", "4C. Skilt")
			tt.mutate(c)

			_, err := p.ProcessCase(context.Background(), c)
			skip, ok := AsSkip(err)
			require.True(t, ok, "expected skip, got %v", err)
			assert.Equal(t, tt.reason, skip.Reason)
			st.AssertNotCalled(t, "FindByCase", mock.Anything, mock.Anything)
			st.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
		})
	}
}

func TestProcessCase_NilCase(t *testing.T) {
	p := New(new(mockStore), nil, nil, identity.DefaultCatalog(), Config{})
	_, err := p.ProcessCase(context.Background(), nil)
	skip, ok := AsSkip(err)
	require.True(t, ok)
	assert.Equal(t, SkipMissingCaseID, skip.Reason)
}

func TestProcessCase_WritesQualifyingItems(t *testing.T) {
	ctx := context.Background()
	st := new(mockStore)
	corr := new(mockCorrector)
	c := orgCase("H-001", "8B. Container på vej", "4C. Skilt", "9A. Paller")
	c.OwnerName = "Byg & Anlæg ApS"

	fixed := &model.Coordinate{Lat: 56.2, Lon: 10.2}
	st.On("FindByCase", ctx, "H-001").Return(nil, nil)
	corr.On("Correct", ctx, "Vestergade 12", c.Coord).Return(geo.Correction{Coord: fixed, Outcome: geo.OutcomeCorrected})
	st.On("Upsert", ctx, mock.AnythingOfType("*model.StoredRecord")).Return(true, nil)

	p := New(st, corr, nil, identity.DefaultCatalog(), Config{})
	res, err := p.ProcessCase(ctx, c)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Planned)
	assert.Equal(t, 2, res.Written)
	assert.Equal(t, NameResolution{Name: "Byg & Anlæg ApS", Source: NameFromCase}, res.Name)
	assert.Equal(t, geo.OutcomeCorrected, res.Correction.Outcome)

	st.AssertNumberOfCalls(t, "Upsert", 2)
	first := st.Calls[1].Arguments.Get(1).(*model.StoredRecord)
	assert.Equal(t, "H-001_1", first.Key)
	assert.Equal(t, "Container på vej", first.Description)
	assert.Equal(t, fixed, first.Coord)
	second := st.Calls[2].Arguments.Get(1).(*model.StoredRecord)
	assert.Equal(t, "H-001_3", second.Key)
	require.NotNil(t, second.PermitType)
	assert.Equal(t, "Henstilling Byggematerialer m2", *second.PermitType)
	st.AssertNotCalled(t, "FindCachedName", mock.Anything, mock.Anything)
}

func TestProcessCase_PartialWriteFailure(t *testing.T) {
	ctx := context.Background()
	st := new(mockStore)
	st.On("FindByCase", ctx, "H-001").Return(nil, nil)
	st.On("FindCachedName", ctx, "13585628").Return("Byg ApS", nil)
	st.On("Upsert", ctx, mock.MatchedBy(func(r *model.StoredRecord) bool { return r.Key == "H-001_1" })).
		Return(false, errors.New("disk full"))
	st.On("Upsert", ctx, mock.MatchedBy(func(r *model.StoredRecord) bool { return r.Key == "H-001_2" })).
		Return(true, nil)

	p := New(st, nil, nil, identity.DefaultCatalog(), Config{})
	res, err := p.ProcessCase(ctx, orgCase("H-001", "8B. Container", "8C. Skurvogn"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.WriteErrors)
	assert.Equal(t, 1, res.Written)
}

func TestProcessCase_LockedAtWrite(t *testing.T) {
	ctx := context.Background()
	st := new(mockStore)
	st.On("FindByCase", ctx, "H-001").Return(nil, nil)
	st.On("FindCachedName", ctx, "13585628").Return("", nil)
	st.On("Upsert", ctx, mock.Anything).Return(false, nil)

	p := New(st, nil, nil, identity.DefaultCatalog(), Config{})
	res, err := p.ProcessCase(ctx, orgCase("H-001", "8B. Container"))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Written)
	assert.Equal(t, []string{"H-001_1"}, res.Locked)
	assert.Equal(t, NameFallback, res.Name.Source)
}

func TestProcessCase_AllLockedSkipsLookups(t *testing.T) {
	ctx := context.Background()
	st := new(mockStore)
	names := new(mockNames)
	corr := new(mockCorrector)
	st.On("FindByCase", ctx, "H-001").Return([]model.StoredRecord{
		{Key: "H-001_1", Status: "Faktureret"},
	}, nil)

	p := New(st, corr, names, identity.DefaultCatalog(), Config{})
	res, err := p.ProcessCase(ctx, orgCase("H-001", "8B. Container"))
	require.NoError(t, err)
	assert.Equal(t, []string{"H-001_1"}, res.Locked)
	names.AssertNotCalled(t, "LookupName", mock.Anything, mock.Anything)
	corr.AssertNotCalled(t, "Correct", mock.Anything, mock.Anything, mock.Anything)
	st.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestProcessCase_DryRun(t *testing.T) {
	ctx := context.Background()
	st := new(mockStore)
	st.On("FindByCase", ctx, "H-001").Return(nil, nil)
	st.On("FindCachedName", ctx, "13585628").Return("Byg ApS", nil)

	p := New(st, nil, nil, identity.DefaultCatalog(), Config{DryRun: true})
	res, err := p.ProcessCase(ctx, orgCase("H-001", "8B. Container", "8C. Skurvogn"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Planned)
	assert.Equal(t, 0, res.Written)
	st.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestProcessCase_StoreLookupError(t *testing.T) {
	ctx := context.Background()
	st := new(mockStore)
	st.On("FindByCase", ctx, "H-001").Return(nil, errors.New("database is closed"))

	p := New(st, nil, nil, identity.DefaultCatalog(), Config{})
	_, err := p.ProcessCase(ctx, orgCase("H-001", "8B. Container"))
	require.Error(t, err)
	_, isSkip := AsSkip(err)
	assert.False(t, isSkip)
	assert.Contains(t, err.Error(), "pipeline: load case H-001")
}

func TestRun_Tallies(t *testing.T) {
	ctx := context.Background()
	st := new(mockStore)
	corr := new(mockCorrector)
	st.On("FindByCase", ctx, mock.Anything).Return(nil, nil)
	st.On("FindCachedName", ctx, "13585628").Return("Byg ApS", nil)
	st.On("Upsert", ctx, mock.Anything).Return(true, nil)
	corr.On("Correct", ctx, mock.Anything, mock.Anything).
		Return(geo.Correction{Coord: &model.Coordinate{Lat: 56.2, Lon: 10.2}, Outcome: geo.OutcomeCorrected}).Once()
	corr.On("Correct", ctx, mock.Anything, mock.Anything).
		Return(geo.Correction{Outcome: geo.OutcomeGeocoded, Coord: &model.Coordinate{Lat: 56.1, Lon: 10.1}}).Once()

	individual := orgCase("H-003", "8B. Container")
	individual.OwnerType = model.OwnerOther
	src := extract.NewSliceSource(
		orgCase("H-001", "8B. Container", "8C. Skurvogn"),
		orgCase("H-002", "9B. Materiel"),
		individual,
		orgCase("H-004", "4C. Skilt"),
	)

	p := New(st, corr, nil, identity.DefaultCatalog(), Config{})
	res, err := p.Run(ctx, src)
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 4, res.Cases)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 3, res.Written)
	assert.Equal(t, 1, res.Corrected)
	assert.Equal(t, 1, res.Geocoded)
	assert.Equal(t, 2, res.SkippedTotal())
	assert.Equal(t, 1, res.Skipped[SkipOwnerType])
	assert.Equal(t, 1, res.Skipped[SkipNoBillableItems])
	assert.False(t, res.Capped)

	// Name came from the store once, then from the run cache.
	st.AssertNumberOfCalls(t, "FindCachedName", 1)
}

func TestRun_Cap(t *testing.T) {
	ctx := context.Background()
	st := new(mockStore)
	st.On("FindByCase", ctx, mock.Anything).Return(nil, nil)
	st.On("FindCachedName", ctx, mock.Anything).Return("Byg ApS", nil)
	st.On("Upsert", ctx, mock.Anything).Return(true, nil)

	src := extract.NewSliceSource(orgCase("H-001", "8B. Container"), orgCase("H-002", "8B. Container"))
	p := New(st, nil, nil, identity.DefaultCatalog(), Config{MaxCases: 1})
	res, err := p.Run(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Cases)
	assert.True(t, res.Capped)
	st.AssertNotCalled(t, "FindByCase", ctx, "H-002")
}

type failingSource struct{}

func (failingSource) Next(context.Context) (*model.Case, error) {
	return nil, errors.New("portal session expired")
}

func TestRun_SourceErrorAborts(t *testing.T) {
	p := New(new(mockStore), nil, nil, identity.DefaultCatalog(), Config{})
	res, err := p.Run(context.Background(), failingSource{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: read case")
	assert.Equal(t, 0, res.Cases)
}

func TestRun_StoreErrorAborts(t *testing.T) {
	ctx := context.Background()
	st := new(mockStore)
	st.On("FindByCase", ctx, "H-001").Return(nil, errors.New("connection reset"))

	src := extract.NewSliceSource(orgCase("H-001", "8B. Container"), orgCase("H-002", "8B. Container"))
	res, err := New(st, nil, nil, identity.DefaultCatalog(), Config{}).Run(ctx, src)
	require.Error(t, err)
	assert.Equal(t, 1, res.Cases)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(new(mockStore), nil, nil, identity.DefaultCatalog(), Config{}).
		Run(ctx, extract.NewSliceSource(orgCase("H-001", "8B. Container")))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_FreshCachePerRun(t *testing.T) {
	ctx := context.Background()
	st := new(mockStore)
	names := new(mockNames)
	st.On("FindByCase", ctx, mock.Anything).Return(nil, nil)
	st.On("FindCachedName", ctx, "13585628").Return("", nil)
	st.On("Upsert", ctx, mock.Anything).Return(true, nil)
	names.On("LookupName", ctx, "13585628").Return("Byg ApS", nil)

	p := New(st, nil, names, identity.DefaultCatalog(), Config{})
	for range 2 {
		src := extract.NewSliceSource(orgCase("H-001", "8B. Container"), orgCase("H-002", "8B. Container"))
		_, err := p.Run(ctx, src)
		require.NoError(t, err)
	}
	names.AssertNumberOfCalls(t, "LookupName", 2)
}

// Idempotence and write-lock against a real store.

func TestRun_IdempotentAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	cases := func() extract.Source {
		a := orgCase("H-001", "8B. Container på vej", "9A. Paller")
		a.OwnerName = "Byg & Anlæg ApS"
		b := orgCase("H-002", "11B. Udeservering")
		b.OwnerID = "10150817"
		return extract.NewSliceSource(a, b)
	}

	p := New(st, nil, nil, identity.DefaultCatalog(), Config{})
	first, err := p.Run(ctx, cases())
	require.NoError(t, err)
	assert.Equal(t, 3, first.Written)
	snapshot := stableRecords(t, st)

	second, err := p.Run(ctx, cases())
	require.NoError(t, err)
	assert.Equal(t, 3, second.Written)
	assert.Equal(t, snapshot, stableRecords(t, st))
	require.Len(t, snapshot, 3)
	assert.Equal(t, model.FallbackOwnerName, snapshot[2].OwnerName)
}

func TestRun_WriteLockAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	area := 12.0
	label := "Henstilling Container m2"
	_, err := st.Upsert(ctx, &model.StoredRecord{
		Key: "H-001_1", CaseID: "H-001", ItemNumber: 1, Description: "Container",
		OwnerID: "13585628", OwnerName: "Byg ApS", Area: &area, PermitType: &label,
		Status: "Faktureret",
	})
	require.NoError(t, err)
	before, err := st.FindByCase(ctx, "H-001")
	require.NoError(t, err)

	c := orgCase("H-001", "8B. Container flyttet", "8C. Skurvogn")
	res, err := New(st, nil, nil, identity.DefaultCatalog(), Config{}).Run(ctx, extract.NewSliceSource(c))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written)
	assert.Equal(t, 1, res.Locked)

	after, err := st.FindByCase(ctx, "H-001")
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, before[0], after[0])
	assert.Equal(t, model.StatusNew, after[1].Status)
	assert.Equal(t, "Byg ApS", after[1].OwnerName, "name reused from the stored record")
}

func TestRun_IndividualOwnerWritesNothing(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	c := orgCase("H-001", "8B. Container")
	c.OwnerType = model.OwnerOther

	res, err := New(st, nil, nil, identity.DefaultCatalog(), Config{}).Run(ctx, extract.NewSliceSource(c))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Written)

	all, err := st.ListRecords(ctx, store.RecordFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRun_DuplicateItemNumberKeepsFirst(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	c := orgCase("H-009")
	c.OwnerName = "Byg ApS"
	c.Items = []model.ViolationItem{
		{Number: 1, Text: "4C. Skilt"},
		{Number: 1, Text: "8B. Container"},
		{Number: 1, Text: "9A. Paller"},
		{Number: 2, Text: "9A. Paller"},
	}

	p := New(st, nil, nil, identity.DefaultCatalog(), Config{})
	res, err := p.Run(ctx, extract.NewSliceSource(c))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Planned)
	assert.Equal(t, 2, res.Written)

	recs, err := st.FindByCase(ctx, "H-009")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	byKey := map[string]model.StoredRecord{}
	for _, r := range recs {
		byKey[r.Key] = r
	}
	first := byKey["H-009_1"]
	assert.Equal(t, "Container", first.Description)
	require.NotNil(t, first.PermitType)
	assert.Equal(t, "Henstilling Container m2", *first.PermitType)
	assert.Equal(t, "Paller", byKey["H-009_2"].Description)
}

// stableRecords lists records with bookkeeping columns cleared.
func stableRecords(t *testing.T, st store.Store) []model.StoredRecord {
	t.Helper()
	recs, err := st.ListRecords(context.Background(), store.RecordFilter{})
	require.NoError(t, err)
	for i := range recs {
		recs[i].LastRunID = ""
		recs[i].UpdatedAt = recs[i].CreatedAt
	}
	return recs
}
