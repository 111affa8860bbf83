package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aak-rpa/henstilling-sync/internal/model"
	"github.com/aak-rpa/henstilling-sync/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func orgCase(id string, texts ...string) *model.Case {
	c := &model.Case{
		ID:        id,
		OwnerType: model.OwnerOrganization,
		OwnerID:   "13585628",
		Address:   "Vestergade 12",
		Coord:     &model.Coordinate{Lat: 56.1572, Lon: 10.2107},
	}
	for i, text := range texts {
		c.Items = append(c.Items, model.ViolationItem{Number: i + 1, Text: text})
	}
	return c
}
