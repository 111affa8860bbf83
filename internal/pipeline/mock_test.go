package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/aak-rpa/henstilling-sync/internal/geo"
	"github.com/aak-rpa/henstilling-sync/internal/model"
	"github.com/aak-rpa/henstilling-sync/internal/store"
)

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) FindByCase(ctx context.Context, caseID string) ([]model.StoredRecord, error) {
	args := m.Called(ctx, caseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.StoredRecord), args.Error(1)
}

func (m *mockStore) FindCachedName(ctx context.Context, ownerID string) (string, error) {
	args := m.Called(ctx, ownerID)
	return args.String(0), args.Error(1)
}

func (m *mockStore) Upsert(ctx context.Context, rec *model.StoredRecord) (bool, error) {
	args := m.Called(ctx, rec)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) ListRecords(ctx context.Context, filter store.RecordFilter) ([]model.StoredRecord, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.StoredRecord), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// --- Registry Mock ---

type mockNames struct {
	mock.Mock
}

func (m *mockNames) LookupName(ctx context.Context, ownerID string) (string, error) {
	args := m.Called(ctx, ownerID)
	return args.String(0), args.Error(1)
}

// --- Corrector Mock ---

type mockCorrector struct {
	mock.Mock
}

func (m *mockCorrector) Correct(ctx context.Context, address string, coord *model.Coordinate) geo.Correction {
	args := m.Called(ctx, address, coord)
	return args.Get(0).(geo.Correction)
}
