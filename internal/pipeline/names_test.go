package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/aak-rpa/henstilling-sync/internal/identity"
	"github.com/aak-rpa/henstilling-sync/internal/model"
)

func TestNameCache(t *testing.T) {
	c := NewNameCache()
	_, ok := c.Get("13585628")
	assert.False(t, ok)

	c.Put("13585628", "Byg ApS")
	name, ok := c.Get("13585628")
	assert.True(t, ok)
	assert.Equal(t, "Byg ApS", name)
	assert.Equal(t, 1, c.Len())
}

func TestResolveName_Order(t *testing.T) {
	ctx := context.Background()

	t.Run("case name wins", func(t *testing.T) {
		st, names := new(mockStore), new(mockNames)
		p := New(st, nil, names, identity.DefaultCatalog(), Config{})
		c := orgCase("H-001")
		c.OwnerName = "  Byg ApS "

		assert.Equal(t, NameResolution{Name: "Byg ApS", Source: NameFromCase}, p.resolveName(ctx, c))
		st.AssertNotCalled(t, "FindCachedName", mock.Anything, mock.Anything)

		// Cached for later cases of the same owner.
		assert.Equal(t, NameResolution{Name: "Byg ApS", Source: NameFromCache}, p.resolveName(ctx, orgCase("H-002")))
	})

	t.Run("store before registry", func(t *testing.T) {
		st, names := new(mockStore), new(mockNames)
		st.On("FindCachedName", ctx, "13585628").Return("Stored ApS", nil)
		p := New(st, nil, names, identity.DefaultCatalog(), Config{})

		assert.Equal(t, NameResolution{Name: "Stored ApS", Source: NameFromStore}, p.resolveName(ctx, orgCase("H-001")))
		names.AssertNotCalled(t, "LookupName", mock.Anything, mock.Anything)
	})

	t.Run("registry once per run", func(t *testing.T) {
		st, names := new(mockStore), new(mockNames)
		st.On("FindCachedName", ctx, "13585628").Return("", nil)
		names.On("LookupName", ctx, "13585628").Return(" Registry ApS ", nil)
		p := New(st, nil, names, identity.DefaultCatalog(), Config{})

		assert.Equal(t, NameResolution{Name: "Registry ApS", Source: NameFromRegistry}, p.resolveName(ctx, orgCase("H-001")))
		assert.Equal(t, NameResolution{Name: "Registry ApS", Source: NameFromCache}, p.resolveName(ctx, orgCase("H-002")))
		names.AssertNumberOfCalls(t, "LookupName", 1)
	})

	t.Run("store error falls through", func(t *testing.T) {
		st, names := new(mockStore), new(mockNames)
		st.On("FindCachedName", ctx, "13585628").Return("", errors.New("timeout"))
		names.On("LookupName", ctx, "13585628").Return("Registry ApS", nil)
		p := New(st, nil, names, identity.DefaultCatalog(), Config{})

		assert.Equal(t, NameFromRegistry, p.resolveName(ctx, orgCase("H-001")).Source)
	})

	t.Run("fallback is cached", func(t *testing.T) {
		st, names := new(mockStore), new(mockNames)
		st.On("FindCachedName", ctx, "13585628").Return("", nil)
		names.On("LookupName", ctx, "13585628").Return("", errors.New("registry: unexpected status 503"))
		p := New(st, nil, names, identity.DefaultCatalog(), Config{})

		assert.Equal(t, NameResolution{Name: model.FallbackOwnerName, Source: NameFallback}, p.resolveName(ctx, orgCase("H-001")))
		assert.Equal(t, NameResolution{Name: model.FallbackOwnerName, Source: NameFromCache}, p.resolveName(ctx, orgCase("H-002")))
		names.AssertNumberOfCalls(t, "LookupName", 1)
		st.AssertNumberOfCalls(t, "FindCachedName", 1)
	})

	t.Run("no registry", func(t *testing.T) {
		st := new(mockStore)
		st.On("FindCachedName", ctx, "13585628").Return("", nil)
		p := New(st, nil, nil, identity.DefaultCatalog(), Config{})

		assert.Equal(t, NameFallback, p.resolveName(ctx, orgCase("H-001")).Source)
	})
}

func TestSkipError(t *testing.T) {
	err := &SkipError{CaseID: "H-001", Reason: SkipOwnerType, Detail: "other"}
	assert.Equal(t, "pipeline: skip case H-001: owner_not_organization (other)", err.Error())

	wrapped := errors.Join(errors.New("context"), err)
	skip, ok := AsSkip(wrapped)
	assert.True(t, ok)
	assert.Equal(t, SkipOwnerType, skip.Reason)

	_, ok = AsSkip(errors.New("plain"))
	assert.False(t, ok)
}
