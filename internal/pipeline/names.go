package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/aak-rpa/henstilling-sync/internal/model"
)

// NameSource records where an owner name came from.
type NameSource string

const (
	NameFromCase     NameSource = "case"
	NameFromCache    NameSource = "cache"
	NameFromStore    NameSource = "store"
	NameFromRegistry NameSource = "registry"
	NameFallback     NameSource = "fallback"
)

// NameResolution is the owner name chosen for a case.
type NameResolution struct {
	Name   string     `json:"name"`
	Source NameSource `json:"source"`
}

// NameCache maps owner identifiers to resolved names for the lifetime of one
// run. It is not safe for concurrent use.
type NameCache struct {
	names map[string]string
}

// NewNameCache returns an empty cache.
func NewNameCache() *NameCache {
	return &NameCache{names: make(map[string]string)}
}

func (c *NameCache) Get(ownerID string) (string, bool) {
	name, ok := c.names[ownerID]
	return name, ok
}

func (c *NameCache) Put(ownerID, name string) {
	c.names[ownerID] = name
}

func (c *NameCache) Len() int { return len(c.names) }

// resolveName picks the owner display name: the name shown on the case, then
// this run's cache, then the store, then the registry, then the fallback
// label. Whatever is chosen is cached for the rest of the run.
func (p *Pipeline) resolveName(ctx context.Context, c *model.Case) NameResolution {
	res := p.lookupName(ctx, c)
	p.cache.Put(c.OwnerID, res.Name)
	return res
}

func (p *Pipeline) lookupName(ctx context.Context, c *model.Case) NameResolution {
	if name := strings.TrimSpace(c.OwnerName); name != "" {
		return NameResolution{Name: name, Source: NameFromCase}
	}
	if name, ok := p.cache.Get(c.OwnerID); ok {
		return NameResolution{Name: name, Source: NameFromCache}
	}

	log := zap.L().With(zap.String("case_id", c.ID), zap.String("owner_id", c.OwnerID))

	name, err := p.store.FindCachedName(ctx, c.OwnerID)
	if err != nil {
		log.Warn("pipeline: stored name lookup failed", zap.Error(err))
	} else if name != "" {
		return NameResolution{Name: name, Source: NameFromStore}
	}

	if p.names != nil {
		name, err := p.names.LookupName(ctx, c.OwnerID)
		if err != nil {
			log.Info("pipeline: registry lookup failed", zap.Error(err))
		} else if name = strings.TrimSpace(name); name != "" {
			return NameResolution{Name: name, Source: NameFromRegistry}
		}
	}
	return NameResolution{Name: model.FallbackOwnerName, Source: NameFallback}
}
