// Package model defines the case, violation item, and stored record types shared by the sync pipeline.
package model

import "time"

// OwnerType classifies the owner of a case.
type OwnerType string

const (
	OwnerOrganization OwnerType = "organization"
	OwnerOther        OwnerType = "other"
)

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Case is one portal entry as produced by an extraction adapter. Cases are
// transient; only their violation items are persisted.
type Case struct {
	ID        string          `json:"id"`
	OwnerType OwnerType       `json:"owner_type"`
	OwnerID   string          `json:"owner_id"`
	OwnerName string          `json:"owner_name,omitempty"` // empty when the portal did not show one
	Address   string          `json:"address,omitempty"`
	Coord     *Coordinate     `json:"coord,omitempty"`
	ValidFrom *time.Time      `json:"valid_from,omitempty"`
	ValidTo   *time.Time      `json:"valid_to,omitempty"`
	Items     []ViolationItem `json:"items"`
}

// IsOrganization reports whether the case owner is invoiceable.
func (c *Case) IsOrganization() bool {
	return c.OwnerType == OwnerOrganization
}

// ViolationItem is one chargeable line within a case. Category and
// PermitType are filled during enrichment.
type ViolationItem struct {
	Number     int    `json:"number"`
	Text       string `json:"text"`
	Category   string `json:"category,omitempty"`
	PermitType string `json:"permit_type,omitempty"`
}
