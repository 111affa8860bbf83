package model

import "time"

// StatusNew is the only business status this pipeline writes. Records in any
// other status are owned by downstream invoicing and never overwritten.
const StatusNew = "New"

// FallbackOwnerName is stored when no display name can be resolved for an owner.
const FallbackOwnerName = "invalid identifier"

// StoredRecord is the persisted projection of one violation item.
type StoredRecord struct {
	Key         string      `json:"key" yaml:"key"`
	CaseID      string      `json:"case_id" yaml:"case_id"`
	ItemNumber  int         `json:"item_number" yaml:"item_number"`
	Description string      `json:"description" yaml:"description"`
	OwnerID     string      `json:"owner_id" yaml:"owner_id"`
	OwnerName   string      `json:"owner_name" yaml:"owner_name"`
	Address     string      `json:"address,omitempty" yaml:"address,omitempty"`
	Coord       *Coordinate `json:"coord,omitempty" yaml:"coord,omitempty"`
	ValidFrom   *time.Time  `json:"valid_from,omitempty" yaml:"valid_from,omitempty"`
	ValidTo     *time.Time  `json:"valid_to,omitempty" yaml:"valid_to,omitempty"`
	Area        *float64    `json:"area,omitempty" yaml:"area,omitempty"`
	PermitType  *string     `json:"permit_type,omitempty" yaml:"permit_type,omitempty"`
	Status      string      `json:"status" yaml:"status"`
	LastRunID   string      `json:"last_run_id,omitempty" yaml:"last_run_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" yaml:"updated_at"`
}

// Locked reports whether downstream processing has taken ownership of the
// record. An unset status counts as New.
func (r *StoredRecord) Locked() bool {
	return r.Status != "" && r.Status != StatusNew
}
