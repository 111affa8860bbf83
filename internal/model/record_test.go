package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoredRecord_Locked(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"", false},
		{StatusNew, false},
		{"Faktureret", true},
		{"Annulleret", true},
		{"new", true}, // statuses are compared exactly
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			r := StoredRecord{Status: tt.status}
			assert.Equal(t, tt.want, r.Locked())
		})
	}
}

func TestCase_IsOrganization(t *testing.T) {
	assert.True(t, (&Case{OwnerType: OwnerOrganization}).IsOrganization())
	assert.False(t, (&Case{OwnerType: OwnerOther}).IsOrganization())
	assert.False(t, (&Case{}).IsOrganization())
}
