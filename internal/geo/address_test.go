package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanAddress(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{"Main Street 12", "Main Street 12", true},
		{"Vestergade 12", "Vestergade 12", true},
		{"  Østergade 3B  ", "Østergade 3B", true},
		{"Frederiks Allé 12-14", "Frederiks Allé 12", true},
		{"M.P. Bruuns Gade 25A-27B", "M.P. Bruuns Gade 25A", true},
		{"Sønder-Allé 4, 8000 Aarhus C", "Sønder-Allé 4", true},
		{"Vestergade\u00a012", "Vestergade 12", true},
		{"Frederik\u00a0Bajers Vej\u00a07C", "Frederik Bajers Vej 7C", true},
		{"\u00a0Vestergade 12-14\u00a0", "Vestergade 12", true},
		{"Vestergade", "", false},
		{"12", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := CleanAddress(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
