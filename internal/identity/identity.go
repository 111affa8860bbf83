// Package identity validates owner identifiers, derives category codes from
// violation text, and builds the deterministic record keys used for upserts.
package identity

import "strconv"

// cvrWeights is the modulus-11 weight vector for 8-digit CVR numbers.
var cvrWeights = [8]int{2, 7, 6, 5, 4, 3, 2, 1}

// ValidateOwnerID reports whether raw is a well-formed CVR number: exactly
// eight decimal digits whose weighted sum is divisible by 11.
func ValidateOwnerID(raw string) bool {
	if len(raw) != len(cvrWeights) {
		return false
	}
	sum := 0
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c < '0' || c > '9' {
			return false
		}
		sum += int(c-'0') * cvrWeights[i]
	}
	return sum%11 == 0
}

// BuildItemKey returns the composite key "{caseID}_{itemNumber}".
func BuildItemKey(caseID string, itemNumber int) string {
	return caseID + "_" + strconv.Itoa(itemNumber)
}
