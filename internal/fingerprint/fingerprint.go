// Package fingerprint derives the identity of a transaction for deduplication.
//
// The canonical string is "{sourceID}|{date}|{description}|{amount to 2 decimals}" and the
// fingerprint is the first 16 hex characters of its SHA-256 digest. Changing the rounding or the
// field list changes the identity of every previously imported row, so the format is versioned
// by this package and nothing else.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"
)

// Length is the number of hex characters in a fingerprint.
const Length = 16

// Compute returns the fingerprint of the four identity fields.
func Compute(sourceID int64, date, description string, amount decimal.Decimal) string {
	canonical := fmt.Sprintf("%d|%s|%s|%s", sourceID, date, description, amount.StringFixed(2))
	sum := sha256.Sum256([]byte(canonical))

	return hex.EncodeToString(sum[:])[:Length]
}

// Valid reports whether s looks like a fingerprint.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}

	_, err := hex.DecodeString(s)

	return err == nil
}
