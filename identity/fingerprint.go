package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"rc_harvester/config"
)

var trailingDigitsRegex = regexp.MustCompile(`(\d+)$`)

// ExtractListingID returns the trailing run of digits of a listing URL.
// ok is false when the URL does not end in a digit.
func ExtractListingID(listingURL string) (id string, ok bool) {
	m := trailingDigitsRegex.FindStringSubmatch(listingURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// SearchFingerprint identifies a set of search criteria. The discovery page
// marker is keyed by it, so editing the locality list starts a fresh cursor.
func SearchFingerprint(s *config.SearchConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%t|%s|%d",
		s.BaseURL+s.SearchPath,
		strings.ToLower(s.Channel),
		s.WithinRadius,
		s.SurroundingSub,
		s.SortOrder,
		s.PageSize,
	)
	for _, l := range s.Localities {
		fmt.Fprintf(&b, "|%s/%s/%s",
			strings.ToLower(strings.TrimSpace(l.Locality)),
			strings.ToLower(l.Subdivision),
			l.Postcode,
		)
	}
	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:16])
}
