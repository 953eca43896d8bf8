package normalize

import (
	"regexp"
	"strings"
	"time"

	"rc_harvester/models"
)

var (
	nonNumericRegex = regexp.MustCompile(`[^\d.]`)
	postcodeRegex   = regexp.MustCompile(`\b(\d{4})\b`)
)

const currencyMarker = "$"

// Numeric strips everything but digits and dots ("1,250 m²" -> "1250").
// Thousands separators and decimal points are not told apart.
func Numeric(raw string) string {
	return nonNumericRegex.ReplaceAllString(raw, "")
}

// Postcode takes the 4-digit run after the last comma of a suburb address,
// e.g. "Parramatta, NSW 2150" -> "2150".
func Postcode(suburbAddress string) string {
	idx := strings.LastIndex(suburbAddress, ",")
	if idx < 0 {
		return ""
	}
	suffix := strings.TrimSpace(suburbAddress[idx+1:])
	m := postcodeRegex.FindStringSubmatch(suffix)
	if m == nil {
		return ""
	}
	return m[1]
}

// Status is Sold when any available channel is "sold".
func Status(availableChannels []string) models.ListingStatus {
	for _, ch := range availableChannels {
		if strings.ToLower(ch) == "sold" {
			return models.StatusSold
		}
	}
	return models.StatusOnMarket
}

// AskingPrice keeps the display price only for on-market listings whose
// price text carries a currency marker.
func AskingPrice(status models.ListingStatus, display string) string {
	if status == models.StatusOnMarket && strings.Contains(display, currencyMarker) {
		return display
	}
	return ""
}

// DateAdded back-derives a listing date from its age in days. It is relative
// to now, so it moves by a day for runs either side of midnight.
func DateAdded(now time.Time, daysActive int) string {
	return now.AddDate(0, 0, -daysActive).Format("2006-01-02")
}
