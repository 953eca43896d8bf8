package normalize

import (
	"regexp"
	"strings"
)

type zoningEntry struct {
	Name string
	Code string
}

// zoningTable is searched in order and the first name found wins, so entries
// that are substrings of later ones (Primary Production) shadow them.
var zoningTable = []zoningEntry{
	{"Neighbourhood Centre", "B1"},
	{"Local Centre", "B2"},
	{"Commercial Core", "B3"},
	{"Mixed Use", "B4"},
	{"Business Development", "B5"},
	{"Enterprise Corridor", "B6"},
	{"Business Park", "B7"},
	{"Metropolitan Centre", "B8"},
	{"National Parks and Nature Reserves", "E1"},
	{"Environmental Conservation", "E2"},
	{"Environmental Management", "E3"},
	{"Environmental Living", "E4"},
	{"General Industrial", "IN1"},
	{"Light Industrial", "IN2"},
	{"Heavy Industrial", "IN3"},
	{"Working Waterfront", "IN4"},
	{"General Residential", "R1"},
	{"Low Density Residential", "R2"},
	{"Medium Density Residential", "R3"},
	{"High Density Residential", "R4"},
	{"Large Lot Residential", "R5"},
	{"Public Recreation", "RE1"},
	{"Private Recreation", "RE2"},
	{"Primary Production", "RU1"},
	{"Rural Landscape", "RU2"},
	{"Forestry", "RU3"},
	{"Primary Production Small Lots", "RU4"},
	{"Village", "RU5"},
	{"Transition", "RU6"},
	{"Special Activities", "SP1"},
	{"Infrastructure", "SP2"},
	{"Tourist", "SP3"},
	{"Natural Waterways", "W1"},
	{"Recreational Waterways", "W2"},
	{"Working Waterways", "W3"},
}

var zoningCodeRegex = regexp.MustCompile(`\b([A-Z]{1,3}\d{0,2})\b`)

// ZoningCode maps free-text zoning to a short planning code: first by long
// name, then by a bare code already present in the text, else the raw text.
func ZoningCode(raw string) string {
	lower := strings.ToLower(raw)
	for _, z := range zoningTable {
		if strings.Contains(lower, strings.ToLower(z.Name)) {
			return z.Code
		}
	}

	if m := zoningCodeRegex.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return raw
}
