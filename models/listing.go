package models

import "strings"

// Table column names. These match the spreadsheets produced by earlier runs,
// so existing tables keep resuming.
const (
	ColListingURL    = "Listing URL"
	ColListingID     = "Listing ID"
	ColStreetName    = "Street name"
	ColSuburb        = "Suburb"
	ColPostcode      = "Postcode"
	ColPropertyTypes = "Property Types"
	ColStatus        = "Status"
	ColAskingPrice   = "Asking Price"
	ColLandSize      = "Land size"
	ColFloorArea     = "Floor area"
	ColZoning        = "Zoning"
	ColTenure        = "Tenure"
	ColDateAdded     = "Date Added"
	ColAgency        = "Agency"
	ColAgentName1    = "Agent name 1"
	ColAgentName2    = "Agent name 2"
	ColDescription   = "Description"
)

// EnrichedColumns is the column order of the enrichment fields.
var EnrichedColumns = []string{
	ColListingURL,
	ColListingID,
	ColStreetName,
	ColSuburb,
	ColPostcode,
	ColPropertyTypes,
	ColStatus,
	ColAskingPrice,
	ColLandSize,
	ColFloorArea,
	ColZoning,
	ColTenure,
	ColDateAdded,
	ColAgency,
	ColAgentName1,
	ColAgentName2,
	ColDescription,
}

type ListingStatus string

const (
	StatusOnMarket ListingStatus = "On Market"
	StatusSold     ListingStatus = "Sold"
)

const PropertyTypeSeparator = " • "

// EnrichedListing is the normalized detail of one listing.
type EnrichedListing struct {
	ID            string        `json:"id"`
	URL           string        `json:"url"`
	StreetName    string        `json:"street_name"`
	Suburb        string        `json:"suburb"`
	Postcode      string        `json:"postcode"`
	PropertyTypes []string      `json:"property_types"`
	Status        ListingStatus `json:"status"`
	AskingPrice   string        `json:"asking_price"`
	LandSize      string        `json:"land_size"`
	FloorArea     string        `json:"floor_area"`
	Zoning        string        `json:"zoning"`
	Tenure        string        `json:"tenure"`
	DateAdded     string        `json:"date_added"`
	Agency        string        `json:"agency"`
	AgentName1    string        `json:"agent_name_1"`
	AgentName2    string        `json:"agent_name_2"`
	Description   string        `json:"description"`
}

// Fields maps the listing onto the enriched table columns. A nil listing
// yields the all-empty row written for failed fetches.
func (l *EnrichedListing) Fields() map[string]string {
	fields := make(map[string]string, len(EnrichedColumns))
	for _, col := range EnrichedColumns {
		fields[col] = ""
	}
	if l == nil {
		return fields
	}

	fields[ColListingURL] = l.URL
	fields[ColListingID] = l.ID
	fields[ColStreetName] = l.StreetName
	fields[ColSuburb] = l.Suburb
	fields[ColPostcode] = l.Postcode
	fields[ColPropertyTypes] = strings.Join(l.PropertyTypes, PropertyTypeSeparator)
	fields[ColStatus] = string(l.Status)
	fields[ColAskingPrice] = l.AskingPrice
	fields[ColLandSize] = l.LandSize
	fields[ColFloorArea] = l.FloorArea
	fields[ColZoning] = l.Zoning
	fields[ColTenure] = l.Tenure
	fields[ColDateAdded] = l.DateAdded
	fields[ColAgency] = l.Agency
	fields[ColAgentName1] = l.AgentName1
	fields[ColAgentName2] = l.AgentName2
	fields[ColDescription] = l.Description
	return fields
}
