package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"rc_harvester/config"
	"rc_harvester/httputil"
	"rc_harvester/metrics"
	"rc_harvester/models"
	"rc_harvester/normalize"
)

// DetailClient GETs the listing-ui detail record for a listing ID.
type DetailClient struct {
	cfg    *config.SearchConfig
	client *http.Client
}

func NewDetailClient(cfg *config.SearchConfig, client *http.Client) *DetailClient {
	return &DetailClient{cfg: cfg, client: client}
}

func (c *DetailClient) FetchDetail(ctx context.Context, listingID string) (*DetailListing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.detailURL(listingID), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httputil.SetHeaders(req)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		metrics.FetchDuration.WithLabelValues("detail", "error").Observe(time.Since(start).Seconds())
		return nil, &FetchError{Endpoint: "detail", Err: err}
	}
	defer resp.Body.Close()
	metrics.FetchDuration.WithLabelValues("detail", strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &FetchError{Endpoint: "detail", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result detailResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &FetchError{Endpoint: "detail", StatusCode: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	return &result.Listing, nil
}

func (c *DetailClient) detailURL(listingID string) string {
	q := url.Values{}
	if c.cfg.DetailChannel != "" {
		q.Set("channel", c.cfg.DetailChannel)
	}
	if c.cfg.FeatureFlags != "" {
		q.Set("featureFlags", c.cfg.FeatureFlags)
	}
	u := c.cfg.BaseURL + c.cfg.DetailPath + url.PathEscape(listingID)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

type detailResponse struct {
	Listing DetailListing `json:"listing"`
}

// DetailListing is the subset of the detail payload the enriched table uses.
type DetailListing struct {
	Description       string            `json:"description"`
	CanonicalPath     string            `json:"canonicalPath"`
	DaysActive        int               `json:"daysActive"`
	AvailableChannels []string          `json:"availableChannels"`
	PropertyTypes     []string          `json:"propertyTypes"`
	Address           detailAddress     `json:"address"`
	Price             detailPrice       `json:"price"`
	Attributes        []detailAttribute `json:"attributes"`
	Agencies          []detailAgency    `json:"agencies"`
}

type detailAddress struct {
	StreetAddress string `json:"streetAddress"`
	Suburb        string `json:"suburb"`
	SuburbAddress string `json:"suburbAddress"`
}

type detailPrice struct {
	ForSale struct {
		Display string `json:"display"`
	} `json:"forSale"`
}

type detailAttribute struct {
	ID    string         `json:"id"`
	Value attributeValue `json:"value"`
}

type detailAgency struct {
	Name        string `json:"name"`
	Salespeople []struct {
		Name string `json:"name"`
	} `json:"salespeople"`
}

// attributeValue accepts the string values the API normally sends and keeps
// the literal text of anything else (numbers, booleans).
type attributeValue string

func (v *attributeValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = attributeValue(s)
		return nil
	}
	if string(data) == "null" {
		*v = ""
		return nil
	}
	*v = attributeValue(strings.Trim(string(data), `"`))
	return nil
}

// Attribute returns the value of the attribute with the given id. When the
// payload repeats an id, the last one wins.
func (d *DetailListing) Attribute(id string) string {
	value := ""
	for _, a := range d.Attributes {
		if a.ID == id {
			value = string(a.Value)
		}
	}
	return value
}

// Enriched normalizes the detail payload into an enriched listing.
func (d *DetailListing) Enriched(listingID, siteURL string, now time.Time) *models.EnrichedListing {
	status := normalize.Status(d.AvailableChannels)

	out := &models.EnrichedListing{
		ID:            listingID,
		URL:           siteURL + d.CanonicalPath,
		StreetName:    d.Address.StreetAddress,
		Suburb:        d.Address.Suburb,
		Postcode:      normalize.Postcode(d.Address.SuburbAddress),
		PropertyTypes: d.PropertyTypes,
		Status:        status,
		AskingPrice:   normalize.AskingPrice(status, d.Price.ForSale.Display),
		LandSize:      normalize.Numeric(d.Attribute("land-area")),
		FloorArea:     normalize.Numeric(d.Attribute("floor-area")),
		Zoning:        normalize.ZoningCode(d.Attribute("zoning")),
		Tenure:        d.Attribute("tenure-type"),
		DateAdded:     normalize.DateAdded(now, d.DaysActive),
		Description:   normalize.Description(d.Description),
	}

	if len(d.Agencies) > 0 {
		agency := d.Agencies[0]
		out.Agency = agency.Name
		if len(agency.Salespeople) > 0 {
			out.AgentName1 = agency.Salespeople[0].Name
		}
		if len(agency.Salespeople) > 1 {
			out.AgentName2 = agency.Salespeople[1].Name
		}
	}

	return out
}
