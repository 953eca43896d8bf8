package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"rc_harvester/config"
	"rc_harvester/httputil"
	"rc_harvester/metrics"
)

// SearchClient POSTs the configured search criteria one page at a time.
type SearchClient struct {
	cfg    *config.SearchConfig
	client *http.Client
}

func NewSearchClient(cfg *config.SearchConfig, client *http.Client) *SearchClient {
	return &SearchClient{cfg: cfg, client: client}
}

// SearchPage is one page of results. TotalResults is the API's
// availableResults count as of this page.
type SearchPage struct {
	Page         int
	TotalResults int
	URLs         []string
}

func (c *SearchClient) PageSize() int {
	return c.cfg.PageSize
}

func (c *SearchClient) FetchPage(ctx context.Context, page int) (*SearchPage, error) {
	endpoint := c.searchURL()

	body, err := json.Marshal(c.buildRequest(page))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httputil.SetHeaders(req)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		metrics.FetchDuration.WithLabelValues("search", "error").Observe(time.Since(start).Seconds())
		return nil, &FetchError{Endpoint: "search", Err: err}
	}
	defer resp.Body.Close()
	metrics.FetchDuration.WithLabelValues("search", strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &FetchError{Endpoint: "search", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &FetchError{Endpoint: "search", StatusCode: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}

	out := &SearchPage{Page: page, TotalResults: result.AvailableResults}
	for _, l := range result.Listings {
		out.URLs = append(out.URLs, l.PdpURL)
	}
	return out, nil
}

func (c *SearchClient) searchURL() string {
	u := c.cfg.BaseURL + c.cfg.SearchPath
	if c.cfg.FeatureFlags != "" {
		u += "?featureFlags=" + url.QueryEscape(c.cfg.FeatureFlags)
	}
	return u
}

func (c *SearchClient) buildRequest(page int) searchRequest {
	req := searchRequest{
		Channel: c.cfg.Channel,
		Filters: searchFilters{
			WithinRadius:       c.cfg.WithinRadius,
			SurroundingSuburbs: c.cfg.SurroundingSub,
		},
		Sort:     searchSort{Order: c.cfg.SortOrder},
		Page:     page,
		PageSize: c.cfg.PageSize,
	}
	for _, l := range c.cfg.Localities {
		req.Localities = append(req.Localities, searchLocality{
			Locality:    l.Locality,
			Subdivision: l.Subdivision,
			Postcode:    l.Postcode,
		})
	}
	return req
}

type searchRequest struct {
	Channel    string           `json:"channel"`
	Localities []searchLocality `json:"localities"`
	Filters    searchFilters    `json:"filters"`
	Sort       searchSort       `json:"sort"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page-size"`
}

type searchLocality struct {
	Locality    string `json:"locality"`
	Subdivision string `json:"subdivision"`
	Postcode    string `json:"postcode,omitempty"`
}

type searchFilters struct {
	WithinRadius       string `json:"within-radius"`
	SurroundingSuburbs bool   `json:"surrounding-suburbs"`
}

type searchSort struct {
	Order string `json:"order"`
}

type searchResponse struct {
	AvailableResults int `json:"availableResults"`
	Listings         []struct {
		PdpURL string `json:"pdpUrl"`
	} `json:"listings"`
}
