package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rc_harvester/models"
)

func TestDetailClient_OnMarket(t *testing.T) {
	fixture := loadFixture(t, "detail_on_market.json")

	var gotPath, gotChannel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotChannel = r.URL.Query().Get("channel")
		w.Write(fixture)
	}))
	defer srv.Close()

	client := NewDetailClient(testSearchConfig(srv.URL), srv.Client())
	detail, err := client.FetchDetail(context.Background(), "504210618")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if gotPath != "/listing-ui/listings/504210618" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotChannel != "for-sale" {
		t.Fatalf("unexpected channel %s", gotChannel)
	}

	now := time.Date(2026, 5, 20, 9, 0, 0, 0, time.Local)
	listing := detail.Enriched("504210618", "https://www.realcommercial.com.au", now)

	if listing.URL != "https://www.realcommercial.com.au/for-sale/property-1-smith-street-parramatta-nsw-2150-504210618" {
		t.Fatalf("unexpected URL %s", listing.URL)
	}
	if listing.StreetName != "1 Smith Street" || listing.Suburb != "Parramatta" {
		t.Fatalf("unexpected address %s / %s", listing.StreetName, listing.Suburb)
	}
	if listing.Postcode != "2150" {
		t.Fatalf("expected postcode 2150, got %s", listing.Postcode)
	}
	if listing.Status != models.StatusOnMarket {
		t.Fatalf("expected On Market, got %s", listing.Status)
	}
	if listing.AskingPrice != "$2,450,000 + GST" {
		t.Fatalf("unexpected asking price %s", listing.AskingPrice)
	}
	if listing.LandSize != "1250" || listing.FloorArea != "880.5" {
		t.Fatalf("unexpected areas %s / %s", listing.LandSize, listing.FloorArea)
	}
	if listing.Zoning != "IN2" {
		t.Fatalf("expected zoning IN2, got %s", listing.Zoning)
	}
	if listing.Tenure != "Vacant Possession" {
		t.Fatalf("unexpected tenure %s", listing.Tenure)
	}
	if listing.DateAdded != "2026-05-08" {
		t.Fatalf("expected date added 2026-05-08, got %s", listing.DateAdded)
	}
	if listing.Agency != "Colliers Parramatta" {
		t.Fatalf("unexpected agency %s", listing.Agency)
	}
	if listing.AgentName1 != "Jane Citizen" || listing.AgentName2 != "Sam Agent" {
		t.Fatalf("unexpected agents %s / %s", listing.AgentName1, listing.AgentName2)
	}
	if listing.Description != "Freestanding warehouse\nFeatures:\n- High clearance\n- Three phase power" {
		t.Fatalf("unexpected description %q", listing.Description)
	}

	fields := listing.Fields()
	if fields[models.ColPropertyTypes] != "Industrial/Warehouse • Showrooms/Bulky Goods" {
		t.Fatalf("unexpected property types %q", fields[models.ColPropertyTypes])
	}
	if fields[models.ColListingID] != "504210618" {
		t.Fatalf("unexpected listing id column %q", fields[models.ColListingID])
	}
	if detail.Attribute("car-spaces") != "12" {
		t.Fatalf("expected numeric attribute kept as text, got %q", detail.Attribute("car-spaces"))
	}
}

func TestDetailClient_Sold(t *testing.T) {
	fixture := loadFixture(t, "detail_sold.json")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(fixture)
	}))
	defer srv.Close()

	client := NewDetailClient(testSearchConfig(srv.URL), srv.Client())
	detail, err := client.FetchDetail(context.Background(), "504199311")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	listing := detail.Enriched("504199311", "https://www.realcommercial.com.au", time.Now())
	if listing.Status != models.StatusSold {
		t.Fatalf("expected Sold, got %s", listing.Status)
	}
	if listing.AskingPrice != "" {
		t.Fatalf("sold listing must not carry an asking price, got %q", listing.AskingPrice)
	}
	if listing.Postcode != "" {
		t.Fatalf("suburb address without comma must give empty postcode, got %q", listing.Postcode)
	}
	if listing.Zoning != "MU1" {
		t.Fatalf("expected bare code MU1, got %s", listing.Zoning)
	}
	if listing.AgentName1 != "Alex Broker" || listing.AgentName2 != "" {
		t.Fatalf("unexpected agents %q / %q", listing.AgentName1, listing.AgentName2)
	}
	if listing.LandSize != "" || listing.FloorArea != "" {
		t.Fatalf("missing attributes must give empty areas")
	}
}

func TestDetailClient_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := NewDetailClient(testSearchConfig(srv.URL), srv.Client())
	_, err := client.FetchDetail(context.Background(), "1")
	if err == nil {
		t.Fatalf("expected error for 404")
	}
	if IsRetryable(err) {
		t.Fatalf("404 should not be retryable")
	}
}

func TestFieldsOfNilListing(t *testing.T) {
	var l *models.EnrichedListing
	fields := l.Fields()
	if len(fields) != len(models.EnrichedColumns) {
		t.Fatalf("expected %d columns, got %d", len(models.EnrichedColumns), len(fields))
	}
	for col, v := range fields {
		if v != "" {
			t.Fatalf("expected empty %s, got %q", col, v)
		}
	}
}
