package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"

	"gamepricetracker/internal/model"
)

func psPage(cache string) string {
	return fmt.Sprintf(`<!DOCTYPE html><html><head>
<script type="application/ld+json">{"@type":"Product"}</script>
<script id="env:a" type="application/json">{"args":{"productId":"X"}}</script>
<script id="env:b" type="application/json">{"args":{},"cache":%s}</script>
</head><body></body></html>`, cache)
}

func strPtr(s string) *string { return &s }

func TestPlayStationClassify(t *testing.T) {
	tests := []struct {
		name     string
		price    psCTAPrice
		expected model.PriceDescription
	}{
		{name: "free to play", price: psCTAPrice{IsFree: true}, expected: model.DescriptionFreeToPlay},
		{name: "extra", price: psCTAPrice{IsTiedToSubscription: true, UpsellText: strPtr("Included with PlayStation Plus EXTRA")}, expected: model.DescriptionPSPlusExtra},
		{name: "premium", price: psCTAPrice{IsTiedToSubscription: true, UpsellText: strPtr("Included with PlayStation Plus Premium")}, expected: model.DescriptionPSPlusPremium},
		{name: "free tied to subscription", price: psCTAPrice{IsFree: true, IsTiedToSubscription: true, UpsellText: strPtr("Game Trial")}, expected: model.DescriptionPSPlus},
		{name: "subscription without upsell", price: psCTAPrice{IsTiedToSubscription: true}, expected: model.DescriptionPSPlus},
		{name: "service branding", price: psCTAPrice{ServiceBranding: []string{"PS_PLUS"}}, expected: model.DescriptionPSPlus},
		{name: "discount text", price: psCTAPrice{DiscountText: strPtr("Save 30% with PS+")}, expected: model.DescriptionPSPlus},
		{name: "standard", price: psCTAPrice{ServiceBranding: []string{"NONE"}, DiscountText: strPtr("-50%")}, expected: model.DescriptionStandard},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := playStationClassify(tt.price); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestPlayStationParsePageSale(t *testing.T) {
	page := psPage(`{
		"Product:UP0001-CUSA00001_00-GAME":{"id":"UP0001-CUSA00001_00-GAME","name":"Example Game"},
		"GameCTA:UP0001-CUSA00001_00-GAME:ADD_TO_CART":{"price":{"basePrice":"$69.99","discountedPrice":"$34.99",
			"discountText":"-50%","currencyCode":"CAD","isFree":false,"isTiedToSubscription":false,
			"serviceBranding":["NONE"],"upsellText":null,"endTime":"1792476000000"}}
	}`)
	cp, err := playStationParsePage([]byte(page), "https://store.playstation.com/en-ca/product/UP0001-CUSA00001_00-GAME")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cp.CurrentPrice != 34.99 || cp.RegularPrice != 69.99 || !cp.OnSale {
		t.Errorf("unexpected price: %+v", cp)
	}
	if cp.Name != "Example Game" || cp.ExternalID != "UP0001-CUSA00001_00-GAME" || cp.CountryCode != "CA" || cp.CurrencyCode != "CAD" {
		t.Errorf("unexpected identity: %+v", cp)
	}
	if cp.Description != model.DescriptionStandard {
		t.Errorf("unexpected description: %s", cp.Description)
	}
	if cp.SaleEndsAt == nil || cp.SaleEndsAt.UnixMilli() != 1792476000000 {
		t.Errorf("unexpected sale end: %v", cp.SaleEndsAt)
	}
}

func TestPlayStationParsePagePrefersNonPremiumCTA(t *testing.T) {
	page := psPage(`{
		"GameCTA:A:UPSELL_PS_PLUS_GAME_CATALOG":{"price":{"basePrice":"$69.99","discountedPrice":"Included",
			"isTiedToSubscription":true,"upsellText":"Included with PlayStation Plus Premium"}},
		"GameCTA:B:UPSELL_PS_PLUS_GAME_CATALOG":{"price":{"basePrice":"$69.99","discountedPrice":"Included",
			"isTiedToSubscription":true,"upsellText":"Included with PlayStation Plus Extra"}},
		"Product:B":{"name":"Catalog Game"}
	}`)
	cp, err := playStationParsePage([]byte(page), "https://store.playstation.com/en-ca/product/B")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cp.Description != model.DescriptionPSPlusExtra {
		t.Errorf("expected PS_PLUS_EXTRA, got %s", cp.Description)
	}
	if cp.CurrentPrice != 0 || cp.RegularPrice != 69.99 {
		t.Errorf("unexpected price: %+v", cp)
	}
	if cp.ExternalID != "B" {
		t.Errorf("expected external ID from product key, got %q", cp.ExternalID)
	}
}

func TestPlayStationParsePageOnlyPremiumCTA(t *testing.T) {
	page := psPage(`{"GameCTA:A":{"price":{"basePrice":"$59.99","discountedPrice":"Included",
		"isTiedToSubscription":true,"upsellText":"PREMIUM"}}}`)
	cp, err := playStationParsePage([]byte(page), "https://store.playstation.com/en-ca/product/A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cp.Description != model.DescriptionPSPlusPremium {
		t.Errorf("expected PS_PLUS_PREMIUM, got %s", cp.Description)
	}
}

func TestPlayStationParsePageFree(t *testing.T) {
	page := psPage(`{"GameCTA:F":{"price":{"basePrice":"Free","discountedPrice":"Free","isFree":true}}}`)
	cp, err := playStationParsePage([]byte(page), "https://store.playstation.com/en-ca/product/F")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cp.Description != model.DescriptionFreeToPlay || cp.CurrentPrice != 0 || cp.RegularPrice != 0 || cp.OnSale {
		t.Errorf("unexpected free price: %+v", cp)
	}
}

func TestPlayStationParsePageFailures(t *testing.T) {
	tests := []struct {
		name string
		page string
	}{
		{name: "no json scripts", page: `<html><script>var cache = {}</script></html>`},
		{name: "no cta", page: psPage(`{"Product:A":{"name":"A"}}`)},
		{name: "cta without price", page: psPage(`{"GameCTA:A":{"price":null}}`)},
		{name: "unparseable price", page: psPage(`{"GameCTA:A":{"price":{"basePrice":"Unavailable","discountedPrice":"Unavailable"}}}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := playStationParsePage([]byte(tt.page), "https://store.playstation.com/en-ca/product/A")
			if !errors.Is(err, ErrPriceNotFound) {
				t.Errorf("expected ErrPriceNotFound, got %v", err)
			}
		})
	}
}

func TestPlayStationGetPriceHTTP(t *testing.T) {
	page := psPage(`{"GameCTA:A":{"price":{"basePrice":"$19.99","discountedPrice":"$19.99"}}}`)
	mux := http.NewServeMux()
	mux.HandleFunc("/en-ca/product/A", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	})
	mux.HandleFunc("/en-ca/product/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := newTestClient(srv)

	cp, err := c.PlayStationGetPrice(context.Background(), srv.URL+"/en-ca/product/A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cp.CurrentPrice != 19.99 || cp.OnSale {
		t.Errorf("unexpected price: %+v", cp)
	}

	_, err = c.PlayStationGetPrice(context.Background(), srv.URL+"/en-ca/product/missing")
	if !errors.Is(err, ErrPlayStation) {
		t.Errorf("expected ErrPlayStation, got %v", err)
	}
}
