package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"

	"gamepricetracker/internal/model"
)

func newSteamServer(t *testing.T, status int, body string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/appdetails" {
			http.NotFound(w, r)
			return
		}
		if check != nil {
			check(r)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSteamGetPrice(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected model.CanonicalPrice
	}{
		{
			name: "discounted",
			body: `{"620":{"success":true,"data":{"name":"Portal 2","is_free":false,
				"price_overview":{"currency":"CAD","initial":1149,"final":229,"discount_percent":80}}}}`,
			expected: model.CanonicalPrice{Name: "Portal 2", CurrencyCode: "CAD", RegularPrice: 11.49, CurrentPrice: 2.29, OnSale: true, Description: model.DescriptionStandard},
		},
		{
			name: "free ignores price overview",
			body: `{"620":{"success":true,"data":{"name":"Portal 2","is_free":true,
				"price_overview":{"currency":"CAD","initial":1149,"final":1149}}}}`,
			expected: model.CanonicalPrice{Name: "Portal 2", RegularPrice: 0, CurrentPrice: 0, Description: model.DescriptionFreeToPlay},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newSteamServer(t, http.StatusOK, tt.body, func(r *http.Request) {
				q := r.URL.Query()
				if q.Get("appids") != "620" || q.Get("cc") != "ca" || q.Get("l") != "english" {
					t.Errorf("unexpected query: %s", r.URL.RawQuery)
				}
			})
			c := newTestClient(srv)
			storeURL := "https://store.steampowered.com/app/620/Portal_2/"
			cp, err := c.SteamGetPrice(context.Background(), storeURL)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cp.RegularPrice != tt.expected.RegularPrice || cp.CurrentPrice != tt.expected.CurrentPrice ||
				cp.OnSale != tt.expected.OnSale || cp.Description != tt.expected.Description ||
				cp.CurrencyCode != tt.expected.CurrencyCode || cp.Name != tt.expected.Name {
				t.Errorf("expected %+v, got %+v", tt.expected, cp)
			}
			if cp.ExternalID != "620" || cp.StoreURL != storeURL || cp.Platform != model.PlatformPC {
				t.Errorf("unexpected identity: %+v", cp)
			}
		})
	}
}

func TestSteamGetPriceFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected error
	}{
		{name: "server error", status: http.StatusTooManyRequests, body: `null`, expected: ErrSteam},
		{name: "unsuccessful", status: http.StatusOK, body: `{"620":{"success":false}}`, expected: ErrPriceNotFound},
		{name: "no price data", status: http.StatusOK, body: `{"620":{"success":true,"data":{"name":"Portal 2"}}}`, expected: ErrPriceNotFound},
		{name: "missing app", status: http.StatusOK, body: `{}`, expected: ErrPriceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newSteamServer(t, tt.status, tt.body, nil)
			c := newTestClient(srv)
			_, err := c.SteamGetPrice(context.Background(), "https://store.steampowered.com/app/620/Portal_2/")
			if !errors.Is(err, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, err)
			}
		})
	}
}

func TestSteamGetPricesBatch(t *testing.T) {
	var filtered, unfiltered int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("filters") == "price_overview" {
			filtered++
			if q.Get("appids") != "620,570,571,999" {
				t.Errorf("unexpected query: %s", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(`{
				"620":{"success":true,"data":{"price_overview":{"currency":"CAD","initial":1149,"final":1149}}},
				"570":{"success":true,"data":[]},
				"571":{"success":true,"data":[]},
				"999":{"success":false}
			}`))
			return
		}
		unfiltered++
		if q.Get("appids") != "570,571" {
			t.Errorf("unexpected recheck query: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{
			"570":{"success":true,"data":{"name":"Dota 2","is_free":true}},
			"571":{"success":true,"data":{"name":"Delisted Game","is_free":false}}
		}`))
	}))
	t.Cleanup(srv.Close)
	c := newTestClient(srv)
	urls := []string{
		"https://store.steampowered.com/app/620/Portal_2/",
		"https://store.steampowered.com/app/570/Dota_2/",
		"https://store.steampowered.com/app/571/",
		"https://store.steampowered.com/app/999/",
		"https://store.steampowered.com/bundle/1/",
	}
	prices, itemErrs, err := c.SteamGetPrices(context.Background(), urls)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filtered != 1 || unfiltered != 1 {
		t.Errorf("expected one filtered and one unfiltered call, got %d and %d", filtered, unfiltered)
	}
	if p := prices[urls[0]]; p.CurrentPrice != 11.49 || p.OnSale {
		t.Errorf("unexpected price for %s: %+v", urls[0], p)
	}
	if p := prices[urls[1]]; p.Description != model.DescriptionFreeToPlay || p.CurrentPrice != 0 {
		t.Errorf("unexpected price for %s: %+v", urls[1], p)
	}
	if p, ok := prices[urls[2]]; ok {
		t.Errorf("expected no price for paid app without price_overview, got %+v", p)
	}
	if !errors.Is(itemErrs[urls[2]], ErrPriceNotFound) {
		t.Errorf("expected ErrPriceNotFound for %s, got %v", urls[2], itemErrs[urls[2]])
	}
	if !errors.Is(itemErrs[urls[3]], ErrPriceNotFound) {
		t.Errorf("expected ErrPriceNotFound for %s, got %v", urls[3], itemErrs[urls[3]])
	}
	if !errors.Is(itemErrs[urls[4]], model.ErrInvalidStoreURL) {
		t.Errorf("expected ErrInvalidStoreURL for %s, got %v", urls[4], itemErrs[urls[4]])
	}
}

func TestSteamGetPricesRecheckFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("filters") == "price_overview" {
			_, _ = w.Write([]byte(`{"571":{"success":true,"data":[]}}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	c := newTestClient(srv)
	u := "https://store.steampowered.com/app/571/"
	prices, itemErrs, err := c.SteamGetPrices(context.Background(), []string{u})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prices) != 0 {
		t.Errorf("expected no prices, got %+v", prices)
	}
	if !errors.Is(itemErrs[u], ErrSteam) {
		t.Errorf("expected ErrSteam, got %v", itemErrs[u])
	}
}
