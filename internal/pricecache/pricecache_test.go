package pricecache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"gamepricetracker/internal/client"
	"gamepricetracker/internal/database/dbtest"
	lg "gamepricetracker/internal/logger"
	"gamepricetracker/internal/model"
)

const (
	nintendoURL = "https://www.nintendo.com/en-ca/store/products/example-switch/"
	steamURL    = "https://store.steampowered.com/app/620/Portal_2/"
)

func newTestCache(store *dbtest.Store, tags TagCache, now time.Time, fetchers map[model.Platform]client.PriceFetcher) *Cache {
	c := New(store, tags, fetchers, lg.Discard())
	c.Now = func() time.Time { return now }
	return c
}

func storedPrice(url string, platform model.Platform, fetchedAt time.Time) model.Price {
	regular, current := 26.99, 26.99
	return model.Price{
		StoreURL:     url,
		Platform:     platform,
		RegularPrice: &regular,
		CurrentPrice: &current,
		Description:  model.DescriptionStandard,
		FetchedAt:    primitive.NewDateTimeFromTime(fetchedAt),
	}
}

func TestStalenessCutoff(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"after cutoff", time.Date(2024, 3, 10, 9, 30, 0, 0, loc), time.Date(2024, 3, 10, 4, 0, 0, 0, loc)},
		{"before cutoff", time.Date(2024, 3, 10, 3, 59, 59, 0, loc), time.Date(2024, 3, 9, 4, 0, 0, 0, loc)},
		{"at cutoff", time.Date(2024, 3, 10, 4, 0, 0, 0, loc), time.Date(2024, 3, 10, 4, 0, 0, 0, loc)},
		{"month boundary", time.Date(2024, 3, 1, 1, 0, 0, 0, loc), time.Date(2024, 2, 29, 4, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StalenessCutoff(tt.now); !got.Equal(tt.want) {
				t.Errorf("StalenessCutoff(%v) = %v, want %v", tt.now, got, tt.want)
			}
			if got := NextCutoff(tt.now); !got.Equal(tt.want.AddDate(0, 0, 1)) {
				t.Errorf("NextCutoff(%v) = %v", tt.now, got)
			}
		})
	}
}

func TestGetPriceStaleness(t *testing.T) {
	now := time.Date(2024, 6, 12, 12, 0, 0, 0, time.Local)
	cutoff := time.Date(2024, 6, 12, 4, 0, 0, 0, time.Local)
	tests := []struct {
		name      string
		fetchedAt time.Time
		wantNil   bool
	}{
		{"one second before cutoff", cutoff.Add(-time.Second), true},
		{"exactly at cutoff", cutoff, false},
		{"after cutoff", cutoff.Add(time.Minute), false},
		{"yesterday afternoon", cutoff.Add(-10 * time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := dbtest.NewStore()
			store.PutPrice(storedPrice(nintendoURL, model.PlatformNintendo, tt.fetchedAt))
			c := newTestCache(store, nil, now, nil)

			p, err := c.GetPrice(WithUserID(context.Background(), "u1"), nintendoURL)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (p == nil) != tt.wantNil {
				t.Errorf("GetPrice nil = %v, want %v", p == nil, tt.wantNil)
			}
		})
	}
}

func TestGetPriceMissingAndUnauthenticated(t *testing.T) {
	c := newTestCache(dbtest.NewStore(), nil, time.Now(), nil)
	p, err := c.GetPrice(WithUserID(context.Background(), "u1"), nintendoURL)
	if err != nil || p != nil {
		t.Errorf("missing row: got %v, %v", p, err)
	}
	if _, err = c.GetPrice(context.Background(), nintendoURL); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("want ErrUnauthenticated, got %v", err)
	}
}

func TestSavePriceIdempotent(t *testing.T) {
	store := dbtest.NewStore()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	c := newTestCache(store, nil, now, nil)
	cp := model.CanonicalPrice{
		StoreURL: nintendoURL, Platform: model.PlatformNintendo,
		RegularPrice: 26.99, CurrentPrice: 26.99, CurrencyCode: "CAD",
		Description: model.DescriptionStandard,
	}

	first, err := c.SavePrice(context.Background(), cp)
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	c.Now = func() time.Time { return now.Add(time.Hour) }
	second, err := c.SavePrice(context.Background(), cp)
	if err != nil {
		t.Fatalf("second save: %v", err)
	}

	if store.PriceCount() != 1 {
		t.Errorf("want 1 row, got %d", store.PriceCount())
	}
	if first.StoreURL != second.StoreURL || first.ID != second.ID {
		t.Errorf("identity changed: %v vs %v", first, second)
	}
	if !second.UpdatedAt.Time().After(first.UpdatedAt.Time()) {
		t.Errorf("updatedAt did not advance: %v -> %v", first.UpdatedAt.Time(), second.UpdatedAt.Time())
	}
	if second.CreatedAt != first.CreatedAt {
		t.Errorf("createdAt changed: %v -> %v", first.CreatedAt.Time(), second.CreatedAt.Time())
	}
}

func TestSavePriceRejectsInvalid(t *testing.T) {
	store := dbtest.NewStore()
	c := newTestCache(store, nil, time.Now(), nil)
	_, err := c.SavePrice(context.Background(), model.CanonicalPrice{
		StoreURL: nintendoURL, Platform: model.PlatformNintendo, RegularPrice: 10, CurrentPrice: 20,
	})
	if !errors.Is(err, model.ErrInvalidPrice) {
		t.Errorf("want ErrInvalidPrice, got %v", err)
	}
	if store.Upserts != 0 {
		t.Errorf("invalid price reached the store")
	}
}

func TestSavePricePropagatesStoreError(t *testing.T) {
	store := dbtest.NewStore()
	store.UpsertErr = errors.New("connection reset")
	c := newTestCache(store, nil, time.Now(), nil)
	_, err := c.SavePrice(context.Background(), model.CanonicalPrice{
		StoreURL: nintendoURL, Platform: model.PlatformNintendo, RegularPrice: 10, CurrentPrice: 10,
	})
	if err == nil {
		t.Error("want store error")
	}
}

func TestLinkUnlinkOwnership(t *testing.T) {
	store := dbtest.NewStore()
	store.PutPrice(storedPrice(nintendoURL, model.PlatformNintendo, time.Now()))
	store.PutPrice(storedPrice(steamURL, model.PlatformPC, time.Now()))
	gameID := store.PutGame(model.Game{UserID: "owner", Category: model.CategoryWishlist})
	c := newTestCache(store, nil, time.Now(), nil)
	owner := WithUserID(context.Background(), "owner")
	other := WithUserID(context.Background(), "intruder")

	if err := c.LinkPriceToGame(other, gameID, nintendoURL); !errors.Is(err, ErrForbidden) {
		t.Errorf("foreign link: want ErrForbidden, got %v", err)
	}
	if err := c.LinkPriceToGame(context.Background(), gameID, nintendoURL); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("anonymous link: want ErrUnauthenticated, got %v", err)
	}
	if err := c.LinkPriceToGame(owner, primitive.NewObjectID().Hex(), nintendoURL); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown game: want ErrNotFound, got %v", err)
	}

	for _, u := range []string{nintendoURL, steamURL, nintendoURL} {
		if err := c.LinkPriceToGame(owner, gameID, u); err != nil {
			t.Fatalf("link %s: %v", u, err)
		}
	}
	platforms, err := c.GetTrackedPlatformsForGame(owner, gameID)
	if err != nil {
		t.Fatalf("tracked platforms: %v", err)
	}
	if len(platforms) != 2 || platforms[0] != model.PlatformNintendo || platforms[1] != model.PlatformPC {
		t.Errorf("unexpected platforms: %v", platforms)
	}

	if err = c.UnlinkPriceFromGame(other, gameID, steamURL); !errors.Is(err, ErrForbidden) {
		t.Errorf("foreign unlink: want ErrForbidden, got %v", err)
	}
	if err = c.UnlinkPriceFromGame(owner, gameID, steamURL); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	g, _ := store.GameFindByID(context.Background(), gameID)
	if len(g.TrackedPrices) != 1 || g.TrackedPrices[0] != nintendoURL {
		t.Errorf("unexpected tracked prices: %v", g.TrackedPrices)
	}

	p, _ := store.PriceFindByURL(context.Background(), steamURL)
	if p.CurrentPrice == nil || *p.CurrentPrice != 26.99 {
		t.Errorf("unlink touched the Price row: %+v", p)
	}
}

func TestFetchPriceReadThrough(t *testing.T) {
	store := dbtest.NewStore()
	tags := dbtest.NewTagCache()
	now := time.Date(2024, 6, 12, 12, 0, 0, 0, time.Local)
	var calls int32
	fetchers := map[model.Platform]client.PriceFetcher{
		model.PlatformPC: client.PriceFetcherFunc(func(ctx context.Context, url string) (model.CanonicalPrice, error) {
			atomic.AddInt32(&calls, 1)
			return model.CanonicalPrice{
				StoreURL: url, Platform: model.PlatformPC, ExternalID: "620",
				RegularPrice: 19.99, CurrentPrice: 4.99, OnSale: true, CurrencyCode: "CAD",
				Description: model.DescriptionStandard,
			}, nil
		}),
	}
	c := newTestCache(store, tags, now, fetchers)

	cp, err := c.FetchSteamGameInfo(context.Background(), steamURL+"?snr=1_4")
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if cp.CurrentPrice != 4.99 || cp.StoreURL != steamURL {
		t.Errorf("unexpected price: %+v", cp)
	}
	c.Wait()
	if store.PriceCount() != 1 {
		t.Errorf("background save did not persist, rows: %d", store.PriceCount())
	}
	if ttl := tags.TTLs[cacheKey(steamURL)]; ttl != 16*time.Hour {
		t.Errorf("cache TTL = %v, want 16h", ttl)
	}

	if _, err = c.FetchSteamGameInfo(context.Background(), steamURL); err != nil {
		t.Fatalf("cached fetch: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("extractor called %d times, want 1", n)
	}

	if _, err = tags.InvalidateTag(context.Background(), model.PlatformPC.Tag()); err != nil {
		t.Fatal(err)
	}
	if _, err = c.FetchSteamGameInfo(context.Background(), steamURL); err != nil {
		t.Fatalf("fetch after invalidation: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("fresh stored row was not used, extractor calls: %d", n)
	}
}

func TestFetchPriceBackgroundSaveFailureIsNotSurfaced(t *testing.T) {
	store := dbtest.NewStore()
	store.UpsertErr = errors.New("write concern error")
	fetchers := map[model.Platform]client.PriceFetcher{
		model.PlatformNintendo: client.PriceFetcherFunc(func(ctx context.Context, url string) (model.CanonicalPrice, error) {
			return model.CanonicalPrice{StoreURL: url, Platform: model.PlatformNintendo, RegularPrice: 26.99, CurrentPrice: 26.99}, nil
		}),
	}
	c := newTestCache(store, nil, time.Now(), fetchers)
	cp, err := c.FetchNintendoGameInfo(context.Background(), nintendoURL)
	c.Wait()
	if err != nil {
		t.Fatalf("fetch failed because of the save: %v", err)
	}
	if cp.CurrentPrice != 26.99 {
		t.Errorf("unexpected price: %+v", cp)
	}
}

func TestFetchPriceErrors(t *testing.T) {
	fetchErr := errors.New("502 Bad Gateway")
	fetchers := map[model.Platform]client.PriceFetcher{
		model.PlatformNintendo: client.PriceFetcherFunc(func(ctx context.Context, url string) (model.CanonicalPrice, error) {
			return model.CanonicalPrice{}, fetchErr
		}),
	}
	store := dbtest.NewStore()
	c := newTestCache(store, nil, time.Now(), fetchers)

	if _, err := c.FetchNintendoGameInfo(context.Background(), steamURL); !errors.Is(err, model.ErrInvalidStoreURL) {
		t.Errorf("wrong storefront: want ErrInvalidStoreURL, got %v", err)
	}
	if _, err := c.FetchNintendoGameInfo(context.Background(), nintendoURL); !errors.Is(err, fetchErr) {
		t.Errorf("want extractor error, got %v", err)
	}
	if _, err := c.FetchPlayStationGameInfo(context.Background(), "https://store.playstation.com/en-ca/product/UP0001"); !errors.Is(err, ErrUnsupportedStore) {
		t.Errorf("want ErrUnsupportedStore, got %v", err)
	}
	c.Wait()
	if store.Upserts != 0 {
		t.Errorf("failed fetch reached the store")
	}
}
