package pricecache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"gamepricetracker/internal/client"
	"gamepricetracker/internal/database"
	"gamepricetracker/internal/model"
)

var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrUnsupportedStore = errors.New("unsupported storefront")
)

// Store is the persistence the cache reads and writes through.
type Store interface {
	PriceFindByURL(ctx context.Context, storeURL string) (model.Price, error)
	PriceUpsert(ctx context.Context, cp model.CanonicalPrice, now time.Time) (model.Price, error)
	GameFindByID(ctx context.Context, gameID string) (model.Game, error)
	GameLinkPrice(ctx context.Context, userID string, gameID string, storeURL string) error
	GameUnlinkPrice(ctx context.Context, userID string, gameID string, storeURL string) error
	GameTrackedPlatforms(ctx context.Context, gameID string) ([]model.Platform, error)
}

// TagCache is a key/value cache whose entries can be dropped by tag.
type TagCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration, tags ...string) error
	InvalidateTag(ctx context.Context, tag string) (int, error)
}

type logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
}

type Cache struct {
	Store    Store
	Tags     TagCache
	Fetchers map[model.Platform]client.PriceFetcher
	Logger   logger
	Now      func() time.Time

	bg sync.WaitGroup
}

// New returns a Cache using the local wall clock. tags may be nil.
func New(store Store, tags TagCache, fetchers map[model.Platform]client.PriceFetcher, lg logger) *Cache {
	return &Cache{
		Store:    store,
		Tags:     tags,
		Fetchers: fetchers,
		Logger:   lg,
		Now:      time.Now,
	}
}

func (c *Cache) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// GetPrice returns the stored Price of storeURL, or nil when there is none or
// it was fetched before the last cutoff.
func (c *Cache) GetPrice(ctx context.Context, storeURL string) (*model.Price, error) {
	if _, err := requireUser(ctx); err != nil {
		return nil, err
	}
	return c.freshPrice(ctx, storeURL)
}

func (c *Cache) freshPrice(ctx context.Context, storeURL string) (*model.Price, error) {
	p, err := c.Store.PriceFindByURL(ctx, storeURL)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if IsStale(p.FetchedAt.Time(), c.now()) {
		return nil, nil
	}
	return &p, nil
}

// SavePrice validates cp and upserts it by store URL.
func (c *Cache) SavePrice(ctx context.Context, cp model.CanonicalPrice) (model.Price, error) {
	if err := cp.Validate(); err != nil {
		return model.Price{}, err
	}
	return c.Store.PriceUpsert(ctx, cp, c.now())
}

func (c *Cache) LinkPriceToGame(ctx context.Context, gameID string, storeURL string) error {
	userID, _, err := c.authorizeGame(ctx, gameID)
	if err != nil {
		return err
	}
	if err = c.Store.GameLinkPrice(ctx, userID, gameID, storeURL); err != nil {
		return c.gameErr(err, gameID)
	}
	return nil
}

func (c *Cache) UnlinkPriceFromGame(ctx context.Context, gameID string, storeURL string) error {
	userID, _, err := c.authorizeGame(ctx, gameID)
	if err != nil {
		return err
	}
	if err = c.Store.GameUnlinkPrice(ctx, userID, gameID, storeURL); err != nil {
		return c.gameErr(err, gameID)
	}
	return nil
}

// GetTrackedPlatformsForGame lists the platforms that have a Price linked to gameID.
func (c *Cache) GetTrackedPlatformsForGame(ctx context.Context, gameID string) ([]model.Platform, error) {
	if _, _, err := c.authorizeGame(ctx, gameID); err != nil {
		return nil, err
	}
	platforms, err := c.Store.GameTrackedPlatforms(ctx, gameID)
	if err != nil {
		return nil, c.gameErr(err, gameID)
	}
	return platforms, nil
}

// GameStoreURLs builds the storefront URLs of gameID from its IGDB segments.
func (c *Cache) GameStoreURLs(ctx context.Context, gameID string, nintendoLocale string, playStationLocale string) (map[model.Platform]string, error) {
	_, g, err := c.authorizeGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return g.StoreURLs(nintendoLocale, playStationLocale), nil
}

func (c *Cache) authorizeGame(ctx context.Context, gameID string) (string, model.Game, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return "", model.Game{}, err
	}
	g, err := c.Store.GameFindByID(ctx, gameID)
	if err != nil {
		return "", g, c.gameErr(err, gameID)
	}
	if g.UserID != userID {
		return "", g, errors.Wrapf(ErrForbidden, "Game %s is not owned by User %s", gameID, userID)
	}
	return userID, g, nil
}

func (c *Cache) gameErr(err error, gameID string) error {
	if errors.Is(err, database.ErrNotFound) {
		return errors.Wrapf(ErrNotFound, "Game not found, GameID: %s", gameID)
	}
	return err
}

// FetchPrice reads storeURL through the tag cache, then the store, and finally
// the platform's extractor. A freshly extracted price is saved in the background.
func (c *Cache) FetchPrice(ctx context.Context, platform model.Platform, storeURL string) (model.CanonicalPrice, error) {
	key := cacheKey(storeURL)
	if cp, ok := c.tagCacheGet(ctx, key); ok {
		return cp, nil
	}

	p, err := c.freshPrice(ctx, storeURL)
	if err != nil {
		c.Logger.Warnf("FetchPrice: Error reading stored Price, url: %s, err: %v", storeURL, err)
	}
	if p != nil {
		cp := p.Canonical()
		c.tagCacheSet(ctx, platform, key, cp)
		return cp, nil
	}

	fetcher, ok := c.Fetchers[platform]
	if !ok {
		return model.CanonicalPrice{}, errors.Wrapf(ErrUnsupportedStore, "no extractor for platform: %s", platform)
	}
	cp, err := fetcher.FetchPrice(ctx, storeURL)
	if err != nil {
		return model.CanonicalPrice{}, errors.WithMessagef(err, "error fetching %s price, url: %s", platform.DisplayName(), storeURL)
	}
	if err = cp.Validate(); err != nil {
		return model.CanonicalPrice{}, err
	}
	c.tagCacheSet(ctx, platform, key, cp)
	c.saveInBackground(cp)
	return cp, nil
}

func (c *Cache) FetchNintendoGameInfo(ctx context.Context, storeURL string) (model.CanonicalPrice, error) {
	return c.fetchChecked(ctx, model.PlatformNintendo, storeURL)
}

func (c *Cache) FetchPlayStationGameInfo(ctx context.Context, storeURL string) (model.CanonicalPrice, error) {
	return c.fetchChecked(ctx, model.PlatformPlayStation, storeURL)
}

func (c *Cache) FetchSteamGameInfo(ctx context.Context, storeURL string) (model.CanonicalPrice, error) {
	return c.fetchChecked(ctx, model.PlatformPC, storeURL)
}

// fetchChecked rejects URLs that do not belong to platform's storefront.
func (c *Cache) fetchChecked(ctx context.Context, platform model.Platform, storeURL string) (model.CanonicalPrice, error) {
	detected, cleanURL, err := model.PlatformAndCleanURL(storeURL)
	if err != nil {
		return model.CanonicalPrice{}, err
	}
	if detected != platform {
		return model.CanonicalPrice{}, errors.Wrapf(model.ErrInvalidStoreURL, "not a %s link: %s", platform.DisplayName(), storeURL)
	}
	return c.FetchPrice(ctx, platform, cleanURL)
}

func (c *Cache) saveInBackground(cp model.CanonicalPrice) {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		defer func() {
			if r := recover(); r != nil {
				c.Logger.Errorf("saveInBackground: Panic saving Price, url: %s, panic: %v", cp.StoreURL, r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := c.SavePrice(ctx, cp); err != nil {
			c.Logger.Errorf("saveInBackground: Error saving Price, url: %s, err: %v", cp.StoreURL, err)
			return
		}
		c.Logger.Debugf("saveInBackground: Price saved, url: %s", cp.StoreURL)
	}()
}

// Wait blocks until every background save has finished.
func (c *Cache) Wait() {
	c.bg.Wait()
}

func (c *Cache) tagCacheGet(ctx context.Context, key string) (model.CanonicalPrice, bool) {
	var cp model.CanonicalPrice
	if c.Tags == nil {
		return cp, false
	}
	val, ok, err := c.Tags.Get(ctx, key)
	if err != nil {
		c.Logger.Warnf("tagCacheGet: Error reading cache, key: %s, err: %v", key, err)
		return cp, false
	}
	if !ok {
		return cp, false
	}
	if err = json.Unmarshal(val, &cp); err != nil {
		c.Logger.Warnf("tagCacheGet: Error unmarshalling cached price, key: %s, err: %v", key, err)
		return cp, false
	}
	return cp, true
}

func (c *Cache) tagCacheSet(ctx context.Context, platform model.Platform, key string, cp model.CanonicalPrice) {
	if c.Tags == nil {
		return
	}
	val, err := json.Marshal(cp)
	if err != nil {
		c.Logger.Errorf("tagCacheSet: Error marshalling price, key: %s, err: %v", key, err)
		return
	}
	now := c.now()
	if err = c.Tags.Set(ctx, key, val, NextCutoff(now).Sub(now), platform.Tag()); err != nil {
		c.Logger.Warnf("tagCacheSet: Error writing cache, key: %s, err: %v", key, err)
	}
}

func cacheKey(storeURL string) string {
	return "price:" + storeURL
}
