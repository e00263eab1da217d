// Package dbtest provides in-memory stand-ins for the Mongo store and the
// Redis tag cache.
package dbtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"gamepricetracker/internal/database"
	"gamepricetracker/internal/model"
)

type Store struct {
	mu     sync.Mutex
	prices map[string]model.Price
	games  map[string]model.Game

	// Injected failures.
	UpsertErr      error
	UpdateErr      error
	FindTrackedErr error

	Upserts int
	Updates int
}

func NewStore() *Store {
	return &Store{
		prices: make(map[string]model.Price),
		games:  make(map[string]model.Game),
	}
}

// PutPrice stores p as is.
func (s *Store) PutPrice(p model.Price) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	s.prices[p.StoreURL] = p
}

// PutGame stores g and returns its hex ID.
func (s *Store) PutGame(g model.Game) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.ID.IsZero() {
		g.ID = primitive.NewObjectID()
	}
	s.games[g.ID.Hex()] = g
	return g.ID.Hex()
}

func (s *Store) PriceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prices)
}

func (s *Store) PriceFindByURL(ctx context.Context, storeURL string) (model.Price, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prices[storeURL]
	if !ok {
		return p, errors.Wrapf(database.ErrNotFound, "no Price with store URL: %s", storeURL)
	}
	return p, nil
}

func (s *Store) PriceUpsert(ctx context.Context, cp model.CanonicalPrice, now time.Time) (model.Price, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Upserts++
	if s.UpsertErr != nil {
		return model.Price{}, s.UpsertErr
	}
	p := cp.ToPrice(now)
	if existing, ok := s.prices[cp.StoreURL]; ok {
		p.ID, p.CreatedAt = existing.ID, existing.CreatedAt
	} else {
		p.ID, p.CreatedAt = primitive.NewObjectID(), primitive.NewDateTimeFromTime(now)
	}
	s.prices[cp.StoreURL] = p
	return p, nil
}

func (s *Store) PriceUpdateFetched(ctx context.Context, cp model.CanonicalPrice, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Updates++
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	existing, ok := s.prices[cp.StoreURL]
	if !ok {
		return errors.Wrapf(database.ErrNotFound, "no Price with store URL: %s", cp.StoreURL)
	}
	p := cp.ToPrice(now)
	p.ID, p.CreatedAt = existing.ID, existing.CreatedAt
	s.prices[cp.StoreURL] = p
	return nil
}

func (s *Store) PricesFindTracked(ctx context.Context, platform model.Platform, category model.Category) ([]model.Price, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FindTrackedErr != nil {
		return nil, s.FindTrackedErr
	}
	tracked := make(map[string]bool)
	for _, g := range s.games {
		if g.Category != category {
			continue
		}
		for _, u := range g.TrackedPrices {
			tracked[u] = true
		}
	}
	ps := []model.Price{}
	for u := range tracked {
		if p, ok := s.prices[u]; ok && p.Platform == platform {
			ps = append(ps, p)
		}
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].StoreURL < ps[j].StoreURL })
	return ps, nil
}

func (s *Store) GameFindByID(ctx context.Context, gameID string) (model.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok {
		return g, errors.Wrapf(database.ErrNotFound, "no Game with ID: %s", gameID)
	}
	g.TrackedPrices = append([]string(nil), g.TrackedPrices...)
	return g, nil
}

func (s *Store) GameLinkPrice(ctx context.Context, userID string, gameID string, storeURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok || g.UserID != userID {
		return errors.Wrapf(database.ErrNotFound, "no Game for User, GameID: %s, UserID: %s", gameID, userID)
	}
	if !g.Tracks(storeURL) {
		g.TrackedPrices = append(g.TrackedPrices, storeURL)
	}
	s.games[gameID] = g
	return nil
}

func (s *Store) GameUnlinkPrice(ctx context.Context, userID string, gameID string, storeURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok || g.UserID != userID {
		return errors.Wrapf(database.ErrNotFound, "no Game for User, GameID: %s, UserID: %s", gameID, userID)
	}
	kept := g.TrackedPrices[:0:0]
	for _, u := range g.TrackedPrices {
		if u != storeURL {
			kept = append(kept, u)
		}
	}
	g.TrackedPrices = kept
	s.games[gameID] = g
	return nil
}

func (s *Store) GameTrackedPlatforms(ctx context.Context, gameID string) ([]model.Platform, error) {
	g, err := s.GameFindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var ps []model.Price
	for _, u := range g.TrackedPrices {
		if p, ok := s.prices[u]; ok {
			ps = append(ps, p)
		}
	}
	return database.DistinctPlatforms(ps), nil
}

// TagCache is an in-memory tag cache. TTLs are recorded but not enforced.
type TagCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	tags    map[string]map[string]bool
	TTLs    map[string]time.Duration

	InvalidateErr error
	Invalidated   []string
}

func NewTagCache() *TagCache {
	return &TagCache{
		entries: make(map[string][]byte),
		tags:    make(map[string]map[string]bool),
		TTLs:    make(map[string]time.Duration),
	}
}

func (c *TagCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *TagCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration, tags ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = val
	c.TTLs[key] = ttl
	for _, tag := range tags {
		if c.tags[tag] == nil {
			c.tags[tag] = make(map[string]bool)
		}
		c.tags[tag][key] = true
	}
	return nil
}

func (c *TagCache) InvalidateTag(ctx context.Context, tag string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Invalidated = append(c.Invalidated, tag)
	if c.InvalidateErr != nil {
		return 0, c.InvalidateErr
	}
	n := 0
	for k := range c.tags[tag] {
		if _, ok := c.entries[k]; ok {
			delete(c.entries, k)
			n++
		}
	}
	delete(c.tags, tag)
	return n, nil
}

func (c *TagCache) InvalidatedTags() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Invalidated...)
}
