package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"gamepricetracker/internal/misc"
	"gamepricetracker/internal/model"
)

var ErrUnsupportedPlatform = errors.New("unsupported platform")

type Store interface {
	PricesFindTracked(ctx context.Context, platform model.Platform, category model.Category) ([]model.Price, error)
	PriceUpdateFetched(ctx context.Context, cp model.CanonicalPrice, now time.Time) error
}

// Client is the subset of the storefront client a refresh needs.
type Client interface {
	NintendoGetPrice(ctx context.Context, storeURL string) (model.CanonicalPrice, error)
	NintendoGetPriceByNSUID(ctx context.Context, storeURL string, nsuid string) (model.CanonicalPrice, error)
	PlayStationGetPrice(ctx context.Context, storeURL string) (model.CanonicalPrice, error)
	SteamGetPrices(ctx context.Context, storeURLs []string) (map[string]model.CanonicalPrice, map[string]error, error)
}

type TagInvalidator interface {
	InvalidateTag(ctx context.Context, tag string) (int, error)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
}

type Config struct {
	BatchSizes   map[model.Platform]int
	ItemDelayMin time.Duration
	ItemDelayMax time.Duration
	BatchDelay   time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSizes: map[model.Platform]int{
			model.PlatformNintendo:    5,
			model.PlatformPlayStation: 5,
			model.PlatformPC:          10,
		},
		ItemDelayMin: 2 * time.Second,
		ItemDelayMax: 5 * time.Second,
		BatchDelay:   3 * time.Second,
	}
}

// Summary reports one platform refresh.
type Summary struct {
	Platform  string    `json:"platform"`
	Total     int       `json:"total"`
	Processed int       `json:"processed"`
	Updated   int       `json:"updated"`
	Errors    int       `json:"errors"`
	Skipped   int       `json:"skipped"`
	Timestamp time.Time `json:"timestamp"`
}

type Refresher struct {
	Store  Store
	Client Client
	Tags   TagInvalidator
	Rand   misc.Rand
	Sleep  Sleeper
	Logger logger
	Now    func() time.Time
	Config Config
}

func (r Refresher) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r Refresher) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep == nil {
		return SleepContext(ctx, d)
	}
	return r.Sleep(ctx, d)
}

func (r Refresher) batchSize(platform model.Platform) int {
	if n := r.Config.BatchSizes[platform]; n > 0 {
		return n
	}
	if n := DefaultConfig().BatchSizes[platform]; n > 0 {
		return n
	}
	return 5
}

// Run refreshes every wishlist-tracked Price of platform. Item failures are
// counted in the Summary; an error is only returned when the tracked prices
// cannot be listed or ctx ends the run early.
func (r Refresher) Run(ctx context.Context, platform model.Platform) (Summary, error) {
	s := Summary{Platform: platform.DisplayName(), Timestamp: r.now()}
	switch platform {
	case model.PlatformNintendo, model.PlatformPlayStation, model.PlatformPC:
	default:
		return s, errors.Wrapf(ErrUnsupportedPlatform, "no refresh for platform: %s", platform)
	}

	prices, err := r.Store.PricesFindTracked(ctx, platform, model.CategoryWishlist)
	if err != nil {
		return s, errors.WithMessagef(err, "error listing tracked %s prices", platform.DisplayName())
	}
	s.Total = len(prices)
	r.Logger.Infof("Run: Refreshing prices, platform: %s, total: %d", platform, s.Total)

	batches := misc.Chunk(prices, r.batchSize(platform))
	for i, batch := range batches {
		if i > 0 {
			if err = r.sleep(ctx, r.Config.BatchDelay); err != nil {
				break
			}
		}
		if platform == model.PlatformPC {
			r.runSteamBatch(ctx, batch, &s)
		} else {
			err = r.runItems(ctx, platform, batch, &s)
		}
		if err != nil {
			break
		}
	}

	r.invalidate(ctx, platform)
	s.Timestamp = r.now()
	r.Logger.Infof("Run: Refresh done, platform: %s, total: %d, updated: %d, errors: %d, skipped: %d",
		platform, s.Total, s.Updated, s.Errors, s.Skipped)
	if err != nil {
		return s, errors.Wrapf(err, "%s refresh interrupted after %d of %d prices", platform.DisplayName(), s.Processed, s.Total)
	}
	return s, nil
}

// runItems refreshes one request per item with a random delay between items.
func (r Refresher) runItems(ctx context.Context, platform model.Platform, batch []model.Price, s *Summary) error {
	for i, p := range batch {
		if i > 0 {
			d := misc.RandomDuration(r.rand(), r.Config.ItemDelayMin, r.Config.ItemDelayMax)
			if err := r.sleep(ctx, d); err != nil {
				return err
			}
		}
		s.Processed++
		if err := r.refreshItem(ctx, platform, p); err != nil {
			s.Errors++
			r.Logger.Warnf("runItems: Error refreshing price, platform: %s, name: %s, url: %s, err: %v",
				platform, misc.StringLimit(p.Name, 45), p.StoreURL, err)
			continue
		}
		s.Updated++
	}
	return nil
}

func (r Refresher) refreshItem(ctx context.Context, platform model.Platform, p model.Price) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic refreshing %s: %v", p.StoreURL, rec)
		}
	}()

	var cp model.CanonicalPrice
	switch {
	case platform == model.PlatformNintendo && p.ExternalID != nil && *p.ExternalID != "":
		cp, err = r.Client.NintendoGetPriceByNSUID(ctx, p.StoreURL, *p.ExternalID)
	case platform == model.PlatformNintendo:
		cp, err = r.Client.NintendoGetPrice(ctx, p.StoreURL)
	default:
		cp, err = r.Client.PlayStationGetPrice(ctx, p.StoreURL)
	}
	if err != nil {
		return err
	}
	return r.update(ctx, p, cp)
}

// runSteamBatch refreshes a whole batch with one appdetails call.
func (r Refresher) runSteamBatch(ctx context.Context, batch []model.Price, s *Summary) {
	byURL := make(map[string]model.Price, len(batch))
	urls := make([]string, 0, len(batch))
	for _, p := range batch {
		if _, err := model.SteamAppIDFromURL(p.StoreURL); err != nil {
			s.Skipped++
			r.Logger.Warnf("runSteamBatch: Skipping price without app ID, url: %s", p.StoreURL)
			continue
		}
		byURL[p.StoreURL] = p
		urls = append(urls, p.StoreURL)
	}
	if len(urls) == 0 {
		return
	}

	prices, itemErrs, err := r.steamGetPrices(ctx, urls)
	s.Processed += len(urls)
	if err != nil {
		s.Errors += len(urls)
		r.Logger.Warnf("runSteamBatch: Error getting Steam prices, count: %d, err: %v", len(urls), err)
		return
	}
	for _, u := range urls {
		if itemErr, ok := itemErrs[u]; ok {
			s.Errors++
			r.Logger.Warnf("runSteamBatch: Error refreshing price, url: %s, err: %v", u, itemErr)
			continue
		}
		cp, ok := prices[u]
		if !ok {
			s.Errors++
			r.Logger.Warnf("runSteamBatch: No price returned, url: %s", u)
			continue
		}
		if err = r.update(ctx, byURL[u], cp); err != nil {
			s.Errors++
			r.Logger.Warnf("runSteamBatch: Error updating price, url: %s, err: %v", u, err)
			continue
		}
		s.Updated++
	}
}

func (r Refresher) steamGetPrices(ctx context.Context, urls []string) (prices map[string]model.CanonicalPrice, itemErrs map[string]error, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic getting Steam prices: %v", rec)
		}
	}()
	return r.Client.SteamGetPrices(ctx, urls)
}

// update persists cp over the stored row p.
func (r Refresher) update(ctx context.Context, p model.Price, cp model.CanonicalPrice) error {
	cp.StoreURL = p.StoreURL
	if cp.Name == "" {
		cp.Name = p.Name
	}
	if err := cp.Validate(); err != nil {
		return err
	}
	return r.Store.PriceUpdateFetched(ctx, cp, r.now())
}

func (r Refresher) invalidate(ctx context.Context, platform model.Platform) {
	if r.Tags == nil {
		return
	}
	n, err := r.Tags.InvalidateTag(ctx, platform.Tag())
	if err != nil {
		r.Logger.Errorf("invalidate: Error invalidating cache tag, tag: %s, err: %v", platform.Tag(), err)
		return
	}
	r.Logger.Debugf("invalidate: Cache tag invalidated, tag: %s, keys: %d", platform.Tag(), n)
}

func (r Refresher) rand() misc.Rand {
	if r.Rand == nil {
		return misc.NewRand(0)
	}
	return r.Rand
}
