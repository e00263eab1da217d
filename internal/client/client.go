package client

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"gamepricetracker/internal/misc"
	"gamepricetracker/internal/model"
)

const (
	defaultNintendoPriceAPIURL = "https://api.ec.nintendo.com/v1/price"
	defaultSteamAppDetailsURL  = "https://store.steampowered.com/api/appdetails"
)

type Client struct {
	*http.Client
	Rand   misc.Rand
	Logger logger

	// Storefront endpoints and locales. Zero values fall back to the public
	// endpoints and a Canadian English storefront.
	NintendoPriceAPIURL string
	NintendoCountry     string
	NintendoLang        string
	SteamAppDetailsURL  string
	SteamCountry        string
	SteamLang           string
}

type logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
}

// PriceFetcher turns a storefront product URL into a canonical price.
type PriceFetcher interface {
	FetchPrice(ctx context.Context, url string) (model.CanonicalPrice, error)
}

type PriceFetcherFunc func(ctx context.Context, url string) (model.CanonicalPrice, error)

func (f PriceFetcherFunc) FetchPrice(ctx context.Context, url string) (model.CanonicalPrice, error) {
	return f(ctx, url)
}

// Fetchers maps every refreshable platform to its extractor.
func (c Client) Fetchers() map[model.Platform]PriceFetcher {
	return map[model.Platform]PriceFetcher{
		model.PlatformNintendo:    PriceFetcherFunc(c.NintendoGetPrice),
		model.PlatformPlayStation: PriceFetcherFunc(c.PlayStationGetPrice),
		model.PlatformPC:          PriceFetcherFunc(c.SteamGetPrice),
	}
}

func (c Client) newRequest(ctx context.Context, method string, url string, kind RequestKind, opts HeaderOptions) (*http.Request, error) {
	r, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	rnd := c.Rand
	if rnd == nil {
		rnd = misc.NewRand(0)
	}
	for k, vs := range BuildHeaders(rnd, kind, opts) {
		r.Header[k] = vs
	}
	return r, nil
}

// get performs a GET and returns the body of a 2xx response. Transport and
// status failures are wrapped with errKind.
func (c Client) get(ctx context.Context, url string, kind RequestKind, opts HeaderOptions, maxBytes int64, errKind error) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, url, kind, opts)
	if err != nil {
		return nil, fmt.Errorf("error creating request from URL: %s, err: %w", url, err)
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: error doing request to URL: %s, err: %v", errKind, url, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil && c.Logger != nil {
			c.Logger.Errorf("get: Error closing response body, url: %s, err: %v", url, err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: error reading response body, url: %s, status: %s, err: %v",
			errKind, url, resp.Status, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status: %s, url: %s, body:\n%s",
			errKind, resp.Status, url, misc.BytesLimit(body, 500))
	}
	return body, nil
}

func orDefault(s string, def string) string {
	if s == "" {
		return def
	}
	return s
}
