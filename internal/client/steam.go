package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"gamepricetracker/internal/misc"
	"gamepricetracker/internal/model"
)

var ErrSteam = errors.New("Steam error")

type steamAppDetails struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type steamAppData struct {
	Name          string              `json:"name"`
	IsFree        *bool               `json:"is_free"`
	PriceOverview *steamPriceOverview `json:"price_overview"`
}

type steamPriceOverview struct {
	Currency        string   `json:"currency"`
	Initial         *float64 `json:"initial"`
	Final           *float64 `json:"final"`
	DiscountPercent int      `json:"discount_percent"`
}

// SteamGetPrice reads one app from the public appdetails API.
func (c Client) SteamGetPrice(ctx context.Context, storeURL string) (model.CanonicalPrice, error) {
	appID, err := model.SteamAppIDFromURL(storeURL)
	if err != nil {
		return model.CanonicalPrice{}, err
	}
	details, err := c.steamAppDetails(ctx, []string{appID}, false)
	if err != nil {
		return model.CanonicalPrice{}, err
	}
	d, ok := details[appID]
	if !ok {
		return model.CanonicalPrice{}, errors.Wrapf(ErrPriceNotFound, "Steam appdetails response has no entry for app ID: %s", appID)
	}
	return c.steamParseAppDetails(d, storeURL, appID)
}

// SteamGetPrices fetches the prices of several store URLs in one appdetails call.
// Failures of single apps are returned per URL in the error map; the call
// error is only set when the whole request failed.
func (c Client) SteamGetPrices(ctx context.Context, storeURLs []string) (map[string]model.CanonicalPrice, map[string]error, error) {
	prices := make(map[string]model.CanonicalPrice, len(storeURLs))
	itemErrs := make(map[string]error)

	urlsByAppID := make(map[string][]string)
	var appIDs []string
	for _, u := range storeURLs {
		appID, err := model.SteamAppIDFromURL(u)
		if err != nil {
			itemErrs[u] = err
			continue
		}
		if _, ok := urlsByAppID[appID]; !ok {
			appIDs = append(appIDs, appID)
		}
		urlsByAppID[appID] = append(urlsByAppID[appID], u)
	}
	if len(appIDs) == 0 {
		return prices, itemErrs, nil
	}

	details, err := c.steamAppDetails(ctx, appIDs, true)
	if err != nil {
		return nil, nil, err
	}
	// the filtered API answers an empty data array for every app without
	// price_overview, free or not, so those are asked again unfiltered
	var recheck []string
	for _, appID := range appIDs {
		if d, ok := details[appID]; ok && d.Success && steamEmptyData(d.Data) {
			recheck = append(recheck, appID)
		}
	}
	if len(recheck) > 0 {
		full, err := c.steamAppDetails(ctx, recheck, false)
		for _, appID := range recheck {
			if err != nil {
				for _, u := range urlsByAppID[appID] {
					itemErrs[u] = errors.WithMessage(err, "error rechecking Steam app without price_overview")
				}
				delete(details, appID)
				continue
			}
			details[appID] = full[appID]
		}
	}
	for _, appID := range appIDs {
		for _, u := range urlsByAppID[appID] {
			if _, failed := itemErrs[u]; failed {
				continue
			}
			d, ok := details[appID]
			if !ok {
				itemErrs[u] = errors.Wrapf(ErrPriceNotFound, "Steam appdetails response has no entry for app ID: %s", appID)
				continue
			}
			cp, err := c.steamParseAppDetails(d, u, appID)
			if err != nil {
				itemErrs[u] = err
				continue
			}
			prices[u] = cp
		}
	}
	return prices, itemErrs, nil
}

func (c Client) steamAppDetails(ctx context.Context, appIDs []string, priceOnly bool) (map[string]steamAppDetails, error) {
	qp := url.Values{
		"appids": []string{strings.Join(appIDs, ",")},
		"cc":     []string{strings.ToLower(orDefault(c.SteamCountry, "ca"))},
		"l":      []string{orDefault(c.SteamLang, "english")},
	}
	if priceOnly {
		qp.Set("filters", "price_overview")
	}
	apiURL := orDefault(c.SteamAppDetailsURL, defaultSteamAppDetailsURL) + "?" + qp.Encode()

	body, err := c.get(ctx, apiURL, RequestKindAPI, HeaderOptions{Referer: "https://store.steampowered.com/"}, 2*1024*1024, ErrSteam)
	if err != nil {
		return nil, errors.WithMessage(err, "error getting Steam appdetails")
	}
	var details map[string]steamAppDetails
	if err = json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("%w: error unmarshalling Steam appdetails response, app IDs: %v, body:\n%s, err: %v",
			ErrSteam, appIDs, misc.BytesLimit(body, 500), err)
	}
	return details, nil
}

func steamEmptyData(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("[]"))
}

// steamParseAppDetails converts one appdetails entry.
func (c Client) steamParseAppDetails(d steamAppDetails, storeURL string, appID string) (model.CanonicalPrice, error) {
	if !d.Success {
		return model.CanonicalPrice{}, errors.Wrapf(ErrPriceNotFound, "Steam appdetails unsuccessful for app ID: %s", appID)
	}
	cp := model.CanonicalPrice{
		StoreURL:    storeURL,
		Platform:    model.PlatformPC,
		ExternalID:  appID,
		CountryCode: strings.ToUpper(orDefault(c.SteamCountry, "ca")),
		Description: model.DescriptionStandard,
	}

	if steamEmptyData(d.Data) {
		return model.CanonicalPrice{}, errors.Wrapf(ErrPriceNotFound, "Steam appdetails has empty data for app ID: %s", appID)
	}
	var data steamAppData
	if err := json.Unmarshal(d.Data, &data); err != nil {
		return model.CanonicalPrice{}, errors.Wrapf(ErrPriceNotFound, "invalid Steam appdetails data for app ID: %s, err: %v", appID, err)
	}
	cp.Name = data.Name

	if data.IsFree != nil && *data.IsFree {
		cp.Description = model.DescriptionFreeToPlay
		return cp, nil
	}
	po := data.PriceOverview
	if po == nil || po.Initial == nil || po.Final == nil {
		return model.CanonicalPrice{}, errors.Wrapf(ErrPriceNotFound, "Steam app has neither is_free nor price_overview, app ID: %s", appID)
	}
	cp.CurrencyCode = po.Currency
	cp.RegularPrice = misc.RoundCents(*po.Initial / 100)
	cp.CurrentPrice = misc.RoundCents(*po.Final / 100)
	cp.OnSale = cp.CurrentPrice < cp.RegularPrice
	return cp, nil
}
