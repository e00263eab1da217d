package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"gamepricetracker/internal/misc"
	"gamepricetracker/internal/model"
)

var ErrNintendo = errors.New("Nintendo error")

// ErrPriceNotFound means a storefront answered but the payload holds no usable price.
var ErrPriceNotFound = errors.New("price not found")

var nsuidRegex = regexp.MustCompile(`"nsuid"\s*:\s*"(\d+)"`)

type nintendoPriceResponse struct {
	Prices []nintendoPrice `json:"prices"`
}

type nintendoPrice struct {
	SalesStatus   string          `json:"sales_status"`
	RegularPrice  *nintendoAmount `json:"regular_price"`
	DiscountPrice *nintendoAmount `json:"discount_price"`
}

type nintendoAmount struct {
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	RawValue      string `json:"raw_value"`
	StartDatetime string `json:"start_datetime"`
	EndDatetime   string `json:"end_datetime"`
}

func (a nintendoAmount) value() (float64, error) {
	if a.RawValue != "" {
		return misc.ParsePriceString(a.RawValue)
	}
	return misc.ParsePriceString(a.Amount)
}

// NintendoGetPrice scrapes the NSUID from the product page, then asks the price API.
func (c Client) NintendoGetPrice(ctx context.Context, storeURL string) (model.CanonicalPrice, error) {
	nsuid, err := c.NintendoGetNSUID(ctx, storeURL)
	if err != nil {
		return model.CanonicalPrice{}, err
	}
	return c.NintendoGetPriceByNSUID(ctx, storeURL, nsuid)
}

func (c Client) NintendoGetNSUID(ctx context.Context, storeURL string) (string, error) {
	body, err := c.get(ctx, storeURL, RequestKindScrape, HeaderOptions{Referer: "https://www.nintendo.com/"}, 3*1024*1024, ErrNintendo)
	if err != nil {
		return "", errors.WithMessage(err, "error getting Nintendo product page")
	}
	m := nsuidRegex.FindSubmatch(body)
	if m == nil {
		return "", errors.Wrapf(ErrPriceNotFound, "NSUID not found on Nintendo product page: %s", storeURL)
	}
	return string(m[1]), nil
}

// NintendoGetPriceByNSUID skips the page scrape when the NSUID is already known.
func (c Client) NintendoGetPriceByNSUID(ctx context.Context, storeURL string, nsuid string) (model.CanonicalPrice, error) {
	country, lang, ok := model.LocaleFromURL(storeURL)
	if !ok {
		country, lang = orDefault(c.NintendoCountry, "CA"), orDefault(c.NintendoLang, "en")
	}
	qp := url.Values{
		"country": []string{country},
		"lang":    []string{lang},
		"ids":     []string{nsuid},
	}
	apiURL := orDefault(c.NintendoPriceAPIURL, defaultNintendoPriceAPIURL) + "?" + qp.Encode()

	body, err := c.get(ctx, apiURL, RequestKindAPI, HeaderOptions{
		Referer: "https://www.nintendo.com/",
		Origin:  "https://www.nintendo.com",
	}, 300*1024, ErrNintendo)
	if err != nil {
		return model.CanonicalPrice{}, errors.WithMessage(err, "error getting Nintendo price")
	}

	var priceResp nintendoPriceResponse
	if err = json.Unmarshal(body, &priceResp); err != nil {
		return model.CanonicalPrice{}, fmt.Errorf("%w: error unmarshalling Nintendo price response, NSUID: %s, body:\n%s, err: %v",
			ErrPriceNotFound, nsuid, misc.BytesLimit(body, 500), err)
	}
	return nintendoParsePrice(priceResp, storeURL, nsuid, country)
}

func nintendoParsePrice(priceResp nintendoPriceResponse, storeURL string, nsuid string, country string) (model.CanonicalPrice, error) {
	if len(priceResp.Prices) == 0 {
		return model.CanonicalPrice{}, errors.Wrapf(ErrPriceNotFound, "Nintendo price response has no rows, NSUID: %s", nsuid)
	}
	row := priceResp.Prices[0]
	if row.RegularPrice == nil && row.DiscountPrice == nil {
		return model.CanonicalPrice{}, errors.Wrapf(ErrPriceNotFound,
			"Nintendo price row has neither regular nor discount price, NSUID: %s, sales status: %s", nsuid, row.SalesStatus)
	}

	cp := model.CanonicalPrice{
		StoreURL:    storeURL,
		Platform:    model.PlatformNintendo,
		ExternalID:  nsuid,
		CountryCode: country,
		Description: model.DescriptionStandard,
	}

	var regular, discount float64
	var err error
	if row.RegularPrice != nil {
		if regular, err = row.RegularPrice.value(); err != nil {
			return model.CanonicalPrice{}, errors.Wrapf(ErrPriceNotFound, "invalid Nintendo regular price, NSUID: %s, err: %v", nsuid, err)
		}
		cp.CurrencyCode = row.RegularPrice.Currency
	}
	if row.DiscountPrice != nil {
		if discount, err = row.DiscountPrice.value(); err != nil {
			return model.CanonicalPrice{}, errors.Wrapf(ErrPriceNotFound, "invalid Nintendo discount price, NSUID: %s, err: %v", nsuid, err)
		}
		if cp.CurrencyCode == "" {
			cp.CurrencyCode = row.DiscountPrice.Currency
		}
		if end, err := time.Parse(time.RFC3339, row.DiscountPrice.EndDatetime); err == nil {
			end = end.UTC()
			cp.SaleEndsAt = &end
		}
	}

	switch {
	case row.DiscountPrice != nil && row.RegularPrice != nil:
		cp.RegularPrice, cp.CurrentPrice, cp.OnSale = regular, discount, true
	case row.DiscountPrice != nil:
		cp.RegularPrice, cp.CurrentPrice, cp.OnSale = discount, discount, true
	default:
		cp.RegularPrice, cp.CurrentPrice = regular, regular
	}
	if strings.EqualFold(row.SalesStatus, "onsale") && cp.CurrentPrice == 0 && cp.RegularPrice == 0 {
		cp.Description = model.DescriptionFreeToPlay
	}
	return cp, nil
}
