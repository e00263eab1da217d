package client

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/html"

	"gamepricetracker/internal/misc"
	"gamepricetracker/internal/model"
)

var ErrPlayStation = errors.New("PlayStation error")

type psCTAEntry struct {
	Price *psCTAPrice `json:"price"`
}

type psCTAPrice struct {
	BasePrice             string          `json:"basePrice"`
	DiscountedPrice       string          `json:"discountedPrice"`
	DiscountText          *string         `json:"discountText"`
	CurrencyCode          string          `json:"currencyCode"`
	IsFree                bool            `json:"isFree"`
	IsTiedToSubscription  bool            `json:"isTiedToSubscription"`
	ServiceBranding       []string        `json:"serviceBranding"`
	UpsellServiceBranding []string        `json:"upsellServiceBranding"`
	UpsellText            *string         `json:"upsellText"`
	EndTime               json.RawMessage `json:"endTime"`
}

type psProductEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (p psCTAPrice) upsell() string {
	if p.UpsellText == nil {
		return ""
	}
	return strings.ToLower(*p.UpsellText)
}

func (p psCTAPrice) isPremiumUpsell() bool {
	return strings.Contains(p.upsell(), "premium")
}

// PlayStationGetPrice scrapes the product page and reads the price out of the
// client data cache the storefront serializes into the HTML.
func (c Client) PlayStationGetPrice(ctx context.Context, storeURL string) (model.CanonicalPrice, error) {
	body, err := c.get(ctx, storeURL, RequestKindScrape, HeaderOptions{Referer: "https://store.playstation.com/"}, 5*1024*1024, ErrPlayStation)
	if err != nil {
		return model.CanonicalPrice{}, errors.WithMessage(err, "error getting PlayStation product page")
	}
	cp, err := playStationParsePage(body, storeURL)
	if err != nil {
		return model.CanonicalPrice{}, errors.WithMessagef(err, "error parsing PlayStation product page: %s", storeURL)
	}
	return cp, nil
}

func playStationParsePage(page []byte, storeURL string) (model.CanonicalPrice, error) {
	cache, err := playStationCache(page)
	if err != nil {
		return model.CanonicalPrice{}, err
	}

	keys := make([]string, 0, len(cache))
	for k := range cache {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var ctas []psCTAPrice
	var product psProductEntry
	var productKey string
	for _, k := range keys {
		switch {
		case strings.Contains(k, "GameCTA"):
			var e psCTAEntry
			if err := json.Unmarshal(cache[k], &e); err == nil && e.Price != nil {
				ctas = append(ctas, *e.Price)
			}
		case strings.HasPrefix(k, "Product:") && productKey == "":
			var e psProductEntry
			if err := json.Unmarshal(cache[k], &e); err == nil && e.Name != "" {
				product, productKey = e, k
			}
		}
	}
	if len(ctas) == 0 {
		return model.CanonicalPrice{}, errors.Wrap(ErrPriceNotFound, "no GameCTA price entry in PlayStation cache")
	}

	cta := ctas[0]
	for _, candidate := range ctas {
		if !candidate.isPremiumUpsell() {
			cta = candidate
			break
		}
	}

	cp := model.CanonicalPrice{
		StoreURL:     storeURL,
		Platform:     model.PlatformPlayStation,
		ExternalID:   product.ID,
		Name:         product.Name,
		CurrencyCode: cta.CurrencyCode,
		Description:  playStationClassify(cta),
	}
	if cp.ExternalID == "" && productKey != "" {
		cp.ExternalID = strings.TrimPrefix(productKey, "Product:")
	}
	if country, _, ok := model.LocaleFromURL(storeURL); ok {
		cp.CountryCode = country
	}

	if cta.IsFree && !cta.IsTiedToSubscription {
		cp.RegularPrice, cp.CurrentPrice = 0, 0
	} else {
		current, err := misc.ParsePriceString(orDefault(cta.DiscountedPrice, cta.BasePrice))
		if err != nil {
			return model.CanonicalPrice{}, errors.Wrapf(ErrPriceNotFound, "invalid PlayStation discounted price, err: %v", err)
		}
		regular := current
		if cta.BasePrice != "" {
			if regular, err = misc.ParsePriceString(cta.BasePrice); err != nil {
				return model.CanonicalPrice{}, errors.Wrapf(ErrPriceNotFound, "invalid PlayStation base price, err: %v", err)
			}
		}
		cp.RegularPrice, cp.CurrentPrice = regular, current
		cp.OnSale = current < regular
	}

	if end, ok := playStationEndTime(cta.EndTime); ok {
		cp.SaleEndsAt = &end
	}
	return cp, nil
}

// playStationClassify explains why the price is what it is.
func playStationClassify(p psCTAPrice) model.PriceDescription {
	if p.IsFree && !p.IsTiedToSubscription {
		return model.DescriptionFreeToPlay
	}
	if p.IsTiedToSubscription {
		upsell := p.upsell()
		switch {
		case strings.Contains(upsell, "extra"):
			return model.DescriptionPSPlusExtra
		case strings.Contains(upsell, "premium"):
			return model.DescriptionPSPlusPremium
		}
		return model.DescriptionPSPlus
	}
	for _, b := range append(append([]string{}, p.ServiceBranding...), p.UpsellServiceBranding...) {
		if strings.Contains(strings.ToUpper(b), "PS_PLUS") {
			return model.DescriptionPSPlus
		}
	}
	if p.DiscountText != nil && strings.Contains(strings.ToUpper(*p.DiscountText), "PS+") {
		return model.DescriptionPSPlus
	}
	return model.DescriptionStandard
}

// playStationCache merges the "cache" objects of every application/json script block.
func playStationCache(page []byte) (map[string]json.RawMessage, error) {
	cache := make(map[string]json.RawMessage)
	var found bool
	for _, script := range jsonScriptBlocks(page) {
		var blob struct {
			Cache map[string]json.RawMessage `json:"cache"`
		}
		if err := json.Unmarshal(script, &blob); err != nil || blob.Cache == nil {
			continue
		}
		found = true
		for k, v := range blob.Cache {
			cache[k] = v
		}
	}
	if !found {
		return nil, errors.Wrap(ErrPriceNotFound, "no script block with a cache object on PlayStation page")
	}
	return cache, nil
}

func jsonScriptBlocks(page []byte) [][]byte {
	var blocks [][]byte
	z := html.NewTokenizer(bytes.NewReader(page))
	inJSONScript := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return blocks
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			inJSONScript = false
			if string(name) != "script" {
				continue
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if string(key) == "type" && strings.EqualFold(string(val), "application/json") {
					inJSONScript = true
				}
			}
		case html.TextToken:
			if inJSONScript {
				blocks = append(blocks, append([]byte(nil), z.Text()...))
			}
		case html.EndTagToken:
			inJSONScript = false
		}
	}
}

// playStationEndTime reads epoch millis that may be encoded as a number or a string.
func playStationEndTime(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, false
	}
	s := strings.Trim(string(raw), `"`)
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}
