package model

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Platform string

const (
	PlatformNintendo    Platform = "NINTENDO"
	PlatformPlayStation Platform = "PLAYSTATION"
	PlatformPC          Platform = "PC"
	PlatformXbox        Platform = "XBOX"
)

// RefreshablePlatforms are the platforms that have a storefront extractor.
var RefreshablePlatforms = []Platform{PlatformNintendo, PlatformPlayStation, PlatformPC}

// DisplayName is the storefront name used in job reports.
func (p Platform) DisplayName() string {
	switch p {
	case PlatformNintendo:
		return "Nintendo"
	case PlatformPlayStation:
		return "PlayStation"
	case PlatformPC:
		return "Steam"
	case PlatformXbox:
		return "Xbox"
	}
	return string(p)
}

// Tag groups cached prices of one platform for invalidation.
func (p Platform) Tag() string {
	return "prices:" + string(p)
}

type PriceDescription string

const (
	DescriptionStandard      PriceDescription = "STANDARD"
	DescriptionFreeToPlay    PriceDescription = "FREE_TO_PLAY"
	DescriptionPSPlus        PriceDescription = "PS_PLUS"
	DescriptionPSPlusExtra   PriceDescription = "PS_PLUS_EXTRA"
	DescriptionPSPlusPremium PriceDescription = "PS_PLUS_PREMIUM"
)

var ErrInvalidPrice = errors.New("invalid price")

// Price is the persisted, canonical price of one storefront product URL.
type Price struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"-"`
	StoreURL     string              `bson:"store_url" json:"store_url"`
	Platform     Platform            `bson:"platform" json:"platform"`
	ExternalID   *string             `bson:"external_id" json:"external_id"`
	Name         string              `bson:"name" json:"name"`
	CountryCode  *string             `bson:"country_code" json:"country_code"`
	CurrencyCode *string             `bson:"currency_code" json:"currency_code"`
	RegularPrice *float64            `bson:"regular_price" json:"regular_price"`
	CurrentPrice *float64            `bson:"current_price" json:"current_price"`
	OnSale       bool                `bson:"on_sale" json:"on_sale"`
	SaleEndsAt   *primitive.DateTime `bson:"sale_ends_at" json:"sale_ends_at"`
	Description  PriceDescription    `bson:"description" json:"description"`
	FetchedAt    primitive.DateTime  `bson:"fetched_at" json:"fetched_at"`
	CreatedAt    primitive.DateTime  `bson:"created_at" json:"created_at"`
	UpdatedAt    primitive.DateTime  `bson:"updated_at" json:"updated_at"`
}

// CanonicalPrice is what a storefront extractor produces, independent of the
// storefront's own payload shape.
type CanonicalPrice struct {
	StoreURL     string           `json:"store_url"`
	Platform     Platform         `json:"platform"`
	ExternalID   string           `json:"external_id,omitempty"`
	Name         string           `json:"name,omitempty"`
	CountryCode  string           `json:"country_code,omitempty"`
	CurrencyCode string           `json:"currency_code,omitempty"`
	RegularPrice float64          `json:"regular_price"`
	CurrentPrice float64          `json:"current_price"`
	OnSale       bool             `json:"on_sale"`
	Description  PriceDescription `json:"description"`
	SaleEndsAt   *time.Time       `json:"sale_ends_at,omitempty"`
}

// Validate rejects prices that must never reach the store.
func (cp CanonicalPrice) Validate() error {
	if cp.StoreURL == "" {
		return errors.Wrap(ErrInvalidPrice, "store URL is empty")
	}
	for _, v := range []struct {
		name  string
		value float64
	}{{"regular", cp.RegularPrice}, {"current", cp.CurrentPrice}} {
		if math.IsNaN(v.value) || math.IsInf(v.value, 0) {
			return errors.Wrapf(ErrInvalidPrice, "%s price is not a number: %v, url: %s", v.name, v.value, cp.StoreURL)
		}
		if v.value < 0 {
			return errors.Wrapf(ErrInvalidPrice, "%s price is negative: %v, url: %s", v.name, v.value, cp.StoreURL)
		}
	}
	if cp.CurrentPrice > cp.RegularPrice {
		return errors.Wrapf(ErrInvalidPrice, "current price %v above regular price %v, url: %s",
			cp.CurrentPrice, cp.RegularPrice, cp.StoreURL)
	}
	return nil
}

// ToPrice converts cp into a Price row fetched at fetchedAt. ID and CreatedAt
// are left to the store.
func (cp CanonicalPrice) ToPrice(fetchedAt time.Time) Price {
	regular, current := cp.RegularPrice, cp.CurrentPrice
	p := Price{
		StoreURL:     cp.StoreURL,
		Platform:     cp.Platform,
		ExternalID:   optionalString(cp.ExternalID),
		Name:         cp.Name,
		CountryCode:  optionalString(cp.CountryCode),
		CurrencyCode: optionalString(cp.CurrencyCode),
		RegularPrice: &regular,
		CurrentPrice: &current,
		OnSale:       cp.OnSale,
		Description:  cp.Description,
		FetchedAt:    primitive.NewDateTimeFromTime(fetchedAt),
		UpdatedAt:    primitive.NewDateTimeFromTime(fetchedAt),
	}
	if cp.SaleEndsAt != nil {
		sea := primitive.NewDateTimeFromTime(*cp.SaleEndsAt)
		p.SaleEndsAt = &sea
	}
	return p
}

// Canonical is the inverse of CanonicalPrice.ToPrice.
func (p Price) Canonical() CanonicalPrice {
	cp := CanonicalPrice{
		StoreURL:    p.StoreURL,
		Platform:    p.Platform,
		Name:        p.Name,
		OnSale:      p.OnSale,
		Description: p.Description,
	}
	if p.ExternalID != nil {
		cp.ExternalID = *p.ExternalID
	}
	if p.CountryCode != nil {
		cp.CountryCode = *p.CountryCode
	}
	if p.CurrencyCode != nil {
		cp.CurrencyCode = *p.CurrencyCode
	}
	if p.RegularPrice != nil {
		cp.RegularPrice = *p.RegularPrice
	}
	if p.CurrentPrice != nil {
		cp.CurrentPrice = *p.CurrentPrice
	}
	if p.SaleEndsAt != nil {
		sea := p.SaleEndsAt.Time().UTC()
		cp.SaleEndsAt = &sea
	}
	return cp
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
