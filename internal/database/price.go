package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gamepricetracker/internal/model"
)

func (db Database) PriceFindByURL(ctx context.Context, storeURL string) (model.Price, error) {
	var p model.Price
	err := db.Collection(CollectionPrice).FindOne(ctx, bson.M{"store_url": storeURL}).Decode(&p)
	return p, errors.Wrapf(err, "error finding Price with store URL: %s", storeURL)
}

func priceFieldsSet(cp model.CanonicalPrice, now time.Time) bson.M {
	p := cp.ToPrice(now)
	return bson.M{
		"platform":      p.Platform,
		"external_id":   p.ExternalID,
		"name":          p.Name,
		"country_code":  p.CountryCode,
		"currency_code": p.CurrencyCode,
		"regular_price": p.RegularPrice,
		"current_price": p.CurrentPrice,
		"on_sale":       p.OnSale,
		"sale_ends_at":  p.SaleEndsAt,
		"description":   p.Description,
		"fetched_at":    p.FetchedAt,
		"updated_at":    p.UpdatedAt,
	}
}

// PriceUpsert creates or overwrites the Price of cp.StoreURL in one atomic
// operation on the unique store_url index.
func (db Database) PriceUpsert(ctx context.Context, cp model.CanonicalPrice, now time.Time) (model.Price, error) {
	var p model.Price
	err := db.Collection(CollectionPrice).FindOneAndUpdate(
		ctx,
		bson.M{"store_url": cp.StoreURL},
		bson.M{
			"$set":         priceFieldsSet(cp, now),
			"$setOnInsert": bson.M{"created_at": primitive.NewDateTimeFromTime(now)},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&p)
	if err != nil {
		return p, errors.Wrapf(err, "error upserting Price with store URL: %s", cp.StoreURL)
	}
	return p, nil
}

// PriceUpdateFetched overwrites the price fields of an existing row.
func (db Database) PriceUpdateFetched(ctx context.Context, cp model.CanonicalPrice, now time.Time) error {
	res, err := db.Collection(CollectionPrice).UpdateOne(
		ctx,
		bson.M{"store_url": cp.StoreURL},
		bson.M{"$set": priceFieldsSet(cp, now)},
	)
	if err != nil {
		return errors.Wrapf(err, "error updating fetched Price with store URL: %s", cp.StoreURL)
	}
	if res.MatchedCount == 0 {
		return errors.Wrapf(ErrNotFound, "Price not found when updating fetched Price with store URL: %s", cp.StoreURL)
	}
	return nil
}

func (db Database) PricesFindByURLs(ctx context.Context, storeURLs []string) ([]model.Price, error) {
	ps := []model.Price{}
	if len(storeURLs) == 0 {
		return ps, nil
	}
	cur, err := db.Collection(CollectionPrice).Find(
		ctx,
		bson.M{"store_url": bson.M{"$in": storeURLs}},
		options.Find().SetSort(bson.M{"store_url": 1}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "error getting cursor to find Prices, store URLs: %v", storeURLs)
	}
	if err = cur.All(ctx, &ps); err != nil {
		return nil, errors.Wrapf(err, "error getting Prices from cursor, store URLs: %v", storeURLs)
	}
	return ps, nil
}

// PricesFindTracked returns the Prices of platform linked to at least one Game in category.
func (db Database) PricesFindTracked(ctx context.Context, platform model.Platform, category model.Category) ([]model.Price, error) {
	rawURLs, err := db.Collection(CollectionGames).Distinct(ctx, "tracked_prices", bson.M{"category": category})
	if err != nil {
		return nil, errors.Wrapf(err, "error getting tracked store URLs for category: %s", category)
	}
	storeURLs := make([]string, 0, len(rawURLs))
	for _, u := range rawURLs {
		if s, ok := u.(string); ok {
			storeURLs = append(storeURLs, s)
		}
	}
	ps := []model.Price{}
	if len(storeURLs) == 0 {
		return ps, nil
	}

	cur, err := db.Collection(CollectionPrice).Find(
		ctx,
		bson.M{"platform": platform, "store_url": bson.M{"$in": storeURLs}},
		options.Find().SetSort(bson.M{"store_url": 1}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "error getting cursor to find tracked Prices, platform: %s", platform)
	}
	if err = cur.All(ctx, &ps); err != nil {
		return nil, errors.Wrapf(err, "error getting tracked Prices from cursor, platform: %s", platform)
	}
	return ps, nil
}
