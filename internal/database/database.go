package database

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	Name            = "game_price_tracker_db"
	CollectionPrice = "prices"
	CollectionGames = "games"
)

type Database struct {
	*mongo.Database
}

// ErrNotFound is returned when a lookup or targeted update matches nothing.
var ErrNotFound = mongo.ErrNoDocuments

func ConnectDB(ctx context.Context, dbURI string) (*mongo.Client, error) {
	c, err := mongo.Connect(ctx, options.Client().ApplyURI(dbURI))
	if err != nil {
		return nil, err
	}
	if err = c.Ping(ctx, nil); err != nil {
		return nil, errors.Wrap(err, "error pinging DB")
	}

	_, err = c.Database(Name).Collection(CollectionPrice).Indexes().CreateMany(
		ctx,
		[]mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "store_url", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys: bson.D{{Key: "platform", Value: 1}, {Key: "fetched_at", Value: 1}},
			},
		},
	)
	if err != nil {
		return nil, errors.Wrap(err, "error creating price indexes")
	}

	_, err = c.Database(Name).Collection(CollectionGames).Indexes().CreateMany(
		ctx,
		[]mongo.IndexModel{
			{
				Keys: bson.D{{Key: "user_id", Value: 1}},
			},
			{
				Keys: bson.D{{Key: "category", Value: 1}, {Key: "tracked_prices", Value: 1}},
			},
		},
	)
	if err != nil {
		return nil, errors.Wrap(err, "error creating game indexes")
	}

	return c, nil
}
