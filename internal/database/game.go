package database

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"gamepricetracker/internal/model"
)

func (db Database) GameFindByID(ctx context.Context, gameID string) (model.Game, error) {
	var g model.Game
	objID, err := primitive.ObjectIDFromHex(gameID)
	if err != nil {
		return g, errors.Wrapf(ErrNotFound, "invalid Game ID: %s", gameID)
	}
	err = db.Collection(CollectionGames).FindOne(ctx, bson.M{"_id": objID}).Decode(&g)
	return g, errors.Wrapf(err, "error finding Game with ID: %s", gameID)
}

// GameLinkPrice adds storeURL to the Game's tracked prices. The filter on
// userID keeps the ownership check and the write in one operation.
func (db Database) GameLinkPrice(ctx context.Context, userID string, gameID string, storeURL string) error {
	return db.gameUpdateTrackedPrices(ctx, userID, gameID, bson.M{"$addToSet": bson.M{"tracked_prices": storeURL}})
}

func (db Database) GameUnlinkPrice(ctx context.Context, userID string, gameID string, storeURL string) error {
	return db.gameUpdateTrackedPrices(ctx, userID, gameID, bson.M{"$pull": bson.M{"tracked_prices": storeURL}})
}

func (db Database) gameUpdateTrackedPrices(ctx context.Context, userID string, gameID string, update bson.M) error {
	objID, err := primitive.ObjectIDFromHex(gameID)
	if err != nil {
		return errors.Wrapf(ErrNotFound, "invalid Game ID: %s", gameID)
	}
	update["$set"] = bson.M{"updated_at": primitive.NewDateTimeFromTime(time.Now())}
	res, err := db.Collection(CollectionGames).UpdateOne(ctx, bson.M{"_id": objID, "user_id": userID}, update)
	if err != nil {
		return errors.Wrapf(err, "error updating tracked prices of Game with ID: %s", gameID)
	}
	if res.MatchedCount == 0 {
		return errors.Wrapf(ErrNotFound, "Game not found for User, GameID: %s, UserID: %s", gameID, userID)
	}
	return nil
}

// GameTrackedPlatforms lists the distinct platforms of the Prices a Game tracks.
func (db Database) GameTrackedPlatforms(ctx context.Context, gameID string) ([]model.Platform, error) {
	g, err := db.GameFindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	ps, err := db.PricesFindByURLs(ctx, g.TrackedPrices)
	if err != nil {
		return nil, err
	}
	return DistinctPlatforms(ps), nil
}

func DistinctPlatforms(ps []model.Price) []model.Platform {
	seen := make(map[model.Platform]bool)
	platforms := []model.Platform{}
	for _, p := range ps {
		if !seen[p.Platform] {
			seen[p.Platform] = true
			platforms = append(platforms, p.Platform)
		}
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })
	return platforms
}
