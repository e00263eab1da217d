package model

import "go.mongodb.org/mongo-driver/bson/primitive"

type Category string

const (
	CategoryWishlist  Category = "WISHLIST"
	CategoryLibrary   Category = "LIBRARY"
	CategoryCompleted Category = "COMPLETED"
	CategoryArchived  Category = "ARCHIVED"
)

// Game is a user's collection entry. TrackedPrices holds the store URLs of the
// Price rows the game tracks.
type Game struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID             string             `bson:"user_id" json:"user_id"`
	Category           Category           `bson:"category" json:"category"`
	Name               string             `bson:"name" json:"name"`
	NintendoSegment    string             `bson:"nintendo_segment,omitempty" json:"nintendo_segment,omitempty"`
	PlayStationSegment string             `bson:"playstation_segment,omitempty" json:"playstation_segment,omitempty"`
	SteamAppID         string             `bson:"steam_app_id,omitempty" json:"steam_app_id,omitempty"`
	SteamSlug          string             `bson:"steam_slug,omitempty" json:"steam_slug,omitempty"`
	TrackedPrices      []string           `bson:"tracked_prices" json:"tracked_prices"`
	CreatedAt          primitive.DateTime `bson:"created_at" json:"-"`
	UpdatedAt          primitive.DateTime `bson:"updated_at" json:"-"`
}

func (g Game) Tracks(storeURL string) bool {
	for _, u := range g.TrackedPrices {
		if u == storeURL {
			return true
		}
	}
	return false
}
