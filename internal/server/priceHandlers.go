package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"gamepricetracker/internal/model"
	"gamepricetracker/internal/pricecache"
)

const (
	platformNintendo    = "nintendo"
	platformPlayStation = "playstation"
	platformSteam       = "steam"
)

var platformsByName = map[string]model.Platform{
	platformNintendo:    model.PlatformNintendo,
	platformPlayStation: model.PlatformPlayStation,
	platformSteam:       model.PlatformPC,
}

func (s Server) priceGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid := getTraceContext(r.Context()).traceID
		_, cleanURL, err := model.PlatformAndCleanURL(r.URL.Query().Get("url"))
		if err != nil {
			s.Logger.Debugf("priceGet: Invalid store URL, err: %v, TraceID: %s", err, tid)
			http.Error(w, "Invalid store link", http.StatusBadRequest)
			return
		}

		p, err := s.Prices.GetPrice(r.Context(), cleanURL)
		if err != nil {
			s.Logger.Errorf("priceGet: Error getting Price, url: %s, err: %v, TraceID: %s", cleanURL, err, tid)
			s.writeCacheError(w, err)
			return
		}
		if p == nil {
			http.Error(w, "Price not found", http.StatusNotFound)
			return
		}
		s.writeJsonResponse(w, p, http.StatusOK)
	}
}

func (s Server) priceFetch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid := getTraceContext(r.Context()).traceID
		name := strings.ToLower(mux.Vars(r)["platform"])
		platform, ok := platformsByName[name]
		if !ok {
			http.Error(w, "Unsupported platform", http.StatusBadRequest)
			return
		}

		var fetch func(ctx context.Context, url string) (model.CanonicalPrice, error)
		switch platform {
		case model.PlatformNintendo:
			fetch = s.Prices.FetchNintendoGameInfo
		case model.PlatformPlayStation:
			fetch = s.Prices.FetchPlayStationGameInfo
		default:
			fetch = s.Prices.FetchSteamGameInfo
		}

		cp, err := fetch(r.Context(), r.URL.Query().Get("url"))
		if errors.Is(err, model.ErrInvalidStoreURL) {
			s.Logger.Debugf("priceFetch: Invalid %s link, err: %v, TraceID: %s", platform.DisplayName(), err, tid)
			http.Error(w, "Invalid "+platform.DisplayName()+" link", http.StatusBadRequest)
			return
		}
		if err != nil {
			s.Logger.Errorf("priceFetch: Error fetching price, platform: %s, err: %v, TraceID: %s", platform, err, tid)
			http.Error(w, "Failed to fetch game information", http.StatusBadGateway)
			return
		}
		s.writeJsonResponse(w, cp, http.StatusOK)
	}
}

type linkRequest struct {
	GameID string `json:"game_id"`
	URL    string `json:"url"`
}

func (s Server) priceLink() http.HandlerFunc {
	return s.linkHandler("priceLink", func(ctx context.Context, gameID string, url string) error {
		return s.Prices.LinkPriceToGame(ctx, gameID, url)
	})
}

func (s Server) priceUnlink() http.HandlerFunc {
	return s.linkHandler("priceUnlink", func(ctx context.Context, gameID string, url string) error {
		return s.Prices.UnlinkPriceFromGame(ctx, gameID, url)
	})
}

func (s Server) linkHandler(name string, op func(ctx context.Context, gameID string, url string) error) http.HandlerFunc {
	type response struct {
		Success bool `json:"success"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		tid := getTraceContext(r.Context()).traceID
		req := linkRequest{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.Logger.Debugf("%s: Error decoding JSON, err: %v, TraceID: %s", name, err, tid)
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		_, cleanURL, err := model.PlatformAndCleanURL(req.URL)
		if err != nil || req.GameID == "" {
			s.Logger.Debugf("%s: Invalid request, game ID: %q, err: %v, TraceID: %s", name, req.GameID, err, tid)
			http.Error(w, "Invalid game ID or store link", http.StatusBadRequest)
			return
		}

		if err = op(r.Context(), req.GameID, cleanURL); err != nil {
			s.Logger.Debugf("%s: Error updating tracked prices, GameID: %s, url: %s, err: %v, TraceID: %s",
				name, req.GameID, cleanURL, err, tid)
			s.writeCacheError(w, err)
			return
		}
		s.writeJsonResponse(w, response{Success: true}, http.StatusOK)
	}
}

func (s Server) gameTrackedPlatforms() http.HandlerFunc {
	type response struct {
		Platforms []model.Platform `json:"platforms"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := mux.Vars(r)["gameID"]
		platforms, err := s.Prices.GetTrackedPlatformsForGame(r.Context(), gameID)
		if err != nil {
			s.Logger.Debugf("gameTrackedPlatforms: Error getting platforms, GameID: %s, err: %v, TraceID: %s",
				gameID, err, getTraceContext(r.Context()).traceID)
			s.writeCacheError(w, err)
			return
		}
		s.writeJsonResponse(w, response{Platforms: platforms}, http.StatusOK)
	}
}

func (s Server) gameStoreURLs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := mux.Vars(r)["gameID"]
		urls, err := s.Prices.GameStoreURLs(r.Context(), gameID, s.NintendoLocale, s.PlayStationLocale)
		if err != nil {
			s.Logger.Debugf("gameStoreURLs: Error building store URLs, GameID: %s, err: %v, TraceID: %s",
				gameID, err, getTraceContext(r.Context()).traceID)
			s.writeCacheError(w, err)
			return
		}
		s.writeJsonResponse(w, urls, http.StatusOK)
	}
}

func (s Server) writeCacheError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pricecache.ErrUnauthenticated):
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	case errors.Is(err, pricecache.ErrForbidden):
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
	case errors.Is(err, pricecache.ErrNotFound):
		http.Error(w, "Game not found", http.StatusNotFound)
	default:
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
