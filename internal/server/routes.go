package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.loggingMw)
	r.NotFoundHandler = s.notFoundHandler()

	api := r.PathPrefix("/api").Subrouter()

	priceAPI := api.PathPrefix("/prices").Subrouter()
	priceAPI.Use(s.maxBytesMw, s.authMw)
	priceAPI.HandleFunc("", s.priceGet()).Methods(http.MethodGet)
	priceAPI.HandleFunc("/link", s.priceLink()).Methods(http.MethodPost)
	priceAPI.HandleFunc("/unlink", s.priceUnlink()).Methods(http.MethodPost)
	priceAPI.HandleFunc("/{platform}", s.priceFetch()).Methods(http.MethodGet)

	gameAPI := api.PathPrefix("/games").Subrouter()
	gameAPI.Use(s.authMw)
	gameAPI.HandleFunc("/{gameID}/platforms", s.gameTrackedPlatforms()).Methods(http.MethodGet)
	gameAPI.HandleFunc("/{gameID}/store-urls", s.gameStoreURLs()).Methods(http.MethodGet)

	cronAPI := api.PathPrefix("/cron").Subrouter()
	cronAPI.Use(s.cronAuthMw)
	cronAPI.HandleFunc("/update-nintendo-prices", s.cronUpdatePlatform(platformNintendo)).Methods(http.MethodGet)
	cronAPI.HandleFunc("/update-playstation-prices", s.cronUpdatePlatform(platformPlayStation)).Methods(http.MethodGet)
	cronAPI.HandleFunc("/update-steam-prices", s.cronUpdatePlatform(platformSteam)).Methods(http.MethodGet)
	cronAPI.HandleFunc("/update-prices", s.cronUpdatePrices()).Methods(http.MethodGet)
	cronAPI.HandleFunc("/status", s.cronStatus()).Methods(http.MethodGet)

	return r
}
