package server

import (
	"github.com/lestrrat-go/jwx/v2/jwk"

	"gamepricetracker/internal/cron"
	"gamepricetracker/internal/pricecache"
)

type Server struct {
	Prices         *pricecache.Cache
	Cron           *cron.Controller
	Logger         logger
	AuthSecretKey  jwk.Key
	CronSecretHash string

	NintendoLocale    string
	PlayStationLocale string
}

type logger interface {
	Debug(v ...any)
	Info(v ...any)
	Error(v ...any)
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
	Tracef(format string, v ...any)
}
