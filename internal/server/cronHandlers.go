package server

import (
	"net/http"

	"gamepricetracker/internal/cron"
)

func (s Server) cronUpdatePlatform(name string) http.HandlerFunc {
	platform := platformsByName[name]
	return func(w http.ResponseWriter, r *http.Request) {
		s.Logger.Infof("cronUpdatePlatform: Starting refresh, platform: %s, TraceID: %s",
			platform, getTraceContext(r.Context()).traceID)
		j := s.Cron.RunPlatform(r.Context(), platform)
		status := http.StatusOK
		if !j.State.Completed() {
			status = http.StatusInternalServerError
		}
		s.writeJsonResponse(w, j, status)
	}
}

func (s Server) cronUpdatePrices() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Logger.Infof("cronUpdatePrices: Starting price pipeline, TraceID: %s", getTraceContext(r.Context()).traceID)
		res := s.Cron.RunPipeline(r.Context())
		status := http.StatusOK
		if !res.OK {
			status = http.StatusInternalServerError
		}
		s.writeJsonResponse(w, res, status)
	}
}

func (s Server) cronStatus() http.HandlerFunc {
	type response struct {
		Jobs []cron.Job `json:"jobs"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJsonResponse(w, response{Jobs: s.Cron.Jobs()}, http.StatusOK)
	}
}
