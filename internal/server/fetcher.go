package server

import (
	"context"
	"time"

	"gamepricetracker/internal/cron"
)

// FetchDataInInterval runs the price pipeline on every tick until ctx is done.
func (s Server) FetchDataInInterval(ctx context.Context, ticker *time.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("FetchDataInInterval: Stopped")
			return
		case <-ticker.C:
			s.fetchData(ctx)
		}
	}
}

func (s Server) fetchData(ctx context.Context) {
	s.Logger.Info("fetchData: Starting scheduled price pipeline")
	res := s.Cron.RunPipeline(ctx)
	for _, step := range res.Steps {
		if step.Refresh != nil {
			for _, sum := range step.Refresh.Results {
				s.Logger.Infof("fetchData: Refreshed %s prices, total: %d, updated: %d, errors: %d, skipped: %d",
					sum.Platform, sum.Total, sum.Updated, sum.Errors, sum.Skipped)
			}
			for _, e := range step.Refresh.Errors {
				s.Logger.Errorf("fetchData: Error refreshing %s prices, err: %s", e.Platform, e.Message)
			}
		}
		if step.State != cron.StateSucceeded {
			s.Logger.Errorf("fetchData: Pipeline step %s ended %s, message: %s", step.Step, step.State, step.Message)
		}
	}
	s.Logger.Infof("fetchData: Finished scheduled price pipeline, ok: %v", res.OK)
}
