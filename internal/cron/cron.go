package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gamepricetracker/internal/model"
	"gamepricetracker/internal/refresh"
)

type JobState string

const (
	StatePending         JobState = "pending"
	StateRunning         JobState = "running"
	StateSucceeded       JobState = "succeeded"
	StatePartiallyFailed JobState = "partially_failed"
	StateFailed          JobState = "failed"
	StateSkipped         JobState = "skipped"
)

// Completed reports whether the job ran to the end, with or without item errors.
func (s JobState) Completed() bool {
	return s == StateSucceeded || s == StatePartiallyFailed
}

type Runner interface {
	Run(ctx context.Context, platform model.Platform) (refresh.Summary, error)
}

type TagInvalidator interface {
	InvalidateTag(ctx context.Context, tag string) (int, error)
}

type logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
}

type Job struct {
	Platform   string           `json:"platform"`
	State      JobState         `json:"state"`
	Summary    *refresh.Summary `json:"summary,omitempty"`
	Error      string           `json:"error,omitempty"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

type PlatformError struct {
	Platform string `json:"platform"`
	Message  string `json:"message"`
}

type CombinedResult struct {
	OK        bool              `json:"ok"`
	Results   []refresh.Summary `json:"results"`
	Errors    []PlatformError   `json:"errors"`
	Timestamp time.Time         `json:"timestamp"`
}

type StepResult struct {
	Step        string          `json:"step"`
	State       JobState        `json:"state"`
	Message     string          `json:"message,omitempty"`
	Invalidated int             `json:"invalidated,omitempty"`
	Refresh     *CombinedResult `json:"refresh,omitempty"`
}

type PipelineResult struct {
	OK        bool         `json:"ok"`
	Steps     []StepResult `json:"steps"`
	Timestamp time.Time    `json:"timestamp"`
}

const (
	StepInvalidate = "invalidate"
	StepRefresh    = "refresh"
)

type Controller struct {
	Refresher Runner
	Tags      TagInvalidator
	Sleep     refresh.Sleeper
	// Delay separates invalidation from refresh in RunPipeline.
	Delay  time.Duration
	Logger logger
	Now    func() time.Time

	mu   sync.Mutex
	jobs map[model.Platform]Job
}

func (c *Controller) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c *Controller) setJob(platform model.Platform, j Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.jobs == nil {
		c.jobs = make(map[model.Platform]Job)
	}
	c.jobs[platform] = j
}

// Jobs returns the latest job of every platform that has run, ordered by platform.
func (c *Controller) Jobs() []Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	platforms := make([]model.Platform, 0, len(c.jobs))
	for p := range c.jobs {
		platforms = append(platforms, p)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })
	jobs := make([]Job, 0, len(platforms))
	for _, p := range platforms {
		jobs = append(jobs, c.jobs[p])
	}
	return jobs
}

// RunPlatform runs one refresh job. The job ends failed when the refresh
// returns an error or panics, and partially failed when items errored.
func (c *Controller) RunPlatform(ctx context.Context, platform model.Platform) Job {
	j := Job{Platform: platform.DisplayName(), State: StatePending}
	c.setJob(platform, j)

	started := c.now()
	j.State, j.StartedAt = StateRunning, &started
	c.setJob(platform, j)

	s, err := c.run(ctx, platform)
	finished := c.now()
	j.FinishedAt = &finished
	switch {
	case err != nil:
		j.State, j.Error = StateFailed, err.Error()
		c.Logger.Errorf("RunPlatform: Job failed, platform: %s, err: %v", platform, err)
	case s.Errors > 0:
		j.State, j.Summary = StatePartiallyFailed, &s
		c.Logger.Warnf("RunPlatform: Job finished with item errors, platform: %s, errors: %d", platform, s.Errors)
	default:
		j.State, j.Summary = StateSucceeded, &s
		c.Logger.Infof("RunPlatform: Job succeeded, platform: %s, updated: %d", platform, s.Updated)
	}
	c.setJob(platform, j)
	return j
}

func (c *Controller) run(ctx context.Context, platform model.Platform) (s refresh.Summary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s refresh: %v", platform.DisplayName(), r)
		}
	}()
	return c.Refresher.Run(ctx, platform)
}

func platformsOrAll(platforms []model.Platform) []model.Platform {
	if len(platforms) == 0 {
		return model.RefreshablePlatforms
	}
	return platforms
}

// RunAll runs the refresh of every platform concurrently and waits for all of
// them. A failed platform is reported in Errors without affecting the others.
func (c *Controller) RunAll(ctx context.Context, platforms ...model.Platform) CombinedResult {
	platforms = platformsOrAll(platforms)
	jobs := make([]Job, len(platforms))

	var g errgroup.Group
	for i, p := range platforms {
		i, p := i, p
		g.Go(func() error {
			jobs[i] = c.RunPlatform(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	res := CombinedResult{Results: []refresh.Summary{}, Errors: []PlatformError{}, Timestamp: c.now()}
	for _, j := range jobs {
		if !j.State.Completed() {
			res.Errors = append(res.Errors, PlatformError{Platform: j.Platform, Message: j.Error})
			continue
		}
		res.Results = append(res.Results, *j.Summary)
	}
	res.OK = len(res.Errors) == 0
	return res
}

// RunPipeline invalidates the cache tags of platforms, waits Delay, then runs
// RunAll. A failed invalidation skips the refresh.
func (c *Controller) RunPipeline(ctx context.Context, platforms ...model.Platform) PipelineResult {
	platforms = platformsOrAll(platforms)
	res := PipelineResult{Steps: make([]StepResult, 0, 2)}

	inv := c.invalidate(ctx, platforms)
	res.Steps = append(res.Steps, inv)
	if inv.State != StateSucceeded {
		res.Steps = append(res.Steps, StepResult{Step: StepRefresh, State: StateSkipped, Message: "skipped after failed invalidation"})
		res.Timestamp = c.now()
		return res
	}

	sleep := c.Sleep
	if sleep == nil {
		sleep = refresh.SleepContext
	}
	if err := sleep(ctx, c.Delay); err != nil {
		res.Steps = append(res.Steps, StepResult{Step: StepRefresh, State: StateFailed, Message: err.Error()})
		res.Timestamp = c.now()
		return res
	}

	combined := c.RunAll(ctx, platforms...)
	step := StepResult{Step: StepRefresh, State: StateSucceeded, Refresh: &combined}
	if !combined.OK {
		step.State = StateFailed
		if len(combined.Results) > 0 {
			step.State = StatePartiallyFailed
		}
	}
	res.Steps = append(res.Steps, step)
	res.OK = combined.OK
	res.Timestamp = c.now()
	return res
}

func (c *Controller) invalidate(ctx context.Context, platforms []model.Platform) StepResult {
	step := StepResult{Step: StepInvalidate, State: StateSucceeded}
	if c.Tags == nil {
		return step
	}
	for _, p := range platforms {
		n, err := c.Tags.InvalidateTag(ctx, p.Tag())
		if err != nil {
			c.Logger.Errorf("invalidate: Error invalidating cache tag, tag: %s, err: %v", p.Tag(), err)
			step.State, step.Message = StateFailed, err.Error()
			return step
		}
		step.Invalidated += n
	}
	return step
}
