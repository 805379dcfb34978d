// Package janitor periodically deletes refresh token records whose chains
// ended longer ago than the retention window.
package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/pilab-dev/exam-sso/internal/metrics"
)

// Purger deletes expired records older than retention and reports how many.
type Purger interface {
	PurgeExpired(ctx context.Context, retention time.Duration) (int64, error)
}

// Janitor runs Purger on a cron schedule. It is not started by New.
type Janitor struct {
	purger    Purger
	retention time.Duration
	timeout   time.Duration
	cron      *cron.Cron
}

// New parses schedule (standard five field cron or a descriptor such as
// "@every 1h") and registers the purge job.
func New(purger Purger, schedule string, retention time.Duration) (*Janitor, error) {
	j := &Janitor{
		purger:    purger,
		retention: retention,
		timeout:   time.Minute,
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		))),
	}

	if _, err := j.cron.AddFunc(schedule, j.run); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}

	return j, nil
}

// RunOnce performs a single purge.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	n, err := j.purger.PurgeExpired(ctx, j.retention)
	if err != nil {
		metrics.JanitorRunsTotal.WithLabelValues("error").Inc()
		return 0, err
	}

	metrics.JanitorRunsTotal.WithLabelValues("ok").Inc()
	metrics.TokensPurgedTotal.Add(float64(n))

	return n, nil
}

func (j *Janitor) run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	n, err := j.RunOnce(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Janitor purge failed")
		return
	}
	log.Info().Int64("deleted", n).Dur("retention", j.retention).Msg("Janitor purge finished")
}

// Start begins the schedule in the background.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running purge to finish or ctx to end.
func (j *Janitor) Stop(ctx context.Context) {
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
	}
}
