package poller

import (
	"context"
	"log"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule is used when no schedule is configured.
const DefaultSchedule = "@every 15m"

// Scheduler runs PollAll on a cron schedule. A sweep still running when the
// next one is due causes that one to be skipped.
type Scheduler struct {
	c *cron.Cron
}

// NewScheduler validates spec and prepares the job; Run starts it.
func NewScheduler(ctx context.Context, p *Poller, spec string) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		if _, err := p.PollAll(ctx, ""); err != nil {
			log.Printf("poller: sweep failed: %v", err)
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "invalid poll schedule %q", spec)
	}
	return &Scheduler{c: c}, nil
}

// Run starts the schedule and blocks until ctx is done, then waits for a
// running sweep to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.c.Start()
	log.Printf("poller: scheduler started entries=%d", len(s.c.Entries()))
	<-ctx.Done()
	<-s.c.Stop().Done()
	log.Printf("poller: scheduler stopped")
}
