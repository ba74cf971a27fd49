package ticket

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/labstack/gommon/log"
)

// Sweeper expires stale tickets shortly after midnight venue time.
type Sweeper struct {
	svc       *Service
	scheduler gocron.Scheduler
	logger    *log.Logger
}

// NewSweeper schedules the daily expiry job.  Call Start to run it.
func NewSweeper(svc *Service, loc *time.Location) (*Sweeper, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, err
	}
	sw := &Sweeper{svc: svc, scheduler: s, logger: log.New("sweeper")}
	_, err = s.NewJob(
		gocron.DailyJob(
			1,
			gocron.NewAtTimes(
				gocron.NewAtTime(0, 5, 0),
			),
		),
		gocron.NewTask(sw.Run),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, err
	}
	return sw, nil
}

// Start runs one sweep immediately, to catch up after downtime, and then
// starts the schedule.
func (sw *Sweeper) Start() {
	sw.Run()
	sw.scheduler.Start()
	sw.logger.Info("ticket expiry sweep scheduled daily at 00:05")
}

// Stop waits for a running sweep and stops the schedule.
func (sw *Sweeper) Stop() error {
	return sw.scheduler.Shutdown()
}

// Run performs one sweep.
func (sw *Sweeper) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := sw.svc.ExpireStale(ctx)
	if err != nil {
		sw.logger.Errorj(log.JSON{"event": "sweep_failed", "error": err.Error()})
		return
	}
	sw.logger.Infoj(log.JSON{"event": "sweep_done", "expired": n, "before": sw.svc.Today()})
}
