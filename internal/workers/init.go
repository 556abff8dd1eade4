package workers

import (
	"context"

	"runclub/pacemaker/internal/config"
	"runclub/pacemaker/internal/jobs"
)

// WorkersContainer holds the long-running background components
type WorkersContainer struct {
	Scheduler *jobs.SchedulerJob
	Monitor   *HealthMonitor
}

// InitWorkers starts the scheduler tick loop and the health monitor on their
// own schedules. Both operate purely on durable state, so restarting the
// process resumes exactly where the rows left off.
func InitWorkers(cfg config.Config, scheduler *jobs.SchedulerJob, monitor *HealthMonitor) *WorkersContainer {
	go scheduler.RunScheduled(context.Background(), cfg.SchedulerInterval)
	go monitor.Start(context.Background(), cfg.HealthMonitorInterval)

	return &WorkersContainer{
		Scheduler: scheduler,
		Monitor:   monitor,
	}
}
