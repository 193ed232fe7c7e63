package jobs

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Noptus/btp4ai-wire/internal/config"
	"github.com/Noptus/btp4ai-wire/internal/metrics"
	"github.com/Noptus/btp4ai-wire/internal/publisher"
)

// SchedulePolicy is the cadence rule for card publication: a target time of
// day on either one configured weekday (weekly) or every weekday (daily),
// evaluated in the configured timezone. An optional cron expression overrides
// the weekday/time fields entirely.
type SchedulePolicy struct {
	Cadence  config.Cadence
	Weekday  time.Weekday
	Hour     int
	Minute   int
	Location *time.Location
	CronExpr string
}

// NextRun returns the first eligible instant strictly after now. Day stepping
// uses time.Date in the policy's location, so a DST transition shifts the
// wall-clock target, not the local time of day.
func (p SchedulePolicy) NextRun(now time.Time) time.Time {
	local := now.In(p.Location)

	if p.CronExpr != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if schedule, err := parser.Parse(p.CronExpr); err == nil {
			return schedule.Next(local)
		}
		log.Printf("⚠️  [SCHEDULER] Invalid RUN_CRON %q, falling back to weekday policy", p.CronExpr)
	}

	candidate := time.Date(local.Year(), local.Month(), local.Day(), p.Hour, p.Minute, 0, 0, p.Location)
	for i := 0; i < 8; i++ {
		if p.eligibleDay(candidate.Weekday()) && candidate.After(local) {
			return candidate
		}
		candidate = time.Date(candidate.Year(), candidate.Month(), candidate.Day()+1, p.Hour, p.Minute, 0, 0, p.Location)
	}
	// Unreachable: any 8 consecutive days contain every weekday.
	return candidate
}

func (p SchedulePolicy) eligibleDay(wd time.Weekday) bool {
	if p.Cadence == config.CadenceDaily {
		return wd != time.Saturday && wd != time.Sunday
	}
	return wd == p.Weekday
}

// PublishCardJob publishes the card on the configured cadence.
type PublishCardJob struct {
	publisher *publisher.Publisher
	policy    SchedulePolicy
	metrics   *metrics.Metrics
	catchUp   bool

	now func() time.Time
}

// NewPublishCardJob creates the publication job. With catchUp enabled the job
// runs near-immediately whenever no card exists yet for the current period.
func NewPublishCardJob(pub *publisher.Publisher, policy SchedulePolicy, m *metrics.Metrics, catchUp bool) *PublishCardJob {
	return &PublishCardJob{
		publisher: pub,
		policy:    policy,
		metrics:   m,
		catchUp:   catchUp,
		now:       time.Now,
	}
}

// Run publishes once. Errors propagate to the scheduler's retry policy.
func (j *PublishCardJob) Run(ctx context.Context) error {
	if j.metrics != nil {
		j.metrics.ScheduledRuns.Inc()
	}
	_, err := j.publisher.PublishOnce(ctx)
	return err
}

// GetNextRunTime computes the next run under the cadence policy, or a
// near-zero delay in catch-up mode when the current period's card is missing.
func (j *PublishCardJob) GetNextRunTime() time.Time {
	now := j.now()

	if j.catchUp {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		exists, err := j.publisher.CardExists(ctx)
		cancel()
		if err != nil {
			log.Printf("⚠️  [SCHEDULER] Catch-up existence check failed: %v", err)
		} else if !exists {
			log.Println("⏰ [SCHEDULER] Catch-up: no card for the current period, running now")
			return now.Add(time.Second)
		}
	}

	return j.policy.NextRun(now)
}
