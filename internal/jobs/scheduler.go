package jobs

import (
	"context"
	"log"
	"sync"
	"time"
)

// Job interface that all scheduled jobs must implement
type Job interface {
	Run(ctx context.Context) error
	GetNextRunTime() time.Time
}

// JobScheduler manages and runs scheduled jobs. A failed run is retried once
// after the cooldown; a failed retry is logged and the job is rescheduled for
// its next regular slot, so the loop never dies.
type JobScheduler struct {
	jobs     map[string]Job
	timers   map[string]*time.Timer
	nextRuns map[string]time.Time
	cooldown time.Duration
	onRetry  func(name string)
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewJobScheduler creates a new job scheduler with the given retry cooldown
func NewJobScheduler(cooldown time.Duration) *JobScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		jobs:     make(map[string]Job),
		timers:   make(map[string]*time.Timer),
		nextRuns: make(map[string]time.Time),
		cooldown: cooldown,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// OnRetry registers a hook called whenever a failed job enters its retry.
// Set it before Start.
func (s *JobScheduler) OnRetry(hook func(name string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRetry = hook
}

// Register adds a job to the scheduler
func (s *JobScheduler) Register(name string, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[name] = job
	log.Printf("✅ [SCHEDULER] Registered job: %s", name)
}

// Start begins running all registered jobs
func (s *JobScheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	jobs := make(map[string]Job, len(s.jobs))
	for name, job := range s.jobs {
		jobs[name] = job
	}
	s.mu.Unlock()

	log.Printf("🚀 [SCHEDULER] Starting job scheduler with %d jobs", len(jobs))
	for name, job := range jobs {
		s.scheduleJob(name, job)
	}

	return nil
}

// scheduleJob computes the job's next run and arms its timer. The next-run
// computation may do remote I/O (the catch-up existence probe), so it happens
// before the lock is taken; GetStatus serves the value cached here.
func (s *JobScheduler) scheduleJob(name string, job Job) {
	nextRun := job.GetNextRunTime()
	duration := time.Until(nextRun)
	// Never a non-positive delay: a target in the past would busy-loop.
	if duration < time.Second {
		duration = time.Second
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}

	log.Printf("⏰ [SCHEDULER] Job '%s' scheduled to run at %s (in %v)",
		name, nextRun.Format(time.RFC3339), duration)

	s.timers[name] = time.AfterFunc(duration, func() {
		s.runJob(name, job)
	})
	s.nextRuns[name] = nextRun
}

// runJob executes a job, retries once after the cooldown on failure, and
// reschedules it
func (s *JobScheduler) runJob(name string, job Job) {
	// A timer can fire while Stop holds the lock; re-check before joining the
	// wait group so a stopped scheduler never runs (or leaks) a job.
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	log.Printf("▶️  [SCHEDULER] Running job: %s", name)
	startTime := time.Now()

	if err := job.Run(s.ctx); err != nil {
		log.Printf("❌ [SCHEDULER] Job '%s' failed: %v; retrying in %v", name, err, s.cooldown)
		if s.sleep(s.cooldown) {
			s.mu.Lock()
			hook := s.onRetry
			s.mu.Unlock()
			if hook != nil {
				hook(name)
			}
			if err := job.Run(s.ctx); err != nil {
				log.Printf("❌ [SCHEDULER] Job '%s' retry failed: %v", name, err)
			}
		}
	}

	duration := time.Since(startTime)
	log.Printf("✅ [SCHEDULER] Job '%s' completed in %v", name, duration)

	// Reschedule the job. scheduleJob re-checks running before arming the
	// timer, so a Stop landing here is safe.
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		s.scheduleJob(name, job)
	}
}

// sleep waits for d and reports whether the scheduler is still running.
func (s *JobScheduler) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Stop gracefully stops all jobs
func (s *JobScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}

	log.Println("🛑 [SCHEDULER] Stopping job scheduler...")
	s.running = false

	for name, timer := range s.timers {
		timer.Stop()
		log.Printf("⏹️  [SCHEDULER] Stopped job: %s", name)
	}
	s.timers = make(map[string]*time.Timer)

	s.mu.Unlock()

	// Cancel context and wait for running jobs
	s.cancel()
	s.wg.Wait()

	log.Println("✅ [SCHEDULER] Job scheduler stopped")
}

// RunNow immediately runs a specific job (useful for testing)
func (s *JobScheduler) RunNow(name string) error {
	s.mu.Lock()
	job, exists := s.jobs[name]
	s.mu.Unlock()

	if !exists {
		log.Printf("⚠️  [SCHEDULER] Job '%s' not found", name)
		return nil
	}

	log.Printf("🚀 [SCHEDULER] Running job '%s' immediately", name)
	return job.Run(s.ctx)
}

// GetStatus returns the status of all jobs. Next-run times come from the
// cache maintained by scheduleJob, so this never touches the jobs themselves
// and stays cheap enough for the health endpoint.
func (s *JobScheduler) GetStatus() map[string]JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := make(map[string]JobStatus)
	for name := range s.jobs {
		status[name] = JobStatus{
			Name:        name,
			NextRunTime: s.nextRuns[name],
			Registered:  true,
		}
	}

	return status
}

// JobStatus represents the status of a job
type JobStatus struct {
	Name        string    `json:"name"`
	NextRunTime time.Time `json:"next_run_time"`
	Registered  bool      `json:"registered"`
}
