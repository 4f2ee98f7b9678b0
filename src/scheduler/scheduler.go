package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"agentengine/src/apperrors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/zeromicro/go-zero/core/threading"
)

// State of a registered job.
type State string

const (
	StateQueued  State = "queued"
	StateRunning State = "running"
)

// Job is a deferred task identified by a fixed id. Every is zero for a one-off job.
type Job struct {
	ID    string
	Delay time.Duration
	Every time.Duration
	Run   func(ctx context.Context) error
}

type entry struct {
	job   Job
	state State
	runID string
	runs  int
}

// JobStatus is a read-only view of a registered job.
type JobStatus struct {
	ID    string `json:"id"`
	State State  `json:"state"`
	RunID string `json:"run_id,omitempty"`
	Runs  int    `json:"runs"`
}

// Scheduler runs jobs in the background. A job id that is queued or running is never
// registered twice; recurring jobs stay registered until the scheduler stops and one-off
// jobs are dropped after their run.
type Scheduler struct {
	config Config
	log    *logrus.Entry

	mu      sync.Mutex
	jobs    map[string]*entry
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

func New(config Config, log *logrus.Entry) *Scheduler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		config: config,
		log:    log.WithField("component", "Scheduler"),
		jobs:   map[string]*entry{},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Schedule registers job and reports whether it was added. A job whose id is already
// queued or running is left alone.
func (s *Scheduler) Schedule(job Job) (bool, error) {
	if job.ID == "" || job.Run == nil {
		return false, apperrors.Validation("job id and run function are required")
	}
	if job.Every < 0 || job.Delay < 0 {
		return false, apperrors.Validation("job delay and interval may not be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false, apperrors.New(apperrors.KindInternal, apperrors.CodeInternal, "scheduler stopped")
	}
	if e, ok := s.jobs[job.ID]; ok {
		s.log.WithFields(logrus.Fields{"job": job.ID, "state": e.state}).Debug("Job already scheduled")
		return false, nil
	}
	e := &entry{job: job, state: StateQueued}
	s.jobs[job.ID] = e

	s.wg.Add(1)
	threading.GoSafe(func() {
		defer s.wg.Done()
		s.loop(e)
	})
	s.log.WithFields(logrus.Fields{"job": job.ID, "delay": job.Delay.String(), "every": job.Every.String()}).Info("Job scheduled")
	return true, nil
}

// Status returns the registered jobs sorted by id.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for id, e := range s.jobs {
		out = append(out, JobStatus{ID: id, State: e.state, RunID: e.runID, Runs: e.runs})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stop cancels pending jobs and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) loop(e *entry) {
	defer s.remove(e.job.ID)

	if !s.wait(e.job.Delay) {
		return
	}
	for {
		s.run(e)
		if e.job.Every == 0 || !s.wait(e.job.Every) {
			return
		}
	}
}

func (s *Scheduler) wait(d time.Duration) bool {
	if d <= 0 {
		return s.ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) run(e *entry) {
	runID := uuid.NewString()
	s.setState(e, StateRunning, runID)
	defer s.setState(e, StateQueued, "")

	log := s.log.WithFields(logrus.Fields{"job": e.job.ID, "run_id": runID})
	start := time.Now()
	err := s.runSafe(e.job)
	JobDuration.WithLabelValues(e.job.ID).Observe(time.Since(start).Seconds())

	if err != nil {
		JobRuns.WithLabelValues(e.job.ID, "failed").Inc()
		log.WithError(err).Error("Job failed")
		return
	}
	JobRuns.WithLabelValues(e.job.ID, "success").Inc()
	log.WithField("duration", time.Since(start).String()).Info("Job finished")
}

func (s *Scheduler) runSafe(job Job) (err error) {
	ctx := s.ctx
	if s.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.JobTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.New(apperrors.KindInternal, apperrors.CodeInternal, fmt.Sprintf("job panicked: %v", r))
		}
	}()
	return job.Run(ctx)
}

func (s *Scheduler) setState(e *entry, state State, runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.state = state
	e.runID = runID
	if state == StateRunning {
		e.runs++
	}
}

func (s *Scheduler) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}
