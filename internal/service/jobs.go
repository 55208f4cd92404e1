package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/audiolibrelab/masterweb/internal/master"
)

// JobState is the lifecycle state of a submitted mastering job
type JobState string

const (
	JobPending JobState = "pending"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

// Job is a snapshot of an asynchronous mastering run
type Job struct {
	ID        string        `json:"id"`
	State     JobState      `json:"state"`
	Result    master.Result `json:"result"`
	Stage     string        `json:"stage,omitempty"`
	Error     string        `json:"error,omitempty"`
	Submitted time.Time     `json:"submitted"`
	Finished  time.Time     `json:"finished,omitempty"`
}

// Completed reports whether the job has stopped running
func (j Job) Completed() bool {
	return j.State == JobDone || j.State == JobFailed
}

type jobFunc func(ctx context.Context) (master.Result, error)

// jobRetention is how long a completed job stays pollable
const jobRetention = 30 * time.Minute

// jobTable runs jobs on goroutines bounded by a semaphore and keeps their
// final state for polling until the retention window passes.
type jobTable struct {
	mu        sync.Mutex
	jobs      map[string]*Job
	sem       chan struct{}
	wg        sync.WaitGroup
	retention time.Duration
	now       func() time.Time
}

func newJobTable(workers int) *jobTable {
	if workers < 1 {
		workers = 1
	}
	return &jobTable{
		jobs:      make(map[string]*Job),
		sem:       make(chan struct{}, workers),
		retention: jobRetention,
		now:       time.Now,
	}
}

func (t *jobTable) start(id string, fn jobFunc) {
	t.mu.Lock()
	t.evict()
	t.jobs[id] = &Job{ID: id, State: JobPending, Submitted: t.now()}
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		t.sem <- struct{}{}
		defer func() { <-t.sem }()

		t.update(id, func(j *Job) { j.State = JobRunning })

		res, err := t.run(id, fn)

		t.update(id, func(j *Job) {
			j.Finished = t.now()
			if err != nil {
				j.State = JobFailed
				j.Error = err.Error()
				var failed *master.Failed
				if errors.As(err, &failed) {
					j.Stage = failed.Stage
				}
				return
			}
			j.State = JobDone
			j.Result = res
		})
	}()
}

// run calls fn, turning a panic into an error so one bad job cannot take
// the server down.
func (t *jobTable) run(id string, fn jobFunc) (res master.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Mastering job panicked", "job", id, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return fn(context.Background())
}

// evict drops completed jobs older than the retention window. Callers hold mu.
func (t *jobTable) evict() {
	cutoff := t.now().Add(-t.retention)
	for id, j := range t.jobs {
		if j.Completed() && j.Finished.Before(cutoff) {
			delete(t.jobs, id)
		}
	}
}

func (t *jobTable) update(id string, fn func(*Job)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if j, ok := t.jobs[id]; ok {
		fn(j)
	}
}

func (t *jobTable) get(id string) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evict()
	j, ok := t.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// wait blocks until every started job has finished
func (t *jobTable) wait() {
	t.wg.Wait()
}
