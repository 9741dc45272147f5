package core

import (
	"errors"
	"sync"
)

// Job is a unit of work for the JobSystem. Run is required; the callbacks
// are optional and run on the worker goroutine.
type Job struct {
	Run       func() error
	OnSuccess func()
	OnFailure func(err error)
	// OnDone runs after OnSuccess or OnFailure.
	OnDone func()
}

var (
	ErrNoWorkers           = errors.New("attempting to create job system with less than 1 worker")
	ErrNegativeChannelSize = errors.New("attempting to create job system with a negative channel size")
	ErrJobSystemClosed     = errors.New("job system is shut down")
)

// JobSystem is a fixed pool of workers draining a shared queue.
type JobSystem struct {
	numWorkers int
	jobQueue   chan Job
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}
	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan Job, channelSize),
	}
	js.start()
	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				js.run(job)
			}
		}()
	}
}

func (js *JobSystem) run(job Job) {
	if err := job.Run(); err != nil {
		LogError("job failed: %v", err)
		if job.OnFailure != nil {
			job.OnFailure(err)
		}
	} else if job.OnSuccess != nil {
		job.OnSuccess()
	}
	if job.OnDone != nil {
		job.OnDone()
	}
}

func (js *JobSystem) Workers() int {
	return js.numWorkers
}

// Submit queues job, blocking while the queue is full.
func (js *JobSystem) Submit(job Job) error {
	if job.Run == nil {
		return errors.New("job has no Run function")
	}
	js.mu.RLock()
	defer js.mu.RUnlock()
	if js.closed {
		return ErrJobSystemClosed
	}
	js.jobQueue <- job
	return nil
}

// RunAll runs fns on the pool and waits for all of them. The returned
// slice holds each function's error at its index.
func (js *JobSystem) RunAll(fns ...func() error) []error {
	errs := make([]error, len(fns))
	var wg sync.WaitGroup
	for i, fn := range fns {
		wg.Add(1)
		err := js.Submit(Job{
			Run:       fn,
			OnFailure: func(err error) { errs[i] = err },
			OnDone:    wg.Done,
		})
		if err != nil {
			errs[i] = err
			wg.Done()
		}
	}
	wg.Wait()
	return errs
}

// Shutdown stops accepting jobs and waits for the queued ones to finish.
func (js *JobSystem) Shutdown() error {
	js.mu.Lock()
	if js.closed {
		js.mu.Unlock()
		return nil
	}
	js.closed = true
	close(js.jobQueue)
	js.mu.Unlock()
	js.wg.Wait()
	return nil
}
