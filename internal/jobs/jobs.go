// Package jobs implements a small background job dispatcher. Remote-facing
// work (gateway calls, directory searches) is blocking network I/O and must
// run off the request path; jobs carry ids that are stored on the affected
// rows for correlation and operator visibility.
package jobs

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	// ErrQueueFull is returned when the job queue cannot accept more work.
	ErrQueueFull = errors.New("job queue is full")

	// ErrStopped is returned when enqueueing after Stop.
	ErrStopped = errors.New("dispatcher is stopped")
)

// job is one unit of queued work.
type job struct {
	id   string
	name string
	run  func()
}

// Dispatcher runs queued jobs on a fixed pool of workers. Jobs across
// different accounts run concurrently; per-account exclusion is the
// responsibility of the caller (the lifecycle status soft lock).
type Dispatcher struct {
	queue chan job
	wg    sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewDispatcher starts workers goroutines consuming a queue of the given
// capacity.
func NewDispatcher(workers, capacity int) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}

	if capacity <= 0 {
		capacity = 64
	}

	d := &Dispatcher{
		queue: make(chan job, capacity),
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)

		go d.worker()
	}

	return d
}

// Enqueue queues a job and returns its id. It never blocks: a full queue is
// reported as an error so the caller can fail the request instead of
// stalling it.
func (d *Dispatcher) Enqueue(name string, run func()) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return "", ErrStopped
	}

	j := job{
		id:   uuid.NewString(),
		name: name,
		run:  run,
	}

	select {
	case d.queue <- j:
		return j.id, nil
	default:
		return "", ErrQueueFull
	}
}

// Stop closes the queue and waits for in-flight jobs to finish. Queued jobs
// still run; a job mid-flight always runs to completion or failure.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}

	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

// worker consumes jobs until the queue is closed.
func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for j := range d.queue {
		d.runOne(j)
	}
}

// runOne executes a job with panic recovery; a panicking job must not take
// its worker down.
func (d *Dispatcher) runOne(j job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("job_id", j.id).Str("job", j.name).Any("panic", r).
				Msg("background job panicked")
		}
	}()

	log.Debug().Str("job_id", j.id).Str("job", j.name).Msg("job started")
	j.run()
	log.Debug().Str("job_id", j.id).Str("job", j.name).Msg("job finished")
}
