package worker

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"
)

// ErrDispatcherBusy is returned when the inbound job queue is full. API
// handlers map it to 429.
var ErrDispatcherBusy = errors.New("analyzer queue full")

type userQueue struct {
	jobs     []Job
	enqueued bool
}

// Dispatcher bounds concurrent analyzer calls and keeps them fair across
// participants: each user has a FIFO queue and users take turns in LRU order,
// so one participant hammering analyze cannot starve the rest.
type Dispatcher struct {
	pool     *jobChannelPool
	JobQueue chan Job

	mu        sync.Mutex
	queues    map[string]*userQueue // job queue for each user
	ready     *list.List            // LRU queue storing user IDs
	positions map[string]*list.Element
}

func NewDispatcher(minWorkers, maxWorkers, queueSize int, idleTimeout time.Duration) *Dispatcher {
	if minWorkers <= 0 {
		minWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	pool := newJobChannelPool(minWorkers, maxWorkers, idleTimeout)

	d := &Dispatcher{
		queues:    make(map[string]*userQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		pool:      pool,
		JobQueue:  make(chan Job, queueSize),
	}

	// Warm up workers so first requests skip the spawn path.
	for i := 0; i < minWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// Do submits fn for the user and blocks until it has run or ctx is done. A
// full queue fails fast with ErrDispatcherBusy.
func (d *Dispatcher) Do(ctx context.Context, userID string, fn func()) error {
	done := make(chan struct{})
	job := Job{
		typ:    analyze,
		userID: userID,
		run: func() {
			defer close(done)
			fn()
		},
	}
	select {
	case d.JobQueue <- job:
	default:
		return ErrDispatcherBusy
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CancelUser drops all pending jobs for a user, e.g. on logout.
func (d *Dispatcher) CancelUser(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.queues, userID)
	if elem, ok := d.positions[userID]; ok {
		d.ready.Remove(elem)
		delete(d.positions, userID)
	}
}

func (d *Dispatcher) run() {
	for {
		// dispatch one job of the user at the front of the LRU queue
		if !d.dispatchOne() {
			job := <-d.JobQueue // force congestion
			d.enqueueJob(job)
			continue
		}
		// if we have a new job, enqueue it and its caller user
		select {
		case job := <-d.JobQueue: // non-congestion
			d.enqueueJob(job)
		default:
		}
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	userID := job.userID

	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[userID]
	if q == nil {
		q = &userQueue{}
		d.queues[userID] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		// user already enqueued, skip
		return
	}
	q.enqueued = true
	elem := d.ready.PushBack(userID)
	d.positions[userID] = elem
}

// dispatchOne get first user in LRU and dispatch its job
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	userID := elem.Value.(string)
	q := d.queues[userID]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		// user only had one job, it'll be handled, user quits the queue
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, userID)
	} else {
		// get to the back of the queue
		d.ready.MoveToBack(elem)
	}
	d.mu.Unlock()

	workerChan := d.pool.acquire()
	debugLog("[dispatcher] assign analyzer job for user %s", userID)
	workerChan <- job
	return true
}
