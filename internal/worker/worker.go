package worker

type jobType int

const (
	analyze jobType = iota
	stop
)

// Job carries one analyzer call through the dispatcher.
type Job struct {
	typ    jobType
	userID string
	run    func()
}

type Worker struct {
	pool       *jobChannelPool
	jobChannel chan Job
}

func newWorker(pool *jobChannelPool) *Worker {
	return &Worker{
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

func (w *Worker) Start() {
	go func() {
		for job := range w.jobChannel {
			if job.typ == stop {
				w.pool.retire(w.jobChannel)
				return
			}
			if job.run != nil {
				job.run()
			}
			w.pool.Release(w.jobChannel)
		}
	}()
}
