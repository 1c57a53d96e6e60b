// Package queue implements the bounded multi-producer, multi-consumer
// submission queue and worker pool of spec.md §4.H. Grounded on the
// teacher's internal/processor/PostQueue.go (PostQueueWorker: a
// buffered channel, a stopCh, a select loop with a periodic heartbeat
// branch), generalized from the teacher's web-posting queue to the
// ingestion pipeline's deep-validation stage.
package queue

import (
	"log"
	"time"

	"github.com/nntpcore/newsd/internal/control"
	"github.com/nntpcore/newsd/internal/filter"
	"github.com/nntpcore/newsd/internal/nntperr"
	"github.com/nntpcore/newsd/internal/wire"
)

// Job is one queued article awaiting deep validation and storage.
type Job struct {
	Msg    *wire.Message
	Size   int64
	Result chan error // buffered size 1; receives the final outcome
}

// Queue is the bounded channel + worker pool. Submission is
// non-blocking: Submit fails fast with a FilterRejected-kind error (a
// 441 posting failure) when the channel is full (spec.md §4.H).
type Queue struct {
	jobs    chan *Job
	deps    filter.Deps
	chain   *filter.Chain
	control *control.Processor
	stopCh  chan struct{}
}

// New builds a Queue with capacity C and starts W workers.
func New(capacity, workers int, deps filter.Deps, chain *filter.Chain, ctl *control.Processor) *Queue {
	q := &Queue{
		jobs:    make(chan *Job, capacity),
		deps:    deps,
		chain:   chain,
		control: ctl,
		stopCh:  make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go q.worker(i)
	}
	return q
}

// Stop signals every worker to exit after its current job.
func (q *Queue) Stop() {
	close(q.stopCh)
}

// Submit enqueues msg for deep validation and storage, returning
// immediately. It does not block the caller on queue capacity: a full
// queue is surfaced as a posting failure (spec.md §4.H).
func (q *Queue) Submit(msg *wire.Message, size int64) (chan error, error) {
	job := &Job{Msg: msg, Size: size, Result: make(chan error, 1)}
	select {
	case q.jobs <- job:
		return job.Result, nil
	default:
		return nil, nntperr.New(nntperr.KindFilterRejected, "submission queue is full")
	}
}

func (q *Queue) worker(id int) {
	for {
		select {
		case <-q.stopCh:
			return
		case job := <-q.jobs:
			if job == nil {
				continue
			}
			err := q.process(job)
			job.Result <- err
			if err != nil {
				log.Printf("Queue: worker %d rejected %s: %v", id, messageIDOf(job.Msg), err)
			}
		case <-time.After(30 * time.Second):
			if n := len(q.jobs); n > 0 {
				log.Printf("Queue: worker %d alive, %d jobs pending", id, n)
			}
		}
	}
}

func (q *Queue) process(job *Job) error {
	if control.IsControl(job.Msg) {
		return q.control.Process(job.Msg)
	}
	if err := q.chain.Run(q.deps, job.Msg, job.Size); err != nil {
		return err
	}
	return q.deps.Store.StoreArticle(job.Msg)
}

func messageIDOf(msg *wire.Message) string {
	id, _ := msg.Get("Message-ID")
	return id
}
