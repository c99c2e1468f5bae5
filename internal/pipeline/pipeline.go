// Package pipeline dispatches response queries to a bounded pool of workers
// and broadcasts results to subscribers. Long batch runs (many sources, many
// visits) go through here; one-shot CLI queries call the estimator directly.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"log/slog"

	"uvcal/internal/logging"
	"uvcal/internal/response"
	"uvcal/internal/storage"
)

// Method selects the estimation strategy for a job.
type Method string

const (
	MethodAperture Method = "aperture"
	MethodMap      Method = "map"
)

// Job represents a single queued response query.
type Job struct {
	ID      string
	Method  Method
	Request response.Request
}

// Result captures the outcome of a Job.
type Result struct {
	Job      Job
	Response response.Result
	Error    error
}

// Processor executes a job and returns a Result.
type Processor interface {
	Process(ctx context.Context, job Job) Result
}

// Pipeline orchestrates job dispatch across workers.
type Pipeline struct {
	processor Processor
	log       *slog.Logger
	jobs      chan Job
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	startOnce sync.Once
	stopOnce  sync.Once
	store     *storage.Store
	mu        sync.Mutex
	subs      map[int]chan Result
	nextSubID int
}

// New creates a new Pipeline with the given concurrency, routing jobs to the
// supplied per-method estimators.
func New(ctx context.Context, concurrency int, logger *slog.Logger, store *storage.Store, estimators map[Method]response.Estimator) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pipeline{
		log:    logger,
		jobs:   make(chan Job, concurrency*2),
		cancel: cancel,
		store:  store,
		subs:   make(map[int]chan Result),
	}

	p.startOnce.Do(func() {
		p.processor = newRouter(logger, estimators)
		for i := 0; i < concurrency; i++ {
			p.wg.Add(1)
			go p.worker(ctx, i)
		}
	})

	return p
}

// Submit adds a job to the processing queue.
func (p *Pipeline) Submit(job Job) error {
	if p.store != nil {
		_ = p.store.RecordQueryQueued(job.ID, string(job.Method), job.Request)
	}

	select {
	case p.jobs <- job:
		return nil
	default:
		return errors.New("job queue is full")
	}
}

// Stop signals workers to exit and waits for completion.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.cancel()
		close(p.jobs)
		p.wg.Wait()
		p.mu.Lock()
		for id, ch := range p.subs {
			close(ch)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	})
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			start := time.Now()

			logging.LogQueryStart(p.log, string(job.Method), job.ID,
				string(job.Request.Band), job.Request.RA, job.Request.Dec, job.Request.Aperture)

			if p.store != nil {
				_ = p.store.RecordQueryStart(job.ID)
			}
			res := p.processor.Process(ctx, job)
			duration := time.Since(start)

			if res.Error != nil {
				logging.LogQueryError(p.log, string(job.Method), job.ID, duration, res.Error)
			} else {
				logging.LogQueryComplete(p.log, string(job.Method), job.ID, duration,
					res.Response.Response, res.Response.Exposure, res.Response.GapTicks)
			}
			if p.store != nil {
				_ = p.store.RecordQueryResult(job.ID, res.Response, res.Error)
			}

			p.broadcast(res)
		}
	}
}

// Subscribe returns a channel for receiving job results and an unsubscribe function.
func (p *Pipeline) Subscribe() (<-chan Result, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSubID
	p.nextSubID++
	ch := make(chan Result, 8)
	p.subs[id] = ch
	unsub := func() {
		p.mu.Lock()
		if c, ok := p.subs[id]; ok {
			close(c)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	}
	return ch, unsub
}

func (p *Pipeline) broadcast(res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.subs {
		select {
		case ch <- res:
		default:
			p.log.Warn("result channel full", "subscriber", id, "job", res.Job.ID)
		}
	}
}
