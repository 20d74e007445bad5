package daemon

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var ErrSequencerStopped = errors.New("sequencer stopped")

// Committer persists, or drops, whatever a job left in the state tree outside a marketplace call.
type Committer interface {
	Commit(ctx context.Context) error
	Discard() error
}

// Observer receives queue and timing measurements. *metrics.Metrics satisfies it.
type Observer interface {
	JobQueued()
	JobStarted()
	ObserveJob(d time.Duration)
}

type Job func(ctx context.Context) error

const (
	jobPending int32 = iota
	jobRunning
	jobCancelled
)

type request struct {
	ctx   context.Context
	job   Job
	state int32
	done  chan error
}

// Sequencer runs jobs one at a time on a single worker goroutine. A job either commits every
// write it made or none of them.
type Sequencer struct {
	committer Committer
	observer  Observer
	requests  chan *request
	quit      chan struct{}
	stopped   chan struct{}
	wg        sync.WaitGroup
	once      sync.Once
}

func NewSequencer(committer Committer, observer Observer, queueSize int) *Sequencer {
	return &Sequencer{
		committer: committer,
		observer:  observer,
		requests:  make(chan *request, queueSize),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

func (s *Sequencer) Start() {
	s.wg.Add(1)
	go s.run()
	zap.L().Info("Sequencer: Started")
}

// Stop waits for the running job to finish. Queued jobs fail with ErrSequencerStopped.
func (s *Sequencer) Stop() {
	s.once.Do(func() {
		close(s.quit)
	})
	s.wg.Wait()
	zap.L().Info("Sequencer: Stopped")
}

// Submit blocks until the job has run, returning its error. If ctx is cancelled before the job
// starts it is skipped and the context error is returned.
func (s *Sequencer) Submit(ctx context.Context, job Job) error {
	req := &request{ctx: ctx, job: job, done: make(chan error, 1)}

	select {
	case <-s.quit:
		return ErrSequencerStopped
	case <-ctx.Done():
		return ctx.Err()
	case s.requests <- req:
		s.observer.JobQueued()
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		if atomic.CompareAndSwapInt32(&req.state, jobPending, jobCancelled) {
			return ctx.Err()
		}
		return <-req.done
	case <-s.stopped:
		select {
		case err := <-req.done:
			return err
		default:
			return ErrSequencerStopped
		}
	}
}

func (s *Sequencer) run() {
	defer s.wg.Done()
	defer close(s.stopped)

	for {
		select {
		case <-s.quit:
			s.drain()
			return
		case req := <-s.requests:
			s.observer.JobStarted()
			s.execute(req)
		}
	}
}

func (s *Sequencer) execute(req *request) {
	if !atomic.CompareAndSwapInt32(&req.state, jobPending, jobRunning) {
		req.done <- req.ctx.Err()
		return
	}

	start := time.Now()
	err := s.job(req)
	s.observer.ObserveJob(time.Since(start))

	req.done <- err
}

func (s *Sequencer) job(req *request) error {
	if err := req.job(req.ctx); err != nil {
		if discardErr := s.committer.Discard(); discardErr != nil {
			zap.L().With(zap.Error(discardErr)).Error("Sequencer: Failed to discard state")
			return multierr.Append(err, discardErr)
		}
		return err
	}

	return s.committer.Commit(req.ctx)
}

func (s *Sequencer) drain() {
	for {
		select {
		case req := <-s.requests:
			s.observer.JobStarted()
			req.done <- ErrSequencerStopped
		default:
			return
		}
	}
}
