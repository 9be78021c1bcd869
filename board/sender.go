package board

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// syncJob is one gateway call issued by the dispatcher.
type syncJob struct {
	ctx    context.Context
	result Result
	call   func(ctx context.Context) (Result, error)
}

type senderConfig struct {
	workers        int
	buffer         int
	handoffTimeout time.Duration
	callTimeout    time.Duration
}

// sender runs gateway calls on a bounded set of workers. Submitting never
// blocks the caller for longer than the handoff timeout: a saturated pool
// spills the job onto its own goroutine.
type sender struct {
	cfg     senderConfig
	logger  *log.Logger
	jobs    chan syncJob
	out     chan Result
	abandon chan struct{}
	group   errgroup.Group

	mu     sync.Mutex
	closed bool
}

func newSender(cfg senderConfig, logger *log.Logger) *sender {
	if cfg.workers <= 0 {
		cfg.workers = 1
	}
	if cfg.buffer <= 0 {
		cfg.buffer = cfg.workers * 4
	}
	s := &sender{
		cfg:     cfg,
		logger:  logger,
		jobs:    make(chan syncJob, cfg.buffer),
		out:     make(chan Result, cfg.buffer),
		abandon: make(chan struct{}),
	}
	for i := 0; i < cfg.workers; i++ {
		id := i
		s.group.Go(func() error {
			for j := range s.jobs {
				s.run(id, j)
			}
			return nil
		})
	}
	s.logger.Debugf("board sender started, workers: %d, buffer: %d, handoff: %v", cfg.workers, cfg.buffer, cfg.handoffTimeout)
	return s
}

func (s *sender) submit(j syncJob) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	select {
	case s.jobs <- j:
		return true
	default:
	}

	if s.cfg.handoffTimeout > 0 {
		timer := time.NewTimer(s.cfg.handoffTimeout)
		defer timer.Stop()
		select {
		case s.jobs <- j:
			return true
		case <-timer.C:
		}
	}

	s.logger.Warn("board sender saturated; running gateway call on its own goroutine")
	s.group.Go(func() error {
		s.run(-1, j)
		return nil
	})
	return true
}

func (s *sender) run(worker int, j syncJob) {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	var cancel context.CancelFunc = func() {}
	if s.cfg.callTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.cfg.callTimeout)
	}
	res, err := j.call(ctx)
	cancel()

	if res.Kind == "" {
		res = j.result
	}
	res.Seq = j.result.Seq
	res.Err = err
	if err != nil {
		s.logger.WithFields(log.Fields{
			"kind":   res.Kind,
			"card":   res.CardID,
			"worker": worker,
			"error":  err.Error(),
		}).Warn("board.sync.failed")
	}

	select {
	case s.out <- res:
	case <-s.abandon:
		s.logger.WithFields(log.Fields{"kind": res.Kind, "card": res.CardID}).Warn("board.sync.result.dropped")
	}
}

// close stops accepting jobs and waits for in-flight calls. Results that
// cannot be delivered before ctx ends are dropped.
func (s *sender) close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = s.group.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		close(s.abandon)
		<-done
	}
	close(s.out)
	return err
}
