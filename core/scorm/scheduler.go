package scorm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"

	"github.com/qahhor/FREE-LMS-sub001/core"
)

// Committer commits the buffered writes of a session.
type Committer interface {
	Commit(ctx context.Context, sessionID string) (CommitReport, error)
}

var _ Committer = (*Gateway)(nil)

type commitTask struct {
	cancel  context.CancelFunc
	done    chan struct{}
	failing atomic.Bool
}

// Scheduler runs one periodic commit task per watched session.
// A failed commit is retried on the task's next tick, the tick being pushed back exponentially.
type Scheduler struct {
	committer  Committer
	logger     core.Logger
	interval   time.Duration
	maxBackoff time.Duration
	maxRetries int

	mu    sync.Mutex
	tasks map[string]*commitTask
}

func NewScheduler(committer Committer, logger core.Logger, conf core.ScormConfig) *Scheduler {
	def := core.DefaultScormConfig()
	if conf.AutoCommitInterval <= 0 {
		conf.AutoCommitInterval = def.AutoCommitInterval
	}
	if conf.CommitMaxBackoff < conf.AutoCommitInterval {
		conf.CommitMaxBackoff = conf.AutoCommitInterval
	}
	if conf.CommitMaxRetries <= 0 {
		conf.CommitMaxRetries = def.CommitMaxRetries
	}
	return &Scheduler{
		committer:  committer,
		logger:     logger,
		interval:   conf.AutoCommitInterval,
		maxBackoff: conf.CommitMaxBackoff,
		maxRetries: conf.CommitMaxRetries,
		tasks:      make(map[string]*commitTask),
	}
}

// Watch starts the auto-commit task of a session. Watching a watched session is a no-op.
func (s *Scheduler) Watch(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[sessionID]; ok {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	task := &commitTask{cancel: cancel, done: make(chan struct{})}
	s.tasks[sessionID] = task
	go s.run(ctx, sessionID, task)
}

// Watching reports whether a session has a running task.
func (s *Scheduler) Watching(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[sessionID]
	return ok
}

// SaveFailing reports whether the last commits of a session all failed ("progress may not be saved").
func (s *Scheduler) SaveFailing(sessionID string) bool {
	s.mu.Lock()
	task, ok := s.tasks[sessionID]
	s.mu.Unlock()
	return ok && task.failing.Load()
}

func (s *Scheduler) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.interval
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = s.maxBackoff
	b.Reset()
	return b
}

func (s *Scheduler) run(ctx context.Context, sessionID string, task *commitTask) {
	defer close(task.done)

	b := s.newBackOff()
	var failures int
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		_, err := s.committer.Commit(ctx, sessionID)
		delay := s.interval
		switch CodeOf(err) {
		case "":
			if failures > 0 {
				s.logger.Info(fmt.Sprintf("auto-commit of session %s recovered after %d failures", sessionID, failures))
			}
			failures = 0
			task.failing.Store(false)
			b.Reset()
		case CodeSessionNotFound, CodeSessionAlreadyTerminated:
			s.remove(sessionID, task)
			return
		default:
			if ctx.Err() != nil {
				return
			}
			failures++
			delay = b.NextBackOff()
			if failures >= s.maxRetries {
				if !task.failing.Swap(true) {
					s.logger.Error(
						fmt.Sprintf("auto-commit of session %s failed %d times: progress may not be saved", sessionID, failures),
						err,
					)
				}
			} else {
				s.logger.Warn(fmt.Sprintf("auto-commit of session %s failed, retrying in %v", sessionID, delay), err)
			}
		}
		timer.Reset(delay)
	}
}

func (s *Scheduler) remove(sessionID string, task *commitTask) {
	s.mu.Lock()
	if s.tasks[sessionID] == task {
		delete(s.tasks, sessionID)
	}
	s.mu.Unlock()
}

// Close stops the task of a session and performs one last commit.
func (s *Scheduler) Close(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	task, ok := s.tasks[sessionID]
	delete(s.tasks, sessionID)
	s.mu.Unlock()

	if ok {
		task.cancel()
		select {
		case <-task.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	_, err := s.committer.Commit(ctx, sessionID)
	switch CodeOf(err) {
	case "", CodeSessionNotFound, CodeSessionAlreadyTerminated:
		return nil
	}
	return err
}

// Shutdown closes every task.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := s.Close(ctx, id); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "closing auto-commit of session %s", id)
		}
	}
	return firstErr
}
