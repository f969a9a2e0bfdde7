package scorm

import (
	"context"
	"fmt"
	"time"

	"github.com/qahhor/FREE-LMS-sub001/core"
)

// Sweeper periodically force-terminates idle sessions and reconciles failed terminations.
type Sweeper struct {
	m        *Manager
	logger   core.Logger
	interval time.Duration
}

func NewSweeper(m *Manager, logger core.Logger, conf core.ScormConfig) *Sweeper {
	if conf.SweepInterval <= 0 {
		conf.SweepInterval = core.DefaultScormConfig().SweepInterval
	}
	return &Sweeper{m: m, logger: logger, interval: conf.SweepInterval}
}

// Start runs the sweeper until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info(fmt.Sprintf("session sweeper started (interval: %v)", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session sweeper stopping...")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass.
func (s *Sweeper) Sweep(ctx context.Context) (swept, reconciled int) {
	swept, err := s.m.SweepIdle(ctx)
	if err != nil {
		s.logger.Error(fmt.Sprintf("sweeping idle sessions: %v", err), err)
	}
	reconciled, err = s.m.Reconcile(ctx)
	if err != nil {
		s.logger.Error(fmt.Sprintf("reconciling terminated sessions: %v", err), err)
	}
	if swept > 0 || reconciled > 0 {
		s.logger.Info(fmt.Sprintf("session sweep: %d idle sessions terminated, %d terminations reconciled", swept, reconciled))
	}
	return swept, reconciled
}
