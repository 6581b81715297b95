package staking

import (
	"context"
	"sync"
	"time"

	"github.com/ministake/ministake/internal/logging"
	"github.com/ministake/ministake/internal/util"
	"github.com/ministake/ministake/pkg/types"
)

// SessionConfig holds the settings shared by every component of a session.
type SessionConfig struct {
	RefreshInterval   time.Duration
	ReadinessInterval time.Duration
	ConfirmTimeout    time.Duration
	ReadsPerSecond    float64
	Decimals          uint8
	Metrics           Metrics
	Now               func() time.Time
}

// Session wires the read-model, orchestrator, readiness scheduler and debug
// observer for the ledger's connected account.
type Session struct {
	Reader       *Reader
	Orchestrator *Orchestrator
	Scheduler    *Scheduler
	Observer     *DebugObserver

	cfg    SessionConfig
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSession builds a session for ledger.Account()
func NewSession(ledger Ledger, cfg SessionConfig) *Session {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 15 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	reader := NewReader(ledger, ledger.Account(), ReaderConfig{
		ReadsPerSecond: cfg.ReadsPerSecond,
		Decimals:       cfg.Decimals,
		Metrics:        cfg.Metrics,
		Now:            cfg.Now,
	})
	return &Session{
		Reader: reader,
		Orchestrator: NewOrchestrator(ledger, reader, OrchestratorConfig{
			ConfirmTimeout: cfg.ConfirmTimeout,
			Decimals:       cfg.Decimals,
			Metrics:        cfg.Metrics,
			Now:            cfg.Now,
		}),
		Scheduler: NewScheduler(reader, SchedulerConfig{
			Interval: cfg.ReadinessInterval,
			Decimals: cfg.Decimals,
			Metrics:  cfg.Metrics,
			Now:      cfg.Now,
		}),
		Observer: NewDebugObserver(ledger.Account(), reader, cfg.Decimals, cfg.Metrics),
		cfg:      cfg,
	}
}

// Start launches polling, the readiness scheduler and, when events is not
// nil, the debug observer. Stop waits for all of them.
func (s *Session) Start(ctx context.Context, events <-chan *types.WithdrawDebugEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	util.SafeGoGroup(&s.wg, "stake-reader", func() {
		s.Reader.Run(ctx, s.cfg.RefreshInterval)
	})
	util.SafeGoGroup(&s.wg, "readiness-scheduler", func() {
		s.Scheduler.Run(ctx)
	})
	if events != nil {
		util.SafeGoGroup(&s.wg, "debug-observer", func() {
			s.Observer.Run(ctx, events)
		})
	}
	logging.Info("staking session started",
		logging.Address(s.Reader.Owner().Hex()),
		"refresh_interval", s.cfg.RefreshInterval.String())
}

// Stop cancels background work and waits for it to exit.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
}
