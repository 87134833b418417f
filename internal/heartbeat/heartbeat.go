// Package heartbeat posts a periodic "still training" summary so long runs
// stay visible even between metric flushes. The summary occupies a single
// live message that is edited in place, like every other progress line.
package heartbeat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"trainbot/internal/reporter"
	"trainbot/internal/transport"
	"trainbot/pkg/chatfmt"
	logx "trainbot/pkg/logx"
)

// Config controls the heartbeat schedule.
type Config struct {
	Enabled  bool
	Schedule string // cron spec, e.g. "*/5 * * * *"
	Timezone string // IANA name; empty means local time
}

type Service struct {
	mu sync.Mutex

	cfg  Config
	n    reporter.Notifier
	snap func() reporter.Snapshot
	log  logx.Logger

	c      *cron.Cron
	lastID string
}

func New(cfg Config, n reporter.Notifier, snap func() reporter.Snapshot, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, n: n, snap: snap, log: log}
}

// Start registers the cron entry and starts the scheduler. Idempotent.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.Enabled || s.cfg.Schedule == "" || s.c != nil {
		return nil
	}

	loc := time.Local
	if s.cfg.Timezone != "" {
		l, err := time.LoadLocation(s.cfg.Timezone)
		if err != nil {
			return fmt.Errorf("heartbeat timezone: %w", err)
		}
		loc = l
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithLocation(loc))
	if _, err := c.AddFunc(s.cfg.Schedule, s.post); err != nil {
		return fmt.Errorf("heartbeat schedule %q: %w", s.cfg.Schedule, err)
	}
	c.Start()
	s.c = c
	s.log.Info("heartbeat started", logx.String("schedule", s.cfg.Schedule))
	return nil
}

// Stop halts the scheduler, waiting for an in-flight post up to ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	done := c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Service) post() {
	snap := s.snap()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.mu.Lock()
	lastID := s.lastID
	s.mu.Unlock()

	if !snap.Active {
		// Run is over; retire the heartbeat message.
		if lastID != "" {
			s.n.DeleteAfterDelay(ctx, lastID, 0)
			s.mu.Lock()
			s.lastID = ""
			s.mu.Unlock()
		}
		return
	}

	text := fmt.Sprintf("Still training %s: step %d / %d (epoch %.1f), elapsed %s",
		snap.RunName, snap.GlobalStep, snap.MaxSteps, snap.Epoch, chatfmt.Took(time.Since(snap.Started)))

	id, err := s.n.UpdateOrSend(ctx, lastID, transport.Patch{Text: &text})
	if err != nil {
		s.log.Warn("heartbeat post failed", logx.Err(err))
		return
	}
	s.mu.Lock()
	s.lastID = id
	s.mu.Unlock()
}
