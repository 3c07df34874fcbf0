package gitsync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultInterval = 5 * time.Minute

// Result is the outcome of one sync attempt, also served as JSON by the
// manual refresh endpoint.
type Result struct {
	Success   bool      `json:"success"`
	Throttled bool      `json:"throttled,omitempty"`
	Message   string    `json:"message"`
	Output    string    `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Syncer pulls the posts repository at most once per interval.
// A nil *Syncer is valid and never syncs.
type Syncer struct {
	repo     Repo
	stamps   StampStore
	now      func() time.Time
	interval time.Duration

	mu       sync.Mutex
	inFlight atomic.Bool
}

func NewSyncer(repo Repo, stamps StampStore, interval time.Duration) *Syncer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Syncer{
		repo:     repo,
		stamps:   stamps,
		now:      time.Now,
		interval: interval,
	}
}

// SetClock replaces the time source, mostly for tests.
func (s *Syncer) SetClock(now func() time.Time) {
	s.now = now
}

// ShouldSync reports whether no sync has happened yet or the last one is
// older than minInterval.
func (s *Syncer) ShouldSync(minInterval time.Duration) bool {
	last, ok, err := s.stamps.Last()
	if err != nil {
		log.Warn().Err(err).Msg("read sync stamp")
		return true
	}
	if !ok {
		return true
	}
	return s.now().Sub(last) > minInterval
}

func (s *Syncer) Sync(ctx context.Context, force bool) Result {
	if s == nil {
		return Result{Success: false, Message: "sync disabled", Error: ErrNoRemote.Error()}
	}

	if !force && !s.ShouldSync(s.interval) {
		return Result{Success: true, Throttled: true, Message: "skipped (throttled)", Timestamp: s.now()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Init(ctx); err != nil {
		log.Error().Err(err).Msg("init posts repository")
		return Result{Success: false, Message: "init failed", Error: err.Error(), Timestamp: s.now()}
	}

	out, err := s.repo.Pull(ctx)
	if err != nil {
		log.Error().Err(err).Msg("pull posts repository")
		return Result{Success: false, Message: "pull failed", Error: err.Error(), Timestamp: s.now()}
	}

	ts := s.now()
	if err = s.stamps.Set(ts); err != nil {
		log.Warn().Err(err).Msg("write sync stamp")
	}

	log.Info().Str("output", out).Msg("posts synced")

	return Result{Success: true, Message: "synced", Output: out, Timestamp: ts}
}

// Kick starts a background sync when one is due. It returns at once and
// never starts a second sync while one is running.
func (s *Syncer) Kick() {
	if s == nil || !s.ShouldSync(s.interval) {
		return
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer s.inFlight.Store(false)
		s.Sync(context.Background(), false)
	}()
}
