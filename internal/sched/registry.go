package sched

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/example/boskobot/internal/locks"
	"github.com/example/boskobot/internal/logger"
	"github.com/example/boskobot/internal/matcher"
)

// Sender delivers digest messages; in production it is the Telegram adapter.
type Sender interface {
	SendDigest(ctx context.Context, chatID int64, text string) error
}

// Store persists schedules across restarts.
type Store interface {
	All(ctx context.Context) ([]Schedule, error)
	Save(ctx context.Context, s Schedule) error
	Delete(ctx context.Context, userID int64) error
}

// Metrics receives digest outcome notifications; nil disables reporting.
type Metrics interface {
	DigestSent()
	DigestEmpty()
	DigestFailed()
}

type job struct {
	schedule Schedule
	cancel   context.CancelFunc
	done     chan struct{}
}

// Registry owns one live timer per user. Replacing a schedule cancels the old
// timer before installing the new one; a fire racing a replacement re-checks
// that its job is still the live one before running.
type Registry struct {
	store   Store
	source  matcher.Source
	sender  Sender
	locks   *locks.KeyedMutex
	metrics Metrics
	log     *slog.Logger
	now     func() time.Time

	mu   sync.Mutex
	jobs map[int64]*job
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithMetrics wires a digest outcome reporter.
func WithMetrics(m Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry builds an empty registry.
func NewRegistry(store Store, source matcher.Source, sender Sender, userLocks *locks.KeyedMutex, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:  store,
		source: source,
		sender: sender,
		locks:  userLocks,
		log:    logger.Component("sched"),
		now:    time.Now,
		jobs:   make(map[int64]*job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Restore reinstalls timers for all persisted schedules. An empty store is not
// an error: everyone simply starts without a schedule.
func (r *Registry) Restore(ctx context.Context) error {
	schedules, err := r.store.All(ctx)
	if err != nil {
		return fmt.Errorf("restore schedules: %w", err)
	}
	for _, s := range schedules {
		if err := s.Validate(); err != nil {
			r.log.Warn("skipping invalid persisted schedule",
				slog.String("event", "sched.restore"),
				slog.Int64("user_id", s.UserID),
				slog.String("err", err.Error()),
			)
			continue
		}
		r.startJob(s)
	}
	r.log.Info("schedules restored",
		slog.String("event", "sched.restore"),
		slog.Int("count", len(schedules)),
	)
	return nil
}

// Install persists the schedule and swaps it in as the user's live timer,
// cancelling any previous one.
func (r *Registry) Install(ctx context.Context, s Schedule) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := r.store.Save(ctx, s); err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	r.startJob(s)
	r.log.Info("schedule installed",
		slog.String("event", "sched.install"),
		slog.Int64("user_id", s.UserID),
		slog.String("time", s.TimeOfDay()),
		slog.String("days", strings.Join(s.DayNames(), ",")),
	)
	return nil
}

// Cancel stops and removes the user's schedule, reporting whether one existed.
func (r *Registry) Cancel(ctx context.Context, userID int64) (bool, error) {
	r.mu.Lock()
	j, ok := r.jobs[userID]
	if ok {
		delete(r.jobs, userID)
	}
	r.mu.Unlock()

	if ok {
		j.cancel()
	}
	if err := r.store.Delete(ctx, userID); err != nil {
		return ok, fmt.Errorf("delete schedule: %w", err)
	}
	return ok, nil
}

// Current returns the user's live schedule, if any.
func (r *Registry) Current(userID int64) (Schedule, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[userID]; ok {
		return j.schedule, true
	}
	return Schedule{}, false
}

// Stop cancels all timers and waits for their loops to exit.
func (r *Registry) Stop() {
	r.mu.Lock()
	jobs := make([]*job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.jobs = make(map[int64]*job)
	r.mu.Unlock()

	for _, j := range jobs {
		j.cancel()
	}
	for _, j := range jobs {
		<-j.done
	}
}

func (r *Registry) startJob(s Schedule) {
	ctx, cancel := context.WithCancel(context.Background())
	j := &job{schedule: s, cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	if prev, ok := r.jobs[s.UserID]; ok {
		prev.cancel()
	}
	r.jobs[s.UserID] = j
	r.mu.Unlock()

	go r.runLoop(ctx, j)
}

func (r *Registry) runLoop(ctx context.Context, j *job) {
	defer close(j.done)
	for {
		next, err := NextFire(r.now(), j.schedule)
		if err != nil {
			r.log.Error("timer computation failed",
				slog.String("event", "sched.next"),
				slog.Int64("user_id", j.schedule.UserID),
				slog.String("err", err.Error()),
			)
			return
		}

		timer := time.NewTimer(next.Sub(r.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.fire(ctx, j)
		}
	}
}

// isLive reports whether j is still the user's installed job.
func (r *Registry) isLive(j *job) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[j.schedule.UserID] == j
}

// fire runs one digest attempt for j, unless j has been superseded.
func (r *Registry) fire(ctx context.Context, j *job) {
	if !r.isLive(j) {
		return
	}

	unlock := r.locks.Lock(j.schedule.UserID)
	defer unlock()

	// The user lock is shared with the dialogue engine, which holds it while
	// finalizing a replacement schedule. A fire that blocked on it must
	// re-check liveness once it gets through, or it would run with the
	// superseded snapshot.
	if !r.isLive(j) || ctx.Err() != nil {
		return
	}

	s := j.schedule
	ctx = logger.WithRID(ctx, logger.NewRID())
	ctx = logger.WithUpdateMeta(ctx, s.UserID, s.ChatID)

	matches := matcher.Find(ctx, r.source, s.Flavors, s.Shops)
	if len(matches) == 0 {
		if r.metrics != nil {
			r.metrics.DigestEmpty()
		}
		r.log.Info("no matches, digest skipped",
			slog.String("event", "sched.fire"),
			slog.String("status", "skip"),
		)
		return
	}

	if err := r.sender.SendDigest(ctx, s.ChatID, FormatDigest(matches)); err != nil {
		if r.metrics != nil {
			r.metrics.DigestFailed()
		}
		r.log.Error("digest send failed",
			slog.String("event", "sched.fire"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return
	}

	if r.metrics != nil {
		r.metrics.DigestSent()
	}
	r.log.Info("digest sent",
		slog.String("event", "sched.fire"),
		slog.String("status", "ok"),
		slog.Int("count", len(matches)),
	)
}

// FormatDigest renders the digest message body for a non-empty match list.
func FormatDigest(matches []matcher.Match) string {
	var b strings.Builder
	b.WriteString("📅 *Daily Favorites Update*\n")
	for _, m := range matches {
		b.WriteString(fmt.Sprintf("\n🍦 %s at *%s*", m.Product, m.Shop.Name))
	}
	return b.String()
}
