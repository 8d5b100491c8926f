// Package membership runs the liveness and recovery control plane: a
// periodic sweep that probes every replica, fails the primary over when it
// dies, and replays the journal to replicas returning from failure before
// they rejoin the rotation.
package membership

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"msgproxy/backend"
	"msgproxy/journal"
	"msgproxy/metrics"
)

// DefaultInterval is the heartbeat period between sweeps.
const DefaultInterval = 5 * time.Second

// Manager owns the heartbeat job. Sweeps run in singleton mode: a slow
// sweep (replay against a large journal) never overlaps the next tick.
type Manager struct {
	pool     *backend.Pool
	journal  *journal.Journal
	metrics  *metrics.Metrics
	log      *zap.Logger
	interval time.Duration
	sched    gocron.Scheduler
}

// New creates a manager sweeping every interval; interval <= 0 selects
// DefaultInterval.
func New(pool *backend.Pool, jnl *journal.Journal, m *metrics.Metrics, log *zap.Logger, interval time.Duration) (*Manager, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Manager{
		pool:     pool,
		journal:  jnl,
		metrics:  m,
		log:      log,
		interval: interval,
		sched:    sched,
	}, nil
}

// Start schedules the periodic sweep and launches the scheduler.
func (m *Manager) Start(ctx context.Context) error {
	_, err := m.sched.NewJob(
		gocron.DurationJob(m.interval),
		gocron.NewTask(func() { m.Sweep(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}
	m.sched.Start()
	return nil
}

// Stop shuts the scheduler down, waiting for a running sweep to finish.
func (m *Manager) Stop() error {
	return m.sched.Shutdown()
}

// Sweep probes every replica in the current snapshot once and reconciles
// liveness, primary placement, and sync state:
//
//   - probe failed: mark dead; if the replica held the primary index,
//     advance the primary to the next position.
//   - probe ok, already synced: mark alive.
//   - probe ok, fresh, holding the primary index or alone in the pool:
//     nothing to catch up from — it is the reference. Mark synced and alive.
//   - probe ok, fresh otherwise: replay the full journal. Success marks
//     synced and alive; failure leaves it dead and fresh for the next tick.
func (m *Manager) Sweep(ctx context.Context) {
	snap := m.pool.Snapshot()
	n := len(snap)

	for i, r := range snap {
		if !r.Probe() {
			m.metrics.ProbesTotal.WithLabelValues(metrics.ResultFail).Inc()
			r.MarkDead()
			if m.pool.Primary() == i {
				m.pool.AdvancePrimaryFrom(i, n)
				m.log.Info("primary failed over",
					zap.String("backend", r.Addr()),
					zap.Int("new_primary", m.pool.Primary()),
				)
			}
			continue
		}
		m.metrics.ProbesTotal.WithLabelValues(metrics.ResultOK).Inc()

		switch {
		case r.Synced():
			r.MarkAlive()
		case i == m.pool.Primary() || n == 1:
			r.MarkSynced()
			r.MarkAlive()
		default:
			entries := m.journal.TailFrom(0)
			if err := r.Replay(ctx, entries); err != nil {
				r.MarkDead()
				m.metrics.ReplaysTotal.WithLabelValues(metrics.ResultFail).Inc()
				m.log.Warn("journal replay failed, retrying next sweep",
					zap.String("backend", r.Addr()),
					zap.Int("entries", len(entries)),
					zap.Error(err),
				)
				continue
			}
			m.metrics.ReplaysTotal.WithLabelValues(metrics.ResultOK).Inc()
			r.MarkSynced()
			r.MarkAlive()
			m.log.Info("replica caught up and rejoined",
				zap.String("backend", r.Addr()),
				zap.Int("entries", len(entries)),
			)
		}
	}

	m.metrics.JournalEntries.Set(float64(m.journal.Len()))
}
