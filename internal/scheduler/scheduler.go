// Package scheduler drives the background tick loop that isn't tied to
// any single agent's ProcessAction call: world-boss spawn checks, the
// Abyss gate window, location-resource regeneration, prediction-market
// expiry, and the periodic persistence snapshot (§4.11).
//
// This adapts the teacher's Engine (internal/engine/tick.go): same
// Tick/Speed/Interval/Running fields and ticker-driven Run/Stop loop, wired
// to Reef's world-state callbacks instead of settlement/population
// simulation. Of the teacher's callback layering, Run drives only OnTick;
// the OnHour field is never called.
package scheduler

import (
	"log/slog"
	"time"

	"github.com/talgya/reef-engine/internal/action"
	"github.com/talgya/reef-engine/internal/persistence"
	"github.com/talgya/reef-engine/internal/state"
)

// Scheduler mirrors the teacher's Engine loop shape, layered on top of
// the Router's subsystem singletons and the World it advances.
type Scheduler struct {
	Tick     uint64
	Speed    float64
	Interval time.Duration
	Running  bool

	OnTick func(tick uint64)
	OnHour func(tick uint64)

	stop chan struct{}
}

// TicksPerSimHour mirrors the teacher's layering constant. Nothing reads
// it; the persistence snapshot cadence is New's snapshotEvery argument.
const TicksPerSimHour = 1

// New builds a scheduler wired to r's subsystems, w, and db. snapshotEvery
// is how many scheduler ticks elapse between persistence saves (§4.11:
// "every 30 seconds").
func New(r *action.Router, w *state.World, db *persistence.DB, interval time.Duration, snapshotEvery uint64) *Scheduler {
	s := &Scheduler{Speed: 1.0, Interval: interval, stop: make(chan struct{})}

	subsystems := persistence.Subsystems{
		Parties:     r.Parties,
		Engagements: r.Engagements,
		Boss:        r.Boss,
		Abyss:       r.Abyss,
		Duels:       r.Duels,
		Tournaments: r.Tournaments,
		Board:       r.Board,
		Quests:      r.Quests,
		Listings:    r.Listings,
		Predictions: r.Predictions,
		Tutorial:    r.Tutorial,
	}

	s.OnTick = func(tick uint64) {
		aliveInWorld := 0
		for _, a := range w.AllAgents() {
			if a.IsAlive {
				aliveInWorld++
			}
		}
		if announcement := r.Boss.TickCheck(tick, aliveInWorld); announcement != "" {
			w.LogEvent("boss_spawn", announcement, "leviathans_lair")
			slog.Info("world boss event", "tick", tick, "msg", announcement)
		}
		if closed, narrative := r.Abyss.CheckWindow(tick); closed {
			w.LogEvent("abyss_window_closed", narrative, "the_abyss")
			slog.Info("abyss gate event", "tick", tick, "msg", narrative)
		}
		for _, narrative := range r.Tournaments.CheckDeadlines(tick, w) {
			w.LogEvent("tournament_deadline", narrative, "")
			slog.Info("tournament deadline event", "tick", tick, "msg", narrative)
		}
		w.RegenerateLocationResources()
		for _, m := range r.Predictions.ExpireOld(tick) {
			slog.Info("prediction market expired", "marketId", m.ID, "question", m.Question)
		}

		if snapshotEvery > 0 && tick%snapshotEvery == 0 {
			if err := persistence.SaveAll(db, w, subsystems); err != nil {
				slog.Error("periodic snapshot failed", "err", err)
			}
		}
	}

	return s
}

// Run starts the scheduler loop. Blocks until Stop is called.
func (s *Scheduler) Run() {
	s.Running = true
	slog.Info("scheduler started", "interval", s.Interval)
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for s.Running {
		select {
		case <-s.stop:
			s.Running = false
		case <-ticker.C:
			s.Tick++
			if s.OnTick != nil {
				s.OnTick(s.Tick)
			}
		}
	}
	slog.Info("scheduler stopped", "tick", s.Tick)
}

// Stop halts the scheduler loop.
func (s *Scheduler) Stop() {
	select {
	case s.stop <- struct{}{}:
	default:
		s.Running = false
	}
}
