// Round-paced simulation loop.
package engine

import (
	"log/slog"
	"sync"
	"time"
)

// Runner drives a Simulation through its configured rounds with optional
// wall-clock pacing. SetSpeed and Stop may be called from other
// goroutines; the admin API does both.
type Runner struct {
	Sim      *Simulation
	Rounds   int           // total rounds to run, 0 = until stopped
	Interval time.Duration // base delay between rounds, 0 = flat out

	// OnRound runs after every completed round, before the pacing sleep.
	// Persistence, export, and the websocket broadcast hang off it.
	OnRound func(rec RoundRecord)

	mu      sync.Mutex
	speed   float64
	running bool
}

// NewRunner creates a runner at speed 1.0.
func NewRunner(sim *Simulation, rounds int, interval time.Duration) *Runner {
	return &Runner{Sim: sim, Rounds: rounds, Interval: interval, speed: 1.0}
}

// Run executes rounds until the budget is spent or Stop is called. Blocks.
func (r *Runner) Run() {
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()

	slog.Info("simulation started", "rounds", r.Rounds, "interval", r.Interval)

	for {
		r.mu.Lock()
		running, speed := r.running, r.speed
		r.mu.Unlock()

		if !running {
			break
		}
		if r.Rounds > 0 && r.Sim.CurrentRound() >= r.Rounds {
			break
		}
		if speed <= 0 {
			// Paused. Sleep briefly and check again.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()
		rec := r.Sim.RunRound()
		if r.OnRound != nil {
			r.OnRound(rec)
		}

		if r.Interval > 0 {
			elapsed := time.Since(start)
			target := time.Duration(float64(r.Interval) / speed)
			if elapsed < target {
				time.Sleep(target - elapsed)
			}
		}
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	slog.Info("simulation stopped", "round", r.Sim.CurrentRound())
}

// Stop halts the loop after the current round completes.
func (r *Runner) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

// SetSpeed adjusts pacing: 1.0 = the configured interval, 0 = paused.
func (r *Runner) SetSpeed(mult float64) {
	if mult < 0 {
		mult = 0
	}
	r.mu.Lock()
	r.speed = mult
	r.mu.Unlock()
	slog.Info("pacing changed", "speed", mult)
}

// Speed returns the current pacing multiplier.
func (r *Runner) Speed() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.speed
}

// Running reports whether the loop is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
