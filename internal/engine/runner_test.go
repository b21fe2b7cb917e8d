package engine

import "testing"

func TestRunnerRunsConfiguredRounds(t *testing.T) {
	sim := NewSimulation(testScenario(31, 40))
	var seen []int
	r := NewRunner(sim, 3, 0)
	r.OnRound = func(rec RoundRecord) {
		seen = append(seen, rec.Round)
	}

	r.Run()

	if sim.CurrentRound() != 3 {
		t.Fatalf("ran %d rounds, want 3", sim.CurrentRound())
	}
	if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
		t.Fatalf("callback rounds = %v, want [1 2 3]", seen)
	}
	if r.Running() {
		t.Fatalf("runner still marked running after Run returned")
	}
}

func TestRunnerStopFromCallback(t *testing.T) {
	sim := NewSimulation(testScenario(33, 40))
	r := NewRunner(sim, 0, 0) // unbounded until stopped
	r.OnRound = func(rec RoundRecord) {
		if rec.Round >= 2 {
			r.Stop()
		}
	}

	r.Run()

	if sim.CurrentRound() != 2 {
		t.Fatalf("stopped after %d rounds, want 2", sim.CurrentRound())
	}
}

func TestRunnerSetSpeedClamps(t *testing.T) {
	r := NewRunner(nil, 0, 0)
	if r.Speed() != 1.0 {
		t.Fatalf("default speed = %v, want 1.0", r.Speed())
	}
	r.SetSpeed(2.5)
	if r.Speed() != 2.5 {
		t.Fatalf("speed = %v, want 2.5", r.Speed())
	}
	r.SetSpeed(-1)
	if r.Speed() != 0 {
		t.Fatalf("negative speed not clamped: %v", r.Speed())
	}
}
