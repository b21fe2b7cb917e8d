package climate

import (
	"math"
	"testing"

	"github.com/talgya/climate-chain/internal/agents"
	"github.com/talgya/climate-chain/internal/entropy"
	"github.com/talgya/climate-chain/internal/geo"
)

const eps = 1e-9

func testRegistry() *geo.Registry {
	return geo.NewRegistry([]geo.Continent{"testland", "otherland"}, nil)
}

func testAgent(id agents.AgentID, typ string, c geo.Continent, vuln float64) *agents.Agent {
	return &agents.Agent{
		ID:        id,
		Name:      typ,
		Type:      typ,
		Continent: c,
		Climate:   &agents.ClimateProfile{Vulnerability: vuln},
	}
}

func newTestEngine(chronic, shocks []Rule) *Engine {
	return NewEngine(chronic, shocks, testRegistry(), entropy.NewStream(1))
}

func TestChronicAndAcuteCombine(t *testing.T) {
	chronic := []Rule{{Name: "drought", Productivity: 0.96, Mode: ModeProductivity}}
	shocks := []Rule{{Name: "flood", Productivity: 0.5, Mode: ModeProductivity, Probability: 1}}
	e := newTestEngine(chronic, shocks)
	a := testAgent(1, "farm", "testland", 1)

	events := e.Resolve(1, []*agents.Agent{a})
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	prod, over := e.Factors(a.ID)
	if math.Abs(prod-0.48) > eps {
		t.Fatalf("combined productivity factor = %v, want 0.96 x 0.5 = 0.48", prod)
	}
	if over != 1 {
		t.Fatalf("overhead factor = %v, want untouched 1", over)
	}
	if events[0].Productivity != prod {
		t.Fatalf("event records factor %v, engine reports %v", events[0].Productivity, prod)
	}
}

func TestChronicCompoundsEveryRound(t *testing.T) {
	chronic := []Rule{{Name: "heat", Productivity: 0.96, Mode: ModeProductivity}}
	e := newTestEngine(chronic, nil)
	a := testAgent(1, "farm", "testland", 1)

	e.Resolve(1, []*agents.Agent{a})
	e.Resolve(2, []*agents.Agent{a})

	prod, _ := e.Factors(a.ID)
	if math.Abs(prod-0.96*0.96) > eps {
		t.Fatalf("chronic factor after two rounds = %v, want %v", prod, 0.96*0.96)
	}
	if got := e.Phase(a.ID); got != PhaseChronic {
		t.Fatalf("phase = %v, want chronic", got)
	}
	// Chronic stress never decays.
	e.Decay()
	if prod2, _ := e.Factors(a.ID); prod2 != prod {
		t.Fatalf("chronic factor decayed from %v to %v", prod, prod2)
	}
}

func TestAcuteRecoveryDecay(t *testing.T) {
	shocks := []Rule{{Name: "storm", Productivity: 0.3, Mode: ModeProductivity, Probability: 1, Recovery: 0.25}}
	e := newTestEngine(nil, shocks)
	a := testAgent(1, "mill", "testland", 1)

	e.Resolve(1, []*agents.Agent{a})
	if got := e.Snapshot(a.ID).AcuteProductivity; math.Abs(got-0.3) > eps {
		t.Fatalf("acute factor = %v, want 0.3", got)
	}

	e.Decay()
	if got := e.Snapshot(a.ID).AcuteProductivity; math.Abs(got-0.475) > eps {
		t.Fatalf("after one recovery round = %v, want 0.475", got)
	}
	if got := e.Phase(a.ID); got != PhaseRecovering {
		t.Fatalf("phase = %v, want recovering", got)
	}

	e.Decay()
	if got := e.Snapshot(a.ID).AcuteProductivity; math.Abs(got-0.60625) > eps {
		t.Fatalf("after two recovery rounds = %v, want 0.60625", got)
	}
}

func TestAcuteResetsWithoutRecoveryRate(t *testing.T) {
	shocks := []Rule{{Name: "storm", Productivity: 0.5, Mode: ModeProductivity, Probability: 1}}
	e := newTestEngine(nil, shocks)
	a := testAgent(1, "mill", "testland", 1)

	e.Resolve(1, []*agents.Agent{a})
	e.Decay()
	if prod, _ := e.Factors(a.ID); prod != 1 {
		t.Fatalf("one-round shock still active after decay: %v", prod)
	}
	if got := e.Phase(a.ID); got != PhaseUnstressed {
		t.Fatalf("phase = %v, want unstressed", got)
	}
}

func TestShockDurationHolds(t *testing.T) {
	shocks := []Rule{{Name: "freeze", Productivity: 0.3, Mode: ModeProductivity, Probability: 1, Duration: 3}}
	e := newTestEngine(nil, shocks)
	a := testAgent(1, "mill", "testland", 1)

	e.Resolve(1, []*agents.Agent{a})
	if got := e.Phase(a.ID); got != PhaseAcute {
		t.Fatalf("phase = %v, want acute while held", got)
	}

	// The shock holds through two more decays, then resets.
	for i := 0; i < 2; i++ {
		e.Decay()
		if got := e.Snapshot(a.ID).AcuteProductivity; math.Abs(got-0.3) > eps {
			t.Fatalf("held factor = %v after decay %d, want 0.3", got, i+1)
		}
	}
	e.Decay()
	if got := e.Snapshot(a.ID).AcuteProductivity; got != 1 {
		t.Fatalf("factor = %v after hold expired, want 1", got)
	}
}

func TestVulnerabilityScalesDeviation(t *testing.T) {
	shocks := []Rule{
		{Name: "flood", Productivity: 0.5, Overhead: 1.3, Mode: ModeBoth, Probability: 1},
	}

	// Vulnerability 0.5 halves both deviations.
	e := newTestEngine(nil, shocks)
	a := testAgent(1, "mill", "testland", 0.5)
	e.Resolve(1, []*agents.Agent{a})
	prod, over := e.Factors(a.ID)
	if math.Abs(prod-0.75) > eps {
		t.Fatalf("dampened productivity = %v, want 0.75", prod)
	}
	if math.Abs(over-1.15) > eps {
		t.Fatalf("dampened overhead = %v, want 1.15", over)
	}

	// Vulnerability 2 doubles the deviation; the floor keeps it positive.
	e = newTestEngine(nil, shocks)
	b := testAgent(2, "mill", "testland", 2)
	e.Resolve(1, []*agents.Agent{b})
	prod, over = e.Factors(b.ID)
	if math.Abs(prod-0.01) > eps {
		t.Fatalf("amplified productivity = %v, want floor 0.01", prod)
	}
	if math.Abs(over-1.6) > eps {
		t.Fatalf("amplified overhead = %v, want 1.6", over)
	}
}

func TestSimultaneousShocksCompound(t *testing.T) {
	shocks := []Rule{
		{Name: "flood", Productivity: 0.5, Mode: ModeProductivity, Probability: 1},
		{Name: "fire", Productivity: 0.8, Mode: ModeProductivity, Probability: 1},
	}
	e := newTestEngine(nil, shocks)
	a := testAgent(1, "mill", "testland", 1)

	events := e.Resolve(1, []*agents.Agent{a})
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	prod, _ := e.Factors(a.ID)
	if math.Abs(prod-0.4) > eps {
		t.Fatalf("compounded factor = %v, want 0.5 x 0.8 = 0.4", prod)
	}
}

func TestScopeMatching(t *testing.T) {
	shocks := []Rule{{
		Name:         "regional",
		Types:        []string{"farm"},
		Continents:   []geo.Continent{"testland"},
		Productivity: 0.5,
		Mode:         ModeProductivity,
		Probability:  1,
	}}
	e := newTestEngine(nil, shocks)

	inScope := testAgent(1, "farm", "testland", 1)
	wrongType := testAgent(2, "mine", "testland", 1)
	wrongPlace := testAgent(3, "farm", "otherland", 1)
	noProfile := &agents.Agent{ID: 4, Type: "farm", Continent: "testland"}

	events := e.Resolve(1, []*agents.Agent{inScope, wrongType, wrongPlace, noProfile})
	if len(events) != 1 || events[0].Agent != 1 {
		t.Fatalf("events = %+v, want exactly agent 1 hit", events)
	}
	for _, id := range []agents.AgentID{2, 3, 4} {
		if prod, over := e.Factors(id); prod != 1 || over != 1 {
			t.Fatalf("out-of-scope agent %d stressed: %v %v", id, prod, over)
		}
	}
}

func TestScopeAllKeyword(t *testing.T) {
	shocks := []Rule{{
		Name:         "global",
		Types:        []string{"all"},
		Continents:   []geo.Continent{"all"},
		Productivity: 0.9,
		Mode:         ModeProductivity,
		Probability:  1,
	}}
	e := newTestEngine(nil, shocks)
	pop := []*agents.Agent{
		testAgent(1, "farm", "testland", 1),
		testAgent(2, "mine", "otherland", 1),
	}
	if events := e.Resolve(1, pop); len(events) != 2 {
		t.Fatalf("got %d events, want every profiled agent hit", len(events))
	}
}

func TestUnknownScopeNeverFatal(t *testing.T) {
	chronic := []Rule{{Name: "ghost", Types: []string{"unicorn_ranch"}, Productivity: 0.5, Mode: ModeProductivity}}
	shocks := []Rule{{Name: "myth", Continents: []geo.Continent{"atlantis"}, Productivity: 0.5, Mode: ModeProductivity, Probability: 1}}
	e := newTestEngine(chronic, shocks)
	a := testAgent(1, "farm", "testland", 1)

	if events := e.Resolve(1, []*agents.Agent{a}); len(events) != 0 {
		t.Fatalf("misconfigured scopes produced events: %+v", events)
	}
	if prod, over := e.Factors(a.ID); prod != 1 || over != 1 {
		t.Fatalf("misconfigured scopes stressed the agent: %v %v", prod, over)
	}
}

func TestInject(t *testing.T) {
	shocks := []Rule{{Name: "dormant", Productivity: 0.5, Mode: ModeProductivity, Probability: 0}}
	e := newTestEngine(nil, shocks)
	a := testAgent(1, "mill", "testland", 1)

	// Probability zero: never fires on its own.
	if events := e.Resolve(1, []*agents.Agent{a}); len(events) != 0 {
		t.Fatalf("zero-probability shock fired: %+v", events)
	}

	if err := e.Inject("no_such_rule"); err == nil {
		t.Fatalf("injecting an unknown rule succeeded")
	}
	if err := e.Inject("dormant"); err != nil {
		t.Fatalf("injecting a known rule failed: %v", err)
	}

	events := e.Resolve(2, []*agents.Agent{a})
	if len(events) != 1 || !events[0].Injected {
		t.Fatalf("events = %+v, want one injected event", events)
	}
	// The queue is consumed: the next round is quiet again.
	if events := e.Resolve(3, []*agents.Agent{a}); len(events) != 0 {
		t.Fatalf("injection leaked into a later round: %+v", events)
	}
}

func TestResolveDeterministic(t *testing.T) {
	shocks := []Rule{{Name: "storm", Productivity: 0.7, Mode: ModeProductivity, Probability: 0.4}}
	pop := func() []*agents.Agent {
		return []*agents.Agent{
			testAgent(1, "farm", "testland", 1),
			testAgent(2, "farm", "otherland", 1),
			testAgent(3, "mine", "testland", 1),
		}
	}

	run := func() []Event {
		e := NewEngine(nil, shocks, testRegistry(), entropy.NewStream(77))
		var all []Event
		p := pop()
		for round := 1; round <= 20; round++ {
			all = append(all, e.Resolve(round, p)...)
			e.Decay()
		}
		return all
	}

	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("event counts differ across identical seeds: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("event %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
	if len(a) == 0 {
		t.Fatalf("no shocks fired in 20 rounds at p=0.4, draws look broken")
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range []StressMode{ModeProductivity, ModeOverhead, ModeBoth} {
		parsed, ok := ParseMode(m.String())
		if !ok || parsed != m {
			t.Fatalf("round-trip of %v failed", m)
		}
	}
	if _, ok := ParseMode("sideways"); ok {
		t.Fatalf("unknown mode parsed")
	}
}
