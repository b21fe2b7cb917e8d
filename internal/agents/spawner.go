// Agent spawning — creates the heterogeneous population from scenario type
// specs: continent assignment, behavioral trait draws, efficiency draws,
// vulnerability draws.
// See design doc Sections 4.1 and 4.2.
package agents

import (
	"fmt"

	"github.com/talgya/climate-chain/internal/economy"
	"github.com/talgya/climate-chain/internal/entropy"
	"github.com/talgya/climate-chain/internal/geo"
)

// Trait and efficiency draw parameters. Multipliers center on 1 so a
// population's mean behavior matches its type spec.
const (
	traitStddev  = 0.3
	traitMin     = 0.3
	traitMax     = 2.5
	efficStddev  = 0.2
	efficMin     = 0.5
	efficMax     = 2.0
	vulnJitterLo = 0.8
	vulnJitterHi = 1.2
	vulnMin      = 0.1
	vulnMax      = 3.0
)

// TypeSpec is one agent type from the scenario: how many to spawn and the
// template every instance starts from.
type TypeSpec struct {
	Name              string
	Role              Role
	Count             int
	InitialMoney      float64
	InitialInventory  map[economy.Good]float64
	Continents        []geo.Continent // empty or "all" means the whole registry
	BaseVulnerability float64         // 0 disables climate eligibility
	Traits            Traits          // zero fields default to 1
	Production        *ProductionSpec
	Consumption       *ConsumptionSpec
	Labor             *LaborSpec
}

// Spawner creates agents for the simulation. Draws come from a dedicated
// entropy stream so population generation does not disturb shock draws.
type Spawner struct {
	rng      *entropy.Stream
	registry *geo.Registry
	nextID   AgentID
}

// NewSpawner creates an agent spawner drawing from the given stream.
func NewSpawner(rng *entropy.Stream, registry *geo.Registry) *Spawner {
	return &Spawner{rng: rng, registry: registry, nextID: 1}
}

// SetNextID sets the next agent ID to be issued (used when restoring from DB).
func (s *Spawner) SetNextID(id AgentID) {
	s.nextID = id
}

// SpawnType creates every instance of one scenario type. Instances differ
// in continent, traits, efficiency, and vulnerability; everything else
// copies the template.
func (s *Spawner) SpawnType(spec TypeSpec) []*Agent {
	if spec.Count <= 0 {
		return nil
	}
	continents := s.registry.Assign(spec.Count, spec.Continents)

	out := make([]*Agent, 0, spec.Count)
	for i := 0; i < spec.Count; i++ {
		out = append(out, s.spawnOne(spec, i, continents[i]))
	}
	return out
}

func (s *Spawner) spawnOne(spec TypeSpec, ordinal int, continent geo.Continent) *Agent {
	id := s.nextID
	s.nextID++

	a := &Agent{
		ID:        id,
		Name:      fmt.Sprintf("%s-%03d", spec.Name, ordinal+1),
		Type:      spec.Name,
		Role:      spec.Role,
		Continent: continent,
		Ledger:    economy.NewLedger(spec.InitialMoney),
		Traits:    s.drawTraits(spec.Traits),
	}
	for g, qty := range spec.InitialInventory {
		a.Ledger.AddGood(g, qty)
	}

	if spec.Production != nil {
		a.Production = cloneProduction(spec.Production)
		// Efficiency draw: better firms yield more per bundle and carry
		// less overhead.
		eff := s.rng.ClampedNormal(1, efficStddev, efficMin, efficMax)
		a.Production.BaseOutput *= eff
		if eff > 0 {
			a.Production.BaseOverhead /= eff
		}
	}
	if spec.Consumption != nil {
		c := *spec.Consumption
		a.Consumption = &c
	}
	if spec.Labor != nil {
		l := *spec.Labor
		a.Labor = &l
	}
	if spec.BaseVulnerability > 0 {
		v := spec.BaseVulnerability *
			s.registry.RiskWeight(continent) *
			s.rng.Uniform(vulnJitterLo, vulnJitterHi)
		a.Climate = &ClimateProfile{Vulnerability: clamp(v, vulnMin, vulnMax)}
	}
	return a
}

// drawTraits jitters each configured trait around its type mean. An unset
// mean reads as the neutral 1. Trade preference draws with the tighter
// efficiency spread; labor offers vary less than risk appetite.
func (s *Spawner) drawTraits(mean Traits) Traits {
	return Traits{
		RiskTolerance:         s.drawTrait(mean.RiskTolerance, traitStddev, traitMin, traitMax),
		TradePreference:       s.drawTrait(mean.TradePreference, efficStddev, efficMin, efficMax),
		ConsumptionPreference: s.drawTrait(mean.ConsumptionPreference, traitStddev, traitMin, traitMax),
		DebtWillingness:       s.drawTrait(mean.DebtWillingness, traitStddev, traitMin, traitMax),
	}
}

func (s *Spawner) drawTrait(mean, stddev, lo, hi float64) float64 {
	if mean <= 0 {
		mean = 1
	}
	return s.rng.ClampedNormal(mean, stddev, lo, hi)
}

func cloneProduction(p *ProductionSpec) *ProductionSpec {
	cp := *p
	if p.Inputs != nil {
		cp.Inputs = make(map[economy.Good]economy.InputTerm, len(p.Inputs))
		for g, term := range p.Inputs {
			cp.Inputs[g] = term
		}
	}
	return &cp
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
