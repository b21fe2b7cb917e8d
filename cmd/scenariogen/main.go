// Command scenariogen writes randomized scenario files for the simulator.
// Chain shape, endowments, continent risk weights and shock severities are
// drawn from layered simplex noise, so one seed always regenerates the same
// file. Useful for sweeps: generate a family of scenarios varying only the
// stress knob and compare the runs.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"
	"gopkg.in/yaml.v3"

	"github.com/talgya/climate-chain/internal/config"
	"github.com/talgya/climate-chain/internal/geo"
)

// chainSpec names one themed production chain: a raw producer, a refining
// intermediary, and a final-goods firm whose output households consume.
type chainSpec struct {
	producer, raw  string
	middleman, mid string
	finisher, good string
}

var chainCatalog = []chainSpec{
	{"farm", "grain", "mill", "flour", "bakery", "bread"},
	{"cotton_farm", "cotton", "textile_mill", "fabric", "clothier", "clothing"},
	{"timber_camp", "timber", "sawmill", "lumber", "builder", "housing"},
	{"orchard", "fruit", "cannery", "preserves", "grocer", "groceries"},
}

func main() {
	var (
		chains     = flag.Int("chains", 2, "supply chains to generate (1-4)")
		households = flag.Int("households", 10, "households per chain")
		rounds     = flag.Int("rounds", 50, "simulation rounds")
		seed       = flag.Int64("seed", 42, "generator and simulation seed")
		stress     = flag.Float64("stress", 0.5, "climate severity, 0 calm to 1 harsh")
		out        = flag.String("out", "", "output path (default stdout)")
	)
	flag.Parse()

	if *chains < 1 || *chains > len(chainCatalog) {
		fmt.Fprintf(os.Stderr, "-chains must be 1-%d\n", len(chainCatalog))
		os.Exit(2)
	}
	if *households < 1 {
		fmt.Fprintln(os.Stderr, "-households must be positive")
		os.Exit(2)
	}
	if *rounds < 1 {
		fmt.Fprintln(os.Stderr, "-rounds must be positive")
		os.Exit(2)
	}
	if *stress < 0 || *stress > 1 {
		fmt.Fprintln(os.Stderr, "-stress must be in [0, 1]")
		os.Exit(2)
	}

	scn := generate(*chains, *households, *rounds, *seed, *stress)
	if err := scn.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "generated scenario failed validation:", err)
		os.Exit(1)
	}

	body, err := yaml.Marshal(scn)
	if err != nil {
		fmt.Fprintln(os.Stderr, "marshal:", err)
		os.Exit(1)
	}
	header := fmt.Sprintf("# Generated scenario: %d chain(s), stress %.2f.\n# Regenerate: scenariogen -chains %d -households %d -rounds %d -seed %d -stress %.2f\n\n",
		*chains, *stress, *chains, *households, *rounds, *seed, *stress)
	data := append([]byte(header), body...)

	if *out == "" {
		os.Stdout.Write(data)
		return
	}
	if dir := filepath.Dir(*out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintln(os.Stderr, "mkdir:", err)
			os.Exit(1)
		}
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "write:", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s: %d agent types, %d continents, %d climate rules\n",
		*out, len(scn.Agents), len(scn.Continents),
		len(scn.Climate.ChronicRules)+len(scn.Climate.ShockRules))
}

// generate draws a full scenario. Three independent noise layers keep the
// concerns apart: geography, economy, climate.
func generate(chains, households, rounds int, seed int64, stress float64) *config.Scenario {
	geoNoise := opensimplex.NewNormalized(seed)
	econNoise := opensimplex.NewNormalized(seed + 1)
	shockNoise := opensimplex.NewNormalized(seed + 2)

	scn := &config.Scenario{
		Simulation: config.SimulationConfig{
			Name:   fmt.Sprintf("generated-%dx%d", chains, households),
			Rounds: rounds,
			Seed:   seed,
		},
		Redistribution: config.RedistributionConfig{HouseholdShare: 0.6, FirmShare: 0.4, Method: "equal"},
		Coordination:   config.CoordinationConfig{SafetyBuffer: round2(span(econNoise, 40, 0, 1.0, 1.3))},
		Climate:        config.ClimateConfig{Enabled: true},
	}
	if span(econNoise, 41, 0, 0, 1) > 0.5 {
		scn.Redistribution.Method = "proportional"
	}

	// Jitter the stock risk weights so runs differ geographically.
	reg := geo.DefaultRegistry()
	names := reg.Names()
	for i, name := range names {
		w := reg.RiskWeight(name) * span(geoNoise, float64(i), 0.5, 0.75, 1.25)
		scn.Continents = append(scn.Continents, config.ContinentConfig{
			Name:       string(name),
			RiskWeight: round2(w),
		})
	}

	var producerNames, firmNames, finisherNames []string
	for ci := 0; ci < chains; ci++ {
		c := chainCatalog[ci]
		x := float64(ci)

		// Raw producers are anchored on two adjacent continents so the
		// geographic shock scoping bites; downstream layers trade worldwide.
		anchor := int(span(geoNoise, x, 7.0, 0, float64(len(names)))) % len(names)
		home := []string{string(names[anchor]), string(names[(anchor+1)%len(names)])}

		producerNames = append(producerNames, c.producer)
		firmNames = append(firmNames, c.middleman, c.finisher)
		finisherNames = append(finisherNames, c.finisher)

		scn.Agents = append(scn.Agents,
			config.AgentTypeConfig{
				Name:              c.producer,
				Role:              "producer",
				Count:             int(math.Round(span(econNoise, x, 1.0, 3, 5))),
				InitialMoney:      round2(span(econNoise, x, 2.0, 100, 140)),
				Continents:        home,
				BaseVulnerability: round2(span(econNoise, x, 3.0, 1.1, 1.3)),
				Production: &config.ProductionConfig{
					Output:        c.raw,
					BaseOutput:    round2(span(econNoise, x, 4.0, 10, 14)),
					BaseOverhead:  round2(span(econNoise, x, 5.0, 1.5, 2.5)),
					ProfitMargin:  round2(span(econNoise, x, 6.0, 0.12, 0.18)),
					CustomerShare: 0.5,
					SpendFraction: 0.8,
					Inputs: map[string]config.InputConfig{
						"labor": {Exponent: 0.6, BaseQuantity: 8},
					},
				},
			},
			config.AgentTypeConfig{
				Name:              c.middleman,
				Role:              "intermediary",
				Count:             int(math.Round(span(econNoise, x, 8.0, 2, 4))),
				InitialMoney:      round2(span(econNoise, x, 9.0, 140, 180)),
				Continents:        []string{"all"},
				BaseVulnerability: round2(span(econNoise, x, 10.0, 0.9, 1.1)),
				Production: &config.ProductionConfig{
					Output:        c.mid,
					BaseOutput:    round2(span(econNoise, x, 11.0, 12, 16)),
					BaseOverhead:  round2(span(econNoise, x, 12.0, 2.0, 3.0)),
					ProfitMargin:  round2(span(econNoise, x, 13.0, 0.10, 0.15)),
					CustomerShare: 0.5,
					SpendFraction: 0.8,
					Inputs: map[string]config.InputConfig{
						c.raw:   {Exponent: 0.5, BaseQuantity: 10},
						"labor": {Exponent: 0.2, BaseQuantity: 4},
					},
				},
			},
			config.AgentTypeConfig{
				Name:              c.finisher,
				Role:              "final",
				Count:             int(math.Round(span(econNoise, x, 14.0, 2, 4))),
				InitialMoney:      round2(span(econNoise, x, 15.0, 160, 200)),
				Continents:        []string{"all"},
				BaseVulnerability: round2(span(econNoise, x, 16.0, 0.7, 0.9)),
				Production: &config.ProductionConfig{
					Output:        c.good,
					BaseOutput:    round2(span(econNoise, x, 17.0, 14, 18)),
					BaseOverhead:  round2(span(econNoise, x, 18.0, 2.5, 3.5)),
					ProfitMargin:  round2(span(econNoise, x, 19.0, 0.08, 0.12)),
					CustomerShare: 0.6,
					SpendFraction: 0.8,
					Inputs: map[string]config.InputConfig{
						c.mid:   {Exponent: 0.5, BaseQuantity: 10},
						"labor": {Exponent: 0.2, BaseQuantity: 4},
					},
				},
			},
			config.AgentTypeConfig{
				Name:         c.good + "_household",
				Role:         "household",
				Count:        households,
				InitialMoney: round2(span(econNoise, x, 22.0, 50, 70)),
				Continents:   []string{"all"},
				Traits: &config.TraitsConfig{
					RiskTolerance:         round2(span(econNoise, x, 23.0, 0.8, 1.2)),
					TradePreference:       round2(span(econNoise, x, 24.0, 0.8, 1.2)),
					ConsumptionPreference: round2(span(econNoise, x, 25.0, 0.8, 1.2)),
					DebtWillingness:       round2(span(econNoise, x, 26.0, 0.8, 1.2)),
				},
				Consumption: &config.ConsumptionConfig{
					Good:            c.good,
					MinSurvival:     round2(span(econNoise, x, 27.0, 0.8, 1.2)),
					SpendFraction:   0.7,
					ConsumeFraction: 0.8,
				},
				Labor: &config.LaborConfig{Endowment: 10, Wage: 1.0},
			})
	}

	// Shock rules are always emitted so a calm run can still inject them by
	// hand; only their probability scales with stress.
	if stress > 0 {
		scn.Climate.ChronicRules = append(scn.Climate.ChronicRules, config.RuleConfig{
			Name:         "gradual_warming",
			AgentTypes:   producerNames,
			Continents:   []string{"all"},
			Productivity: round3(1 - 0.012*stress),
			Mode:         "productivity",
		})
	}
	scn.Climate.ShockRules = append(scn.Climate.ShockRules,
		config.RuleConfig{
			Name:         "drought",
			AgentTypes:   producerNames,
			Continents:   riskiest(scn.Continents, 2),
			Productivity: round2(span(shockNoise, 0, 1.0, 0.5, 0.75)),
			Mode:         "productivity",
			Probability:  round3(stress * span(shockNoise, 0, 2.0, 0.06, 0.12)),
			Duration:     1 + int(2*stress),
			RecoveryRate: round2(span(shockNoise, 0, 3.0, 0.25, 0.45)),
		},
		config.RuleConfig{
			Name:         "heat_wave",
			AgentTypes:   firmNames,
			Continents:   []string{"all"},
			Overhead:     round2(span(shockNoise, 1, 1.0, 1.2, 1.5)),
			Mode:         "overhead",
			Probability:  round3(stress * span(shockNoise, 1, 2.0, 0.04, 0.08)),
			Duration:     2,
			RecoveryRate: 0.5,
		},
		config.RuleConfig{
			Name:         "flood",
			AgentTypes:   finisherNames,
			Continents:   []string{"all"},
			Productivity: round2(span(shockNoise, 2, 1.0, 0.75, 0.9)),
			Overhead:     round2(span(shockNoise, 2, 2.0, 1.1, 1.3)),
			Mode:         "both",
			Probability:  round3(stress * span(shockNoise, 2, 3.0, 0.02, 0.05)),
			Duration:     1,
			RecoveryRate: round2(span(shockNoise, 2, 4.0, 0.4, 0.6)),
		})

	return scn
}

// span maps one noise draw onto [lo, hi]. NewNormalized keeps Eval2 in
// [0, 1], so the bounds are tight.
func span(noise opensimplex.Noise, x, y, lo, hi float64) float64 {
	return lo + noise.Eval2(x, y)*(hi-lo)
}

// riskiest returns the n continents with the highest jittered risk weight.
func riskiest(cc []config.ContinentConfig, n int) []string {
	sorted := append([]config.ContinentConfig(nil), cc...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RiskWeight > sorted[j].RiskWeight })
	if n > len(sorted) {
		n = len(sorted)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = sorted[i].Name
	}
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
