// Package config loads, validates, and converts scenario files. A scenario
// is YAML layered over embedded defaults, checked against a JSON Schema and
// then against semantic rules the schema cannot express.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/talgya/climate-chain/internal/agents"
	"github.com/talgya/climate-chain/internal/climate"
	"github.com/talgya/climate-chain/internal/economy"
	"github.com/talgya/climate-chain/internal/geo"
)

//go:embed defaults.yaml
var defaultsYAML []byte

//go:embed scenario.schema.json
var schemaJSON string

var scenarioSchema = jsonschema.MustCompileString("scenario.schema.json", schemaJSON)

// Scenario is the complete parameterization of one simulation run.
type Scenario struct {
	Simulation     SimulationConfig     `yaml:"simulation"`
	Redistribution RedistributionConfig `yaml:"redistribution"`
	Coordination   CoordinationConfig   `yaml:"coordination"`
	Continents     []ContinentConfig    `yaml:"continents"`
	Agents         []AgentTypeConfig    `yaml:"agents"`
	Climate        ClimateConfig        `yaml:"climate"`
}

// SimulationConfig holds run-level parameters.
type SimulationConfig struct {
	Name   string `yaml:"name"`
	Rounds int    `yaml:"rounds"`
	Seed   int64  `yaml:"seed"`
}

// RedistributionConfig controls how absorbed overhead is paid back out.
type RedistributionConfig struct {
	HouseholdShare float64 `yaml:"household_share"`
	FirmShare      float64 `yaml:"firm_share"`
	Method         string  `yaml:"method"` // equal or proportional
}

// CoordinationConfig tunes the minimum-production cascade.
type CoordinationConfig struct {
	SafetyBuffer float64 `yaml:"safety_buffer"` // multiplies upstream bundle demand
}

// ContinentConfig registers one continent and its climate risk weight.
type ContinentConfig struct {
	Name       string  `yaml:"name"`
	RiskWeight float64 `yaml:"risk_weight"`
}

// AgentTypeConfig describes one agent type and how many to spawn.
// Optional fields carry omitempty so a marshaled scenario stays valid
// against the schema (which rejects nulls for the nested objects).
type AgentTypeConfig struct {
	Name              string             `yaml:"name"`
	Role              string             `yaml:"role"`
	Count             int                `yaml:"count"`
	InitialMoney      float64            `yaml:"initial_money"`
	InitialInventory  map[string]float64 `yaml:"initial_inventory,omitempty"`
	Continents        []string           `yaml:"continents,omitempty"`
	BaseVulnerability float64            `yaml:"base_vulnerability,omitempty"`
	Traits            *TraitsConfig      `yaml:"traits,omitempty"`
	Production        *ProductionConfig  `yaml:"production,omitempty"`
	Consumption       *ConsumptionConfig `yaml:"consumption,omitempty"`
	Labor             *LaborConfig       `yaml:"labor,omitempty"`
}

// TraitsConfig sets the population means of the behavioral draws.
type TraitsConfig struct {
	RiskTolerance         float64 `yaml:"risk_tolerance"`
	TradePreference       float64 `yaml:"trade_preference"`
	ConsumptionPreference float64 `yaml:"consumption_preference"`
	DebtWillingness       float64 `yaml:"debt_willingness"`
}

// ProductionConfig describes a firm type's recipe.
type ProductionConfig struct {
	Output        string                 `yaml:"output"`
	BaseOutput    float64                `yaml:"base_output"`
	BaseOverhead  float64                `yaml:"base_overhead"`
	ProfitMargin  float64                `yaml:"profit_margin"`
	CustomerShare float64                `yaml:"customer_share"`
	SpendFraction float64                `yaml:"spend_fraction"`
	Inputs        map[string]InputConfig `yaml:"inputs,omitempty"`
}

// InputConfig is one Cobb-Douglas input term.
type InputConfig struct {
	Exponent     float64 `yaml:"exponent"`
	BaseQuantity float64 `yaml:"base_quantity"`
}

// ConsumptionConfig describes a household type's demand.
type ConsumptionConfig struct {
	Good            string  `yaml:"good"`
	MinSurvival     float64 `yaml:"min_survival"`
	SpendFraction   float64 `yaml:"spend_fraction"`
	ConsumeFraction float64 `yaml:"consume_fraction"`
}

// LaborConfig describes a household type's labor supply.
type LaborConfig struct {
	Endowment float64 `yaml:"endowment"`
	Wage      float64 `yaml:"wage"`
}

// ClimateConfig holds the rule lists. Disabled leaves the population
// permanently unstressed.
type ClimateConfig struct {
	Enabled      bool         `yaml:"enabled"`
	ChronicRules []RuleConfig `yaml:"chronic_rules,omitempty"`
	ShockRules   []RuleConfig `yaml:"shock_rules,omitempty"`
}

// RuleConfig is one chronic rule or shock rule. An empty stress_mode is
// inferred from which factors are set.
type RuleConfig struct {
	Name         string   `yaml:"name"`
	AgentTypes   []string `yaml:"agent_types,omitempty"`
	Continents   []string `yaml:"continents,omitempty"`
	Productivity float64  `yaml:"productivity_stress_factor,omitempty"`
	Overhead     float64  `yaml:"overhead_stress_factor,omitempty"`
	Mode         string   `yaml:"stress_mode,omitempty"`
	Probability  float64  `yaml:"probability,omitempty"`
	Duration     int      `yaml:"duration,omitempty"`
	RecoveryRate float64  `yaml:"recovery_rate,omitempty"`
}

// Load reads a scenario file, layering it over the embedded defaults. An
// empty path returns the defaults alone. The file is schema-checked before
// decoding so field typos fail loudly instead of silently zeroing.
func Load(path string) (*Scenario, error) {
	cfg := &Scenario{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading scenario: %w", err)
		}
		if err := validateSchema(data); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing scenario: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validateSchema checks raw YAML against the scenario schema. The document
// is normalized through JSON so the validator sees the types it expects.
func validateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing: %w", err)
	}
	normalized, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("normalizing: %w", err)
	}
	var v any
	if err := json.Unmarshal(normalized, &v); err != nil {
		return fmt.Errorf("normalizing: %w", err)
	}
	if err := scenarioSchema.Validate(v); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}

func (s *Scenario) applyDefaults() {
	if s.Redistribution.HouseholdShare == 0 && s.Redistribution.FirmShare == 0 {
		s.Redistribution.HouseholdShare = 0.6
		s.Redistribution.FirmShare = 0.4
	}
	if s.Redistribution.Method == "" {
		s.Redistribution.Method = "equal"
	}
	if s.Coordination.SafetyBuffer <= 0 {
		s.Coordination.SafetyBuffer = 1.0
	}
	for i := range s.Climate.ChronicRules {
		s.Climate.ChronicRules[i].applyDefaults()
	}
	for i := range s.Climate.ShockRules {
		s.Climate.ShockRules[i].applyDefaults()
		if s.Climate.ShockRules[i].Duration <= 0 {
			s.Climate.ShockRules[i].Duration = 1
		}
	}
}

func (r *RuleConfig) applyDefaults() {
	if r.Mode != "" {
		return
	}
	switch {
	case r.Productivity > 0 && r.Overhead > 0:
		r.Mode = "both"
	case r.Overhead > 0:
		r.Mode = "overhead"
	default:
		r.Mode = "productivity"
	}
}

// Validate enforces the semantic rules the schema cannot: cross-field
// relationships and enum parses.
func (s *Scenario) Validate() error {
	if s.Simulation.Rounds <= 0 {
		return fmt.Errorf("simulation.rounds must be positive, got %d", s.Simulation.Rounds)
	}
	if len(s.Agents) == 0 {
		return fmt.Errorf("no agent types configured")
	}

	seen := make(map[string]bool, len(s.Agents))
	for i := range s.Agents {
		a := &s.Agents[i]
		if a.Name == "" {
			return fmt.Errorf("agents[%d]: missing name", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("agent type %q configured twice", a.Name)
		}
		seen[a.Name] = true
		role, ok := agents.ParseRole(a.Role)
		if !ok {
			return fmt.Errorf("agent type %q: unknown role %q", a.Name, a.Role)
		}
		if a.Count <= 0 {
			return fmt.Errorf("agent type %q: count must be positive, got %d", a.Name, a.Count)
		}
		if a.InitialMoney < 0 {
			return fmt.Errorf("agent type %q: initial_money cannot be negative", a.Name)
		}
		if role == agents.RoleHousehold {
			if a.Consumption == nil {
				return fmt.Errorf("agent type %q: households need a consumption block", a.Name)
			}
			if a.Labor == nil {
				return fmt.Errorf("agent type %q: households need a labor block", a.Name)
			}
		} else if a.Production == nil {
			return fmt.Errorf("agent type %q: firms need a production block", a.Name)
		}
		if a.Production != nil {
			if a.Production.Output == "" {
				return fmt.Errorf("agent type %q: production.output is required", a.Name)
			}
			if a.Production.BaseOutput <= 0 {
				return fmt.Errorf("agent type %q: production.base_output must be positive", a.Name)
			}
			for good, term := range a.Production.Inputs {
				if term.Exponent < 0 {
					return fmt.Errorf("agent type %q: input %q has negative exponent", a.Name, good)
				}
			}
		}
		if a.Consumption != nil && a.Consumption.Good == "" {
			return fmt.Errorf("agent type %q: consumption.good is required", a.Name)
		}
	}

	for _, r := range s.Climate.ChronicRules {
		if err := r.validate(false); err != nil {
			return err
		}
	}
	for _, r := range s.Climate.ShockRules {
		if err := r.validate(true); err != nil {
			return err
		}
	}

	switch s.Redistribution.Method {
	case "equal", "proportional":
	default:
		return fmt.Errorf("redistribution.method must be equal or proportional, got %q", s.Redistribution.Method)
	}
	if s.Redistribution.HouseholdShare < 0 || s.Redistribution.FirmShare < 0 {
		return fmt.Errorf("redistribution shares cannot be negative")
	}
	return nil
}

func (r *RuleConfig) validate(shock bool) error {
	if r.Name == "" {
		return fmt.Errorf("climate rule without a name")
	}
	if _, ok := climate.ParseMode(r.Mode); !ok {
		return fmt.Errorf("climate rule %q: unknown stress_mode %q", r.Name, r.Mode)
	}
	if r.Productivity < 0 || r.Overhead < 0 {
		return fmt.Errorf("climate rule %q: stress factors cannot be negative", r.Name)
	}
	if shock {
		if r.Probability < 0 || r.Probability > 1 {
			return fmt.Errorf("climate rule %q: probability %v outside [0, 1]", r.Name, r.Probability)
		}
		if r.RecoveryRate < 0 || r.RecoveryRate > 1 {
			return fmt.Errorf("climate rule %q: recovery_rate %v outside [0, 1]", r.Name, r.RecoveryRate)
		}
	}
	return nil
}

// Registry builds the continent registry. An empty continent list falls
// back to the stock five.
func (s *Scenario) Registry() *geo.Registry {
	if len(s.Continents) == 0 {
		return geo.DefaultRegistry()
	}
	names := make([]geo.Continent, 0, len(s.Continents))
	weights := make(map[geo.Continent]float64, len(s.Continents))
	for _, c := range s.Continents {
		names = append(names, geo.Continent(c.Name))
		weights[geo.Continent(c.Name)] = c.RiskWeight
	}
	return geo.NewRegistry(names, weights)
}

// TypeSpecs converts the agent blocks to spawner inputs. Call Validate
// first; unknown roles panic here.
func (s *Scenario) TypeSpecs() []agents.TypeSpec {
	specs := make([]agents.TypeSpec, 0, len(s.Agents))
	for i := range s.Agents {
		a := &s.Agents[i]
		role, ok := agents.ParseRole(a.Role)
		if !ok {
			panic(fmt.Sprintf("config: unvalidated role %q", a.Role))
		}
		spec := agents.TypeSpec{
			Name:              a.Name,
			Role:              role,
			Count:             a.Count,
			InitialMoney:      a.InitialMoney,
			BaseVulnerability: a.BaseVulnerability,
		}
		if len(a.InitialInventory) > 0 {
			spec.InitialInventory = make(map[economy.Good]float64, len(a.InitialInventory))
			for g, qty := range a.InitialInventory {
				spec.InitialInventory[economy.Good(g)] = qty
			}
		}
		for _, c := range a.Continents {
			spec.Continents = append(spec.Continents, geo.Continent(c))
		}
		if a.Traits != nil {
			spec.Traits = agents.Traits{
				RiskTolerance:         a.Traits.RiskTolerance,
				TradePreference:       a.Traits.TradePreference,
				ConsumptionPreference: a.Traits.ConsumptionPreference,
				DebtWillingness:       a.Traits.DebtWillingness,
			}
		}
		if a.Production != nil {
			spec.Production = &agents.ProductionSpec{
				Good:          economy.Good(a.Production.Output),
				BaseOutput:    a.Production.BaseOutput,
				BaseOverhead:  a.Production.BaseOverhead,
				ProfitMargin:  a.Production.ProfitMargin,
				CustomerShare: a.Production.CustomerShare,
				SpendFraction: a.Production.SpendFraction,
				Inputs:        make(map[economy.Good]economy.InputTerm, len(a.Production.Inputs)),
			}
			for g, term := range a.Production.Inputs {
				spec.Production.Inputs[economy.Good(g)] = economy.InputTerm{
					Exponent:     term.Exponent,
					BaseQuantity: term.BaseQuantity,
				}
			}
		}
		if a.Consumption != nil {
			spec.Consumption = &agents.ConsumptionSpec{
				Good:            economy.Good(a.Consumption.Good),
				MinSurvival:     a.Consumption.MinSurvival,
				SpendFraction:   a.Consumption.SpendFraction,
				ConsumeFraction: a.Consumption.ConsumeFraction,
			}
		}
		if a.Labor != nil {
			spec.Labor = &agents.LaborSpec{
				Endowment: a.Labor.Endowment,
				Wage:      a.Labor.Wage,
			}
		}
		specs = append(specs, spec)
	}
	return specs
}

// ChronicRules converts the chronic rule blocks. Disabled climate returns
// nothing.
func (s *Scenario) ChronicRules() []climate.Rule {
	if !s.Climate.Enabled {
		return nil
	}
	return convertRules(s.Climate.ChronicRules)
}

// ShockRules converts the shock rule blocks. Disabled climate returns
// nothing.
func (s *Scenario) ShockRules() []climate.Rule {
	if !s.Climate.Enabled {
		return nil
	}
	return convertRules(s.Climate.ShockRules)
}

func convertRules(rules []RuleConfig) []climate.Rule {
	out := make([]climate.Rule, 0, len(rules))
	for _, r := range rules {
		mode, ok := climate.ParseMode(r.Mode)
		if !ok {
			panic(fmt.Sprintf("config: unvalidated stress_mode %q", r.Mode))
		}
		rule := climate.Rule{
			Name:         r.Name,
			Types:        r.AgentTypes,
			Productivity: r.Productivity,
			Overhead:     r.Overhead,
			Mode:         mode,
			Probability:  r.Probability,
			Duration:     r.Duration,
			Recovery:     r.RecoveryRate,
		}
		for _, c := range r.Continents {
			rule.Continents = append(rule.Continents, geo.Continent(c))
		}
		out = append(out, rule)
	}
	return out
}
