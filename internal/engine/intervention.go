package engine

import (
	"fmt"
	"log/slog"

	"github.com/talgya/climate-chain/internal/climate"
)

// InjectShock queues a named shock rule to fire for every in-scope agent
// on the next round, regardless of its configured probability.
func (s *Simulation) InjectShock(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Climate.Inject(name); err != nil {
		return "", err
	}

	desc := fmt.Sprintf("Shock %q will hit every in-scope agent next round", name)
	s.Events = append(s.Events, Event{
		Round:       s.LastRound,
		Description: desc,
		Category:    "climate",
	})

	slog.Info("shock injected", "rule", name)
	return desc, nil
}

// ShockRules lists the shock rules available for injection.
func (s *Simulation) ShockRules() []climate.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Climate.ShockRules()
}
