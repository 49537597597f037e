// Package portfolio composes weighted strategies into one book: a composite
// signal stream, combined performance under a correlation matrix, and a
// random-search weight optimizer.
package portfolio

import (
	"fmt"
	"math"

	"github.com/quantloop/stratlab/internal/strategy"
)

// Member ties one strategy into the book with its share of capital.
type Member struct {
	Strategy strategy.Strategy
	Weight   float64
	Enabled  bool
}

// Portfolio is a named set of weighted strategies. Enabled weights always
// sum to 1; every mutation renormalizes them. A Portfolio is owned by one
// goroutine; backtest runs only read it.
type Portfolio struct {
	name                 string
	members              []Member
	correlationThreshold float64
	rebalanceBars        int
}

// New returns an empty portfolio with a 0.7 correlation threshold.
func New(name string) *Portfolio {
	return &Portfolio{name: name, correlationThreshold: 0.7}
}

// Name returns the portfolio identifier used in reports.
func (p *Portfolio) Name() string {
	return p.name
}

// CorrelationThreshold returns the ceiling applied to pairwise correlations
// during weight search.
func (p *Portfolio) CorrelationThreshold() float64 {
	return p.correlationThreshold
}

// SetCorrelationThreshold bounds the weight search. 1 disables the
// constraint in practice since correlations never exceed it.
func (p *Portfolio) SetCorrelationThreshold(v float64) error {
	if math.IsNaN(v) || v <= 0 || v > 1 {
		return fmt.Errorf("correlation threshold must be in (0, 1], got: %v", v)
	}
	p.correlationThreshold = v
	return nil
}

// RebalanceBars returns the advisory rebalance cadence in bars, 0 when the
// caller never rebalances on a schedule.
func (p *Portfolio) RebalanceBars() int {
	return p.rebalanceBars
}

// SetRebalanceBars records the advisory cadence. It gates nothing here; CLIs
// decide when to call Rebalance.
func (p *Portfolio) SetRebalanceBars(bars int) {
	if bars < 0 {
		bars = 0
	}
	p.rebalanceBars = bars
}

// Add registers a strategy under its own name. Weights are relative and
// renormalized across enabled members.
func (p *Portfolio) Add(strat strategy.Strategy, weight float64) error {
	if strat == nil {
		return fmt.Errorf("strategy must not be nil")
	}
	if math.IsNaN(weight) || weight < 0 {
		return fmt.Errorf("weight must be non-negative, got: %v", weight)
	}
	name := strat.Name()
	if p.find(name) >= 0 {
		return fmt.Errorf("strategy %s already in portfolio", name)
	}
	p.members = append(p.members, Member{Strategy: strat, Weight: weight, Enabled: true})
	p.normalize()
	return nil
}

// Remove drops a strategy from the portfolio.
func (p *Portfolio) Remove(name string) error {
	i := p.find(name)
	if i < 0 {
		return fmt.Errorf("strategy %s not in portfolio", name)
	}
	p.members = append(p.members[:i], p.members[i+1:]...)
	p.normalize()
	return nil
}

// SetEnabled toggles a member in or out of the book without losing its
// relative weight.
func (p *Portfolio) SetEnabled(name string, enabled bool) error {
	i := p.find(name)
	if i < 0 {
		return fmt.Errorf("strategy %s not in portfolio", name)
	}
	p.members[i].Enabled = enabled
	p.normalize()
	return nil
}

// SetWeight changes one member's relative weight.
func (p *Portfolio) SetWeight(name string, weight float64) error {
	if math.IsNaN(weight) || weight < 0 {
		return fmt.Errorf("weight must be non-negative, got: %v", weight)
	}
	i := p.find(name)
	if i < 0 {
		return fmt.Errorf("strategy %s not in portfolio", name)
	}
	p.members[i].Weight = weight
	p.normalize()
	return nil
}

// SetWeights applies a bulk reweighting, as after a completed weight search.
// Names absent from the map keep their current weight.
func (p *Portfolio) SetWeights(weights map[string]float64) error {
	for name, w := range weights {
		if math.IsNaN(w) || w < 0 {
			return fmt.Errorf("weight for %s must be non-negative, got: %v", name, w)
		}
		if p.find(name) < 0 {
			return fmt.Errorf("strategy %s not in portfolio", name)
		}
	}
	for name, w := range weights {
		p.members[p.find(name)].Weight = w
	}
	p.normalize()
	return nil
}

// Members returns a copy of all members, enabled or not.
func (p *Portfolio) Members() []Member {
	out := make([]Member, len(p.members))
	copy(out, p.members)
	return out
}

// Enabled returns copies of the enabled members in insertion order, weights
// normalized to sum to 1.
func (p *Portfolio) Enabled() []Member {
	out := make([]Member, 0, len(p.members))
	for _, m := range p.members {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// Weights maps enabled member names to their normalized weights.
func (p *Portfolio) Weights() map[string]float64 {
	out := make(map[string]float64)
	for _, m := range p.members {
		if m.Enabled {
			out[m.Strategy.Name()] = m.Weight
		}
	}
	return out
}

func (p *Portfolio) find(name string) int {
	for i, m := range p.members {
		if m.Strategy.Name() == name {
			return i
		}
	}
	return -1
}

// normalize rescales enabled weights to sum to 1. When every enabled weight
// is 0 the members split the book evenly rather than all staying at 0.
func (p *Portfolio) normalize() {
	total := 0.0
	enabled := 0
	for _, m := range p.members {
		if m.Enabled {
			total += m.Weight
			enabled++
		}
	}
	if enabled == 0 {
		return
	}
	for i := range p.members {
		if !p.members[i].Enabled {
			continue
		}
		if total > 0 {
			p.members[i].Weight /= total
		} else {
			p.members[i].Weight = 1 / float64(enabled)
		}
	}
}
