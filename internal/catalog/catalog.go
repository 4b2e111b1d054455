// Package catalog provides the immutable scenario catalog keyed by run key.
package catalog

import (
	"fmt"
	"sort"

	"github.com/xiaot623/agentflow/internal/domain"
)

// Catalog maps run keys to validated scenarios. It is read-only after
// construction and safe for concurrent use.
type Catalog struct {
	scenarios map[string]*domain.Scenario
	keys      []string
}

// New validates the given scenarios and builds a catalog.
func New(scenarios ...domain.Scenario) (*Catalog, error) {
	c := &Catalog{scenarios: make(map[string]*domain.Scenario, len(scenarios))}
	for i := range scenarios {
		sc := scenarios[i]
		if sc.Mode == "" {
			sc.Mode = domain.ModeSimulated
		}
		if err := Validate(&sc); err != nil {
			return nil, err
		}
		if _, dup := c.scenarios[sc.RunKey]; dup {
			return nil, fmt.Errorf("%w: duplicate run key %q", domain.ErrInvalidScenario, sc.RunKey)
		}
		c.scenarios[sc.RunKey] = &sc
		c.keys = append(c.keys, sc.RunKey)
	}
	sort.Strings(c.keys)
	return c, nil
}

// Default returns the catalog of built-in scenarios.
func Default() *Catalog {
	c, err := New(Builtin()...)
	if err != nil {
		panic(fmt.Sprintf("built-in scenarios are invalid: %v", err))
	}
	return c
}

// Get returns the scenario configured for runKey. The returned scenario is
// shared and must not be modified.
func (c *Catalog) Get(runKey string) (*domain.Scenario, error) {
	sc, ok := c.scenarios[runKey]
	if !ok {
		return nil, fmt.Errorf("%w for run key %q", domain.ErrNoScenario, runKey)
	}
	return sc, nil
}

// Keys returns the configured run keys in sorted order.
func (c *Catalog) Keys() []string {
	return append([]string(nil), c.keys...)
}

// List returns every scenario in run key order.
func (c *Catalog) List() []*domain.Scenario {
	out := make([]*domain.Scenario, 0, len(c.keys))
	for _, k := range c.keys {
		out = append(out, c.scenarios[k])
	}
	return out
}

// With returns a new catalog where the given scenarios replace or extend the
// existing ones.
func (c *Catalog) With(overrides ...domain.Scenario) (*Catalog, error) {
	merged := make([]domain.Scenario, 0, len(c.keys)+len(overrides))
	replaced := make(map[string]bool, len(overrides))
	for _, o := range overrides {
		replaced[o.RunKey] = true
	}
	for _, k := range c.keys {
		if !replaced[k] {
			merged = append(merged, *c.scenarios[k])
		}
	}
	merged = append(merged, overrides...)
	return New(merged...)
}
