package strategy

import (
	"fmt"
	"sort"
	"strings"
)

var families = map[string]Family{
	"momentum":      MomentumFamily{},
	"meanreversion": MeanReversionFamily{},
	"breakout":      BreakoutFamily{},
	"statarb":       StatArbFamily{},
	"marketmaking":  MarketMakingFamily{},
	"mlalpha":       MLAlphaFamily{},
}

// FamilyByName resolves a registered strategy family.
func FamilyByName(name string) (Family, error) {
	family, ok := families[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q, available: %s", name, strings.Join(FamilyNames(), ", "))
	}
	return family, nil
}

// FamilyNames lists registered families in stable order.
func FamilyNames() []string {
	names := make([]string, 0, len(families))
	for name := range families {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds a strategy by family name. Empty params take the family
// defaults.
func New(name string, params Parameters) (Strategy, error) {
	family, err := FamilyByName(name)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = family.Defaults()
	}
	return family.New(params)
}
