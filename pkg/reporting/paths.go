package reporting

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultOutputDir composes the conventional results directory for a run,
// results/{SYMBOL}_{interval}.
func DefaultOutputDir(symbol, interval string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	i := strings.ToLower(strings.TrimSpace(interval))
	if s == "" {
		s = "UNKNOWN"
	}
	if i == "" {
		i = "unknown"
	}
	return filepath.Join("results", fmt.Sprintf("%s_%s", s, i))
}
