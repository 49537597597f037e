package common

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/quantloop/stratlab/internal/strategy"
)

// CommonFlags registers the flags every stratlab binary shares.
type CommonFlags struct {
	EnvFile     *string
	Debug       *bool
	MetricsAddr *string
	Version     *bool
}

// RegisterCommonFlags adds the shared flags to the default flag set. Call
// before flag.Parse.
func RegisterCommonFlags() *CommonFlags {
	return &CommonFlags{
		EnvFile:     flag.String("env", ".env", "Environment file path"),
		Debug:       flag.Bool("debug", false, "Enable debug logging"),
		MetricsAddr: flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9184)"),
		Version:     flag.Bool("version", false, "Show version information"),
	}
}

// HandleVersion prints the version and reports whether the caller should
// exit.
func (f *CommonFlags) HandleVersion(appName string) bool {
	if *f.Version {
		PrintVersion(appName)
		return true
	}
	return false
}

// ParseParams reads a "fast=10,slow=30" flag value into strategy parameters.
func ParseParams(s string) (strategy.Parameters, error) {
	params := strategy.Parameters{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("parameter %q is not key=value", pair)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", strings.TrimSpace(key), err)
		}
		params[strings.TrimSpace(key)] = v
	}
	return params, nil
}
