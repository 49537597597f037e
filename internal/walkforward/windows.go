package walkforward

import "github.com/quantloop/stratlab/pkg/types"

// Window is one (in-sample, out-of-sample) pair carved from the series. Both
// slices alias the parent data and are read-only for the window's lifetime.
type Window struct {
	Index       int
	InSample    []types.OHLCV
	OutOfSample []types.OHLCV
}

// carveWindows cuts successive windows, advancing the start by the
// out-of-sample length plus the stride. Configurations below the viable
// minimums produce no windows at all.
func carveWindows(data []types.OHLCV, cfg Config) []Window {
	if cfg.InSampleBars < MinInSampleBars || cfg.OutOfSampleBars < MinOutOfSampleBars {
		return nil
	}

	var windows []Window
	step := cfg.OutOfSampleBars + cfg.Stride
	span := cfg.InSampleBars + cfg.OutOfSampleBars
	for start := 0; start+span <= len(data); start += step {
		fitEnd := start + cfg.InSampleBars
		windows = append(windows, Window{
			Index:       len(windows),
			InSample:    data[start:fitEnd],
			OutOfSample: data[fitEnd : fitEnd+cfg.OutOfSampleBars],
		})
	}
	return windows
}
