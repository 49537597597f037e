package types

import "time"

// OHLCV is a single price bar. Series are ordered oldest first.
type OHLCV struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp time.Time
}

// Closes extracts the close column from a bar series.
func Closes(data []OHLCV) []float64 {
	closes := make([]float64, len(data))
	for i, bar := range data {
		closes[i] = bar.Close
	}
	return closes
}

// Volumes extracts the volume column from a bar series.
func Volumes(data []OHLCV) []float64 {
	volumes := make([]float64, len(data))
	for i, bar := range data {
		volumes[i] = bar.Volume
	}
	return volumes
}
