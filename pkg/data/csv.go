package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantloop/stratlab/pkg/types"
)

// ColumnMapping describes where each bar field sits in a CSV row and how the
// timestamp is encoded. DateFormat takes a time.Parse layout or one of the
// sentinels "unix" (seconds) and "unixmilli".
type ColumnMapping struct {
	TimestampCol int
	OpenCol      int
	HighCol      int
	LowCol       int
	CloseCol     int
	VolumeCol    int
	MinColumns   int
	DateFormat   string
}

var (
	// DefaultCSVFormat matches the files cmd/fetch-data writes.
	DefaultCSVFormat = ColumnMapping{
		TimestampCol: 0,
		OpenCol:      1,
		HighCol:      2,
		LowCol:       3,
		CloseCol:     4,
		VolumeCol:    5,
		MinColumns:   6,
		DateFormat:   "2006-01-02 15:04:05",
	}

	// UnixMilliCSVFormat reads raw exchange dumps keyed by epoch milliseconds.
	UnixMilliCSVFormat = ColumnMapping{
		TimestampCol: 0,
		OpenCol:      1,
		HighCol:      2,
		LowCol:       3,
		CloseCol:     4,
		VolumeCol:    5,
		MinColumns:   6,
		DateFormat:   "unixmilli",
	}
)

// CSVProvider loads bar series from CSV files. Rows that fail to parse are
// skipped and logged rather than aborting the load; a missing file is an
// error, never a reason to invent data.
type CSVProvider struct {
	format ColumnMapping
	logger zerolog.Logger
}

// NewCSVProvider returns a provider reading DefaultCSVFormat files.
func NewCSVProvider() *CSVProvider {
	return NewCSVProviderWithFormat(DefaultCSVFormat)
}

// NewCSVProviderWithFormat returns a provider for a custom column layout.
func NewCSVProviderWithFormat(format ColumnMapping) *CSVProvider {
	return &CSVProvider{format: format, logger: zerolog.Nop()}
}

// SetLogger attaches a logger; the default discards everything.
func (p *CSVProvider) SetLogger(logger zerolog.Logger) {
	p.logger = logger
}

// Name identifies the provider in logs and reports.
func (p *CSVProvider) Name() string { return "csv" }

// Load reads every parseable bar from filename, preserving file order.
func (p *CSVProvider) Load(filename string) ([]types.OHLCV, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	// Short rows are handled in parseRow, not rejected by the reader.
	reader.FieldsPerRecord = -1
	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("data file %s is empty", filename)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	var data []types.OHLCV
	line, skipped := 1, 0
	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read line %d: %w", line+1, err)
		}
		line++

		bar, err := p.parseRow(record)
		if err != nil {
			skipped++
			p.logger.Warn().Int("line", line).Err(err).Msg("skipping bad row")
			continue
		}
		data = append(data, bar)
	}

	if skipped > 0 {
		p.logger.Warn().Str("file", filename).Int("skipped", skipped).Msg("dropped unparseable rows")
	}
	p.logger.Debug().Str("file", filename).Int("bars", len(data)).Msg("loaded series")
	return data, nil
}

func (p *CSVProvider) parseRow(record []string) (types.OHLCV, error) {
	f := p.format
	if len(record) < f.MinColumns {
		return types.OHLCV{}, fmt.Errorf("expected %d columns, got %d", f.MinColumns, len(record))
	}

	ts, err := parseTimestamp(record[f.TimestampCol], f.DateFormat)
	if err != nil {
		return types.OHLCV{}, err
	}

	fields := [4]float64{}
	for i, col := range [4]int{f.OpenCol, f.HighCol, f.LowCol, f.CloseCol} {
		v, err := strconv.ParseFloat(record[col], 64)
		if err != nil {
			return types.OHLCV{}, fmt.Errorf("bad price %q", record[col])
		}
		if v <= 0 {
			return types.OHLCV{}, fmt.Errorf("non-positive price %v", v)
		}
		fields[i] = v
	}
	volume, err := strconv.ParseFloat(record[f.VolumeCol], 64)
	if err != nil {
		return types.OHLCV{}, fmt.Errorf("bad volume %q", record[f.VolumeCol])
	}

	bar := types.OHLCV{
		Timestamp: ts,
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    volume,
	}
	if bar.High < bar.Open || bar.High < bar.Close || bar.High < bar.Low {
		return types.OHLCV{}, fmt.Errorf("high %v below another price", bar.High)
	}
	if bar.Low > bar.Open || bar.Low > bar.Close {
		return types.OHLCV{}, fmt.Errorf("low %v above another price", bar.Low)
	}
	return bar, nil
}

func parseTimestamp(raw, layout string) (time.Time, error) {
	switch layout {
	case "unix":
		sec, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad unix timestamp %q", raw)
		}
		return time.Unix(sec, 0).UTC(), nil
	case "unixmilli":
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad unixmilli timestamp %q", raw)
		}
		return time.UnixMilli(ms).UTC(), nil
	default:
		ts, err := time.Parse(layout, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad timestamp %q", raw)
		}
		return ts, nil
	}
}

// Validate rejects series a simulation cannot trust: empty input, broken
// OHLC envelopes, or bars out of chronological order.
func (p *CSVProvider) Validate(data []types.OHLCV) error {
	if len(data) == 0 {
		return errors.New("no data provided")
	}
	for i, bar := range data {
		if bar.Open <= 0 || bar.High <= 0 || bar.Low <= 0 || bar.Close <= 0 {
			return fmt.Errorf("bar %d: prices must be positive", i)
		}
		if bar.High < bar.Low {
			return fmt.Errorf("bar %d: high %.4f below low %.4f", i, bar.High, bar.Low)
		}
		if bar.High < bar.Open || bar.High < bar.Close {
			return fmt.Errorf("bar %d: high %.4f below open %.4f or close %.4f", i, bar.High, bar.Open, bar.Close)
		}
		if bar.Low > bar.Open || bar.Low > bar.Close {
			return fmt.Errorf("bar %d: low %.4f above open %.4f or close %.4f", i, bar.Low, bar.Open, bar.Close)
		}
		if i > 0 && bar.Timestamp.Before(data[i-1].Timestamp) {
			return fmt.Errorf("bar %d: timestamps out of order", i)
		}
	}
	return nil
}
