package data

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// FileLocator resolves bar files under the layout cmd/fetch-data writes:
// {root}/{exchange}/{category}/{SYMBOL}/{interval-minutes}/candles.csv.
type FileLocator struct {
	logger zerolog.Logger
}

// NewFileLocator returns a locator with a discarded logger.
func NewFileLocator() *FileLocator {
	return &FileLocator{logger: zerolog.Nop()}
}

// SetLogger attaches a logger; the default discards everything.
func (l *FileLocator) SetLogger(logger zerolog.Logger) {
	l.logger = logger
}

// IntervalMinutes converts interval strings like "5m", "1h" or "4h" to the
// minute count used in directory names. Plain numbers pass through, unknown
// forms come back unchanged.
func (l *FileLocator) IntervalMinutes(interval string) string {
	if _, err := strconv.Atoi(interval); err == nil {
		return interval
	}

	interval = strings.ToLower(strings.TrimSpace(interval))
	if len(interval) < 2 {
		return interval
	}
	num, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil {
		return interval
	}

	switch interval[len(interval)-1:] {
	case "m":
		return strconv.Itoa(num)
	case "h":
		return strconv.Itoa(num * 60)
	case "d":
		return strconv.Itoa(num * 24 * 60)
	case "w":
		return strconv.Itoa(num * 7 * 24 * 60)
	default:
		return interval
	}
}

// Find returns the first candles.csv for the symbol and interval, trying
// each market category the exchange supports. Empty string means not found.
func (l *FileLocator) Find(root, exchange, symbol, interval string) string {
	symbol = strings.ToUpper(symbol)
	minutes := l.IntervalMinutes(interval)

	var categories []string
	switch strings.ToLower(exchange) {
	case "bybit":
		categories = []string{"spot", "linear", "inverse"}
	default:
		categories = []string{"spot", "futures", "linear", "inverse"}
	}

	var tried []string
	for _, category := range categories {
		path := filepath.Join(root, exchange, category, symbol, minutes, "candles.csv")
		tried = append(tried, path)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	l.logger.Warn().
		Str("exchange", exchange).
		Str("symbol", symbol).
		Str("interval", interval).
		Strs("tried", tried).
		Msg("no data file found")
	return ""
}

// Path composes the canonical location for a fetched series without checking
// the filesystem; cmd/fetch-data writes there.
func (l *FileLocator) Path(root, exchange, category, symbol, interval string) string {
	return filepath.Join(root, exchange, strings.ToLower(category), strings.ToUpper(symbol), l.IntervalMinutes(interval), "candles.csv")
}
