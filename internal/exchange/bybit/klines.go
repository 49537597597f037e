package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	"github.com/quantloop/stratlab/pkg/types"
)

// Interval is a kline interval in Bybit wire form: minutes for intraday,
// D/W/M for daily and up.
type Interval string

const (
	Interval1m  Interval = "1"
	Interval3m  Interval = "3"
	Interval5m  Interval = "5"
	Interval15m Interval = "15"
	Interval30m Interval = "30"
	Interval1h  Interval = "60"
	Interval2h  Interval = "120"
	Interval4h  Interval = "240"
	Interval6h  Interval = "360"
	Interval12h Interval = "720"
	Interval1d  Interval = "D"
	Interval1w  Interval = "W"
	Interval1M  Interval = "M"
)

var intervalNames = map[string]Interval{
	"1m": Interval1m, "3m": Interval3m, "5m": Interval5m,
	"15m": Interval15m, "30m": Interval30m,
	"1h": Interval1h, "2h": Interval2h, "4h": Interval4h,
	"6h": Interval6h, "12h": Interval12h,
	"1d": Interval1d, "1w": Interval1w, "1M": Interval1M,
}

// ParseInterval maps human interval names ("1h", "15m", "1d") to wire form.
// Values already in wire form pass through unchanged.
func ParseInterval(s string) (Interval, error) {
	if iv, ok := intervalNames[s]; ok {
		return iv, nil
	}
	for _, iv := range intervalNames {
		if string(iv) == s {
			return iv, nil
		}
	}
	return "", fmt.Errorf("unknown kline interval %q", s)
}

const (
	maxKlineLimit   = 1000
	defaultThrottle = 500 * time.Millisecond
)

// KlineParams selects which klines to fetch. Zero Start or End means
// unbounded on that side for single requests; GetKlineHistory requires both.
type KlineParams struct {
	Category string // "spot", "linear", "inverse"
	Symbol   string
	Interval Interval
	Start    time.Time
	End      time.Time
	Limit    int
}

// GetKlines issues a single kline request and returns the bars in
// chronological order. The API serves at most 1000 bars per call.
func (c *Client) GetKlines(ctx context.Context, params KlineParams) ([]types.OHLCV, error) {
	if params.Symbol == "" {
		return nil, fmt.Errorf("kline request needs a symbol")
	}
	if params.Category == "" {
		params.Category = "spot"
	}
	if params.Limit <= 0 {
		params.Limit = 200
	}
	if params.Limit > maxKlineLimit {
		params.Limit = maxKlineLimit
	}

	reqParams := map[string]interface{}{
		"category": params.Category,
		"symbol":   params.Symbol,
		"interval": string(params.Interval),
		"limit":    params.Limit,
	}
	if !params.Start.IsZero() {
		reqParams["start"] = params.Start.UnixMilli()
	}
	if !params.End.IsZero() {
		reqParams["end"] = params.End.UnixMilli()
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(reqParams).GetMarketKline(ctx)
	if err != nil {
		return nil, fmt.Errorf("kline request for %s: %w", params.Symbol, err)
	}
	return c.parseKlines(result)
}

// GetKlineHistory pages backwards through the kline endpoint until the whole
// [Start, End] window is covered, pausing between requests to stay inside the
// public rate limit. Individual pages are retried per the retry policy.
func (c *Client) GetKlineHistory(ctx context.Context, params KlineParams) ([]types.OHLCV, error) {
	if params.Start.IsZero() || params.End.IsZero() {
		return nil, fmt.Errorf("kline history needs both start and end")
	}
	if !params.Start.Before(params.End) {
		return nil, fmt.Errorf("kline history start %s is not before end %s",
			params.Start.Format(time.RFC3339), params.End.Format(time.RFC3339))
	}

	fetch := func(ctx context.Context, page KlineParams) ([]types.OHLCV, error) {
		var bars []types.OHLCV
		err := c.withRetry(ctx, func() error {
			var err error
			bars, err = c.GetKlines(ctx, page)
			return err
		})
		return bars, err
	}

	bars, err := paginateKlines(ctx, params, c.throttle, fetch)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("symbol", params.Symbol).
		Str("interval", string(params.Interval)).
		Int("bars", len(bars)).
		Msg("kline history fetched")
	return bars, nil
}

// paginateKlines walks the window backwards: each page asks for the newest
// bars at or before the cursor, then the cursor moves just past the oldest
// bar returned. The endpoint serves newest-first, so the window fills from
// the end toward the start.
func paginateKlines(ctx context.Context, params KlineParams, throttle time.Duration,
	fetch func(context.Context, KlineParams) ([]types.OHLCV, error)) ([]types.OHLCV, error) {

	var all []types.OHLCV
	cursor := params.End

	for cursor.After(params.Start) {
		page := params
		page.Start = time.Time{}
		page.End = cursor
		page.Limit = maxKlineLimit

		bars, err := fetch(ctx, page)
		if err != nil {
			return nil, err
		}
		if len(bars) == 0 {
			break
		}

		oldest := bars[0].Timestamp
		for _, bar := range bars {
			if !bar.Timestamp.Before(params.Start) && !bar.Timestamp.After(params.End) {
				all = append(all, bar)
			}
		}

		if !oldest.After(params.Start) {
			break
		}
		next := oldest.Add(-time.Millisecond)
		if !next.Before(cursor) {
			break
		}
		cursor = next

		if throttle > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(throttle):
			}
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	return dedupeBars(all), nil
}

func dedupeBars(bars []types.OHLCV) []types.OHLCV {
	out := bars[:0]
	for i, bar := range bars {
		if i > 0 && bar.Timestamp.Equal(bars[i-1].Timestamp) {
			continue
		}
		out = append(out, bar)
	}
	return out
}

// parseKlines converts a raw kline response into chronological bars. Rows
// with missing columns or unparsable numbers are skipped.
func (c *Client) parseKlines(response interface{}) ([]types.OHLCV, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type %T", response)
	}
	if err := ParseAPIError(serverResp.RetCode, serverResp.RetMsg); err != nil {
		return nil, err
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("re-encode kline result: %w", err)
	}

	var klineResult struct {
		Symbol   string     `json:"symbol"`
		Category string     `json:"category"`
		List     [][]string `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &klineResult); err != nil {
		return nil, fmt.Errorf("decode kline result: %w", err)
	}

	bars := make([]types.OHLCV, 0, len(klineResult.List))
	skipped := 0
	for _, row := range klineResult.List {
		bar, ok := parseKlineRow(row)
		if !ok {
			skipped++
			continue
		}
		bars = append(bars, bar)
	}
	if skipped > 0 {
		c.logger.Warn().
			Str("symbol", klineResult.Symbol).
			Int("skipped", skipped).
			Msg("dropped malformed kline rows")
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

// parseKlineRow reads one wire row, laid out as
// [startTime, open, high, low, close, volume, turnover].
func parseKlineRow(row []string) (types.OHLCV, bool) {
	if len(row) < 7 {
		return types.OHLCV{}, false
	}

	msec, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return types.OHLCV{}, false
	}

	var prices [5]float64
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return types.OHLCV{}, false
		}
		prices[i] = v
	}

	return types.OHLCV{
		Timestamp: time.UnixMilli(msec).UTC(),
		Open:      prices[0],
		High:      prices[1],
		Low:       prices[2],
		Close:     prices[3],
		Volume:    prices[4],
	}, true
}
