package kline

import (
	"fmt"
	"time"

	"kline_backend/models"

	"github.com/shopspring/decimal"
)

// Period selects the view derived from the stored daily series
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ParsePeriod validates a period query parameter
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodDay, PeriodWeek, PeriodMonth:
		return Period(s), nil
	case "":
		return PeriodDay, nil
	}
	return "", fmt.Errorf("invalid period %q: want day, week or month", s)
}

// Moving-average windows computed on the daily series
const (
	smaShort  = 5
	smaMedium = 10
	smaLong   = 20
)

// PeriodBar is one derived bar of the requested view. Never persisted.
// SMA fields are nil while the instrument's daily history is shorter than
// the window at that point.
type PeriodBar struct {
	Date   string           `json:"date"`
	Open   decimal.Decimal  `json:"open"`
	Close  decimal.Decimal  `json:"close"`
	High   decimal.Decimal  `json:"high"`
	Low    decimal.Decimal  `json:"low"`
	Volume int64            `json:"volume"`
	SMA5   *decimal.Decimal `json:"sma5,omitempty"`
	SMA10  *decimal.Decimal `json:"sma10,omitempty"`
	SMA20  *decimal.Decimal `json:"sma20,omitempty"`
}

// priceRule reduces the daily bars of one bucket to a single price field
type priceRule func(bars []models.BarRecord) decimal.Decimal

// bucketRules is the aggregation rule table applied to every calendar
// bucket, keyed by output field
var bucketRules = map[string]priceRule{
	"open":  func(bars []models.BarRecord) decimal.Decimal { return bars[0].Open },
	"close": func(bars []models.BarRecord) decimal.Decimal { return bars[len(bars)-1].Close },
	"high": func(bars []models.BarRecord) decimal.Decimal {
		high := bars[0].High
		for _, b := range bars[1:] {
			if b.High.GreaterThan(high) {
				high = b.High
			}
		}
		return high
	},
	"low": func(bars []models.BarRecord) decimal.Decimal {
		low := bars[0].Low
		for _, b := range bars[1:] {
			if b.Low.LessThan(low) {
				low = b.Low
			}
		}
		return low
	},
}

// Resampler derives weekly/monthly views and moving averages from a daily
// series. Pure computation, no I/O.
type Resampler struct{}

// NewResampler creates a resampler
func NewResampler() *Resampler {
	return &Resampler{}
}

// Derive turns an ascending daily series into the requested period view.
// Indicators are always computed on the daily series; for week/month views
// each bucket carries the indicator values of its last trading day. A
// positive limit keeps only the most recent bars of the result.
func (r *Resampler) Derive(bars []models.BarRecord, period Period, limit int) []PeriodBar {
	if len(bars) == 0 {
		return []PeriodBar{}
	}

	smas := map[int][]*decimal.Decimal{
		smaShort:  rollingSMA(bars, smaShort),
		smaMedium: rollingSMA(bars, smaMedium),
		smaLong:   rollingSMA(bars, smaLong),
	}

	var out []PeriodBar
	if period == PeriodDay {
		out = make([]PeriodBar, len(bars))
		for i, b := range bars {
			out[i] = PeriodBar{
				Date:   b.DateString(),
				Open:   b.Open,
				Close:  b.Close,
				High:   b.High,
				Low:    b.Low,
				Volume: b.Volume,
				SMA5:   smas[smaShort][i],
				SMA10:  smas[smaMedium][i],
				SMA20:  smas[smaLong][i],
			}
		}
	} else {
		out = bucketize(bars, period, smas)
	}

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// bucketize groups the daily bars into calendar buckets and aggregates
// each group through the rule table. Buckets without bars are never
// emitted because grouping only ever sees days that exist.
func bucketize(bars []models.BarRecord, period Period, smas map[int][]*decimal.Decimal) []PeriodBar {
	var out []PeriodBar

	start := 0
	for i := 1; i <= len(bars); i++ {
		if i < len(bars) && bucketKey(bars[i].Date, period) == bucketKey(bars[start].Date, period) {
			continue
		}

		group := bars[start:i]
		lastIdx := i - 1
		volume := int64(0)
		for _, b := range group {
			volume += b.Volume
		}

		out = append(out, PeriodBar{
			Date:   group[len(group)-1].DateString(),
			Open:   bucketRules["open"](group),
			Close:  bucketRules["close"](group),
			High:   bucketRules["high"](group),
			Low:    bucketRules["low"](group),
			Volume: volume,
			SMA5:   smas[smaShort][lastIdx],
			SMA10:  smas[smaMedium][lastIdx],
			SMA20:  smas[smaLong][lastIdx],
		})
		start = i
	}

	return out
}

// bucketKey identifies the calendar bucket a day belongs to
func bucketKey(date time.Time, period Period) string {
	if period == PeriodWeek {
		year, week := date.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	}
	return date.Format("2006-01")
}

// rollingSMA computes the trailing simple moving average of the daily
// closes. Index i has a value only once i >= window-1; earlier entries are
// nil rather than averages of a partial window.
func rollingSMA(bars []models.BarRecord, window int) []*decimal.Decimal {
	out := make([]*decimal.Decimal, len(bars))
	if len(bars) < window {
		return out
	}

	sum := decimal.Zero
	for i, b := range bars {
		sum = sum.Add(b.Close)
		if i >= window {
			sum = sum.Sub(bars[i-window].Close)
		}
		if i >= window-1 {
			avg := sum.Div(decimal.NewFromInt(int64(window)))
			out[i] = &avg
		}
	}
	return out
}
