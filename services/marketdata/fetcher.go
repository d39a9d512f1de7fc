package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kline_backend/models"

	"github.com/shopspring/decimal"
)

// Eastmoney kline API constants
const (
	KlineAPIURL  = "https://push2his.eastmoney.com/api/qt/stock/kline/get"
	klineFields1 = "f1,f2,f3,f4,f5,f6"
	klineFields2 = "f51,f52,f53,f54,f55,f56,f57,f58,f59,f60,f61"
	klineUT      = "fa5fd1943c7b386f172d6893dbfba10b"

	// klt=101 selects daily bars, fqt=1 forward-adjusted prices
	klinePeriodDaily   = "101"
	klineAdjustForward = "1"
	klineEndDate       = "20500101"

	DefaultBarLimit = 120
	fetchTimeout    = 15 * time.Second

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/112.0.0.0 Safari/537.36"
)

// Kind classifies fetch failures for logging and outcome reporting
type Kind string

const (
	KindTimeout          Kind = "timeout"
	KindHTTPStatus       Kind = "http_status"
	KindMalformedPayload Kind = "malformed_payload"
)

// ErrEmptyResult reports that the source returned no kline rows for an
// instrument. Callers treat it as "no update performed", not as a failure.
var ErrEmptyResult = errors.New("no kline rows returned")

// FetchError describes a failed fetch for one instrument
type FetchError struct {
	Code string
	Kind Kind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.Code, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// eastmoneyResponse mirrors the nested payload of the kline endpoint.
// Each kline row is a comma-joined field string.
type eastmoneyResponse struct {
	Data *struct {
		Code   string   `json:"code"`
		Name   string   `json:"name"`
		Klines []string `json:"klines"`
	} `json:"data"`
}

// Fetcher retrieves daily kline history from Eastmoney
type Fetcher struct {
	baseURL    string
	barLimit   int
	httpClient *http.Client
}

// NewFetcher creates a fetcher against the production endpoint
func NewFetcher() *Fetcher {
	return NewFetcherWithURL(KlineAPIURL)
}

// NewFetcherWithURL creates a fetcher against a custom endpoint
func NewFetcherWithURL(baseURL string) *Fetcher {
	return &Fetcher{
		baseURL:  baseURL,
		barLimit: DefaultBarLimit,
		httpClient: &http.Client{
			Timeout: fetchTimeout,
		},
	}
}

// SecID returns the market-prefixed security id the source expects:
// Shanghai codes (6xxxxx) get prefix 1, everything else prefix 0.
func SecID(code string) string {
	if strings.HasPrefix(code, "6") {
		return "1." + code
	}
	return "0." + code
}

// FetchDaily fetches and normalizes the daily bar history for one
// instrument. An empty payload yields ErrEmptyResult.
func (f *Fetcher) FetchDaily(ctx context.Context, code string) ([]models.BarRecord, error) {
	url := fmt.Sprintf("%s?secid=%s&ut=%s&fields1=%s&fields2=%s&klt=%s&fqt=%s&end=%s&lmt=%d",
		f.baseURL, SecID(code), klineUT, klineFields1, klineFields2,
		klinePeriodDaily, klineAdjustForward, klineEndDate, f.barLimit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Code: code, Kind: KindMalformedPayload, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Code: code, Kind: classifyTransport(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{
			Code: code,
			Kind: KindHTTPStatus,
			Err:  fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Code: code, Kind: classifyTransport(err), Err: err}
	}

	var payload eastmoneyResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &FetchError{
			Code: code,
			Kind: KindMalformedPayload,
			Err:  fmt.Errorf("failed to parse response: %w", err),
		}
	}

	// A missing nested structure means the source has nothing for this
	// code, not that the request failed.
	if payload.Data == nil || len(payload.Data.Klines) == 0 {
		return nil, ErrEmptyResult
	}

	bars := make([]models.BarRecord, 0, len(payload.Data.Klines))
	for _, row := range payload.Data.Klines {
		bar, err := parseKlineRow(code, row)
		if err != nil {
			return nil, &FetchError{
				Code: code,
				Kind: KindMalformedPayload,
				Err:  err,
			}
		}
		bars = append(bars, bar)
	}

	return bars, nil
}

// parseKlineRow normalizes one comma-joined kline row into a BarRecord.
// Field order: date, open, close, high, low, volume, amount, amplitude,
// change percent, change amount, turnover rate.
func parseKlineRow(code, row string) (models.BarRecord, error) {
	fields := strings.Split(row, ",")
	if len(fields) != 11 {
		return models.BarRecord{}, fmt.Errorf("kline row has %d fields, want 11: %q", len(fields), row)
	}

	date, err := time.ParseInLocation("2006-01-02", fields[0], time.UTC)
	if err != nil {
		return models.BarRecord{}, fmt.Errorf("invalid bar date %q: %w", fields[0], err)
	}

	prices := make([]decimal.Decimal, 4)
	for i, raw := range fields[1:5] {
		prices[i], err = decimal.NewFromString(raw)
		if err != nil {
			return models.BarRecord{}, fmt.Errorf("invalid price %q in row %q: %w", raw, row, err)
		}
	}

	volume, err := strconv.ParseFloat(fields[5], 64)
	if err != nil {
		return models.BarRecord{}, fmt.Errorf("invalid volume %q: %w", fields[5], err)
	}

	extras := make([]decimal.Decimal, 5)
	for i, raw := range fields[6:11] {
		extras[i], err = decimal.NewFromString(raw)
		if err != nil {
			return models.BarRecord{}, fmt.Errorf("invalid field %q in row %q: %w", raw, row, err)
		}
	}

	return models.BarRecord{
		Code:          code,
		Date:          date,
		Open:          prices[0],
		Close:         prices[1],
		High:          prices[2],
		Low:           prices[3],
		Volume:        int64(volume),
		Amount:        extras[0],
		Amplitude:     extras[1],
		ChangePercent: extras[2],
		ChangeAmount:  extras[3],
		TurnoverRate:  extras[4],
	}, nil
}

// classifyTransport maps a transport error onto the fetch taxonomy
func classifyTransport(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindHTTPStatus
}
