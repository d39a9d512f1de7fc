package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBody = `{
	"data": {
		"code": "600519",
		"name": "Kweichow Moutai",
		"klines": [
			"2024-01-08,1650.00,1660.50,1672.00,1645.10,35000,57810000.00,1.63,0.64,10.50,0.28",
			"2024-01-09,1661.00,1655.00,1668.80,1650.00,28000,46340000.00,1.13,-0.33,-5.50,0.22"
		]
	}
}`

func TestSecID(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{code: "600519", want: "1.600519"},
		{code: "601318", want: "1.601318"},
		{code: "000001", want: "0.000001"},
		{code: "300750", want: "0.300750"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, SecID(tt.code))
		})
	}
}

func TestFetchDaily_ParsesRows(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"secid": q.Get("secid"),
			"klt":   q.Get("klt"),
			"fqt":   q.Get("fqt"),
			"lmt":   q.Get("lmt"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleBody))
	}))
	defer srv.Close()

	bars, err := NewFetcherWithURL(srv.URL).FetchDaily(context.Background(), "600519")
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, "1.600519", gotQuery["secid"])
	assert.Equal(t, "101", gotQuery["klt"], "daily bars")
	assert.Equal(t, "1", gotQuery["fqt"], "forward adjusted")
	assert.Equal(t, "120", gotQuery["lmt"])

	first := bars[0]
	assert.Equal(t, "600519", first.Code)
	assert.Equal(t, "2024-01-08", first.DateString())
	assert.True(t, first.Open.Equal(decimal.RequireFromString("1650.00")))
	assert.True(t, first.Close.Equal(decimal.RequireFromString("1660.50")))
	assert.True(t, first.High.Equal(decimal.RequireFromString("1672.00")))
	assert.True(t, first.Low.Equal(decimal.RequireFromString("1645.10")))
	assert.Equal(t, int64(35000), first.Volume)
	assert.True(t, first.ChangePercent.Equal(decimal.RequireFromString("0.64")))

	second := bars[1]
	assert.Equal(t, "2024-01-09", second.DateString())
	assert.True(t, second.ChangeAmount.Equal(decimal.RequireFromString("-5.50")))
}

func TestFetchDaily_EmptyResult(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "null data", body: `{"data": null}`},
		{name: "empty klines", body: `{"data": {"code": "600519", "name": "x", "klines": []}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewFetcherWithURL(srv.URL).FetchDaily(context.Background(), "600519")
			assert.ErrorIs(t, err, ErrEmptyResult)
		})
	}
}

func TestFetchDaily_MalformedPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `<html>rate limited</html>`},
		{name: "short row", body: `{"data": {"klines": ["2024-01-08,1650.00,1660.50"]}}`},
		{name: "bad price", body: `{"data": {"klines": ["2024-01-08,abc,1660.50,1672.00,1645.10,35000,1,1,1,1,1"]}}`},
		{name: "bad date", body: `{"data": {"klines": ["20240108,1650.00,1660.50,1672.00,1645.10,35000,1,1,1,1,1"]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewFetcherWithURL(srv.URL).FetchDaily(context.Background(), "600519")
			require.Error(t, err)

			var fetchErr *FetchError
			require.ErrorAs(t, err, &fetchErr)
			assert.Equal(t, KindMalformedPayload, fetchErr.Kind)
			assert.Equal(t, "600519", fetchErr.Code)
		})
	}
}

func TestFetchDaily_HTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream busy", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewFetcherWithURL(srv.URL).FetchDaily(context.Background(), "600519")
	require.Error(t, err)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindHTTPStatus, fetchErr.Kind)
	assert.Contains(t, fetchErr.Error(), "502")
}

func TestFetchDaily_Timeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewFetcherWithURL(srv.URL).FetchDaily(ctx, "600519")
	require.Error(t, err)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindTimeout, fetchErr.Kind)
}

func TestParseKlineRow_FieldOrder(t *testing.T) {
	row := "2024-01-08,10.00,11.00,12.00,9.00,5000,100000.00,2.50,1.20,0.13,0.80"
	bar, err := parseKlineRow("000001", row)
	require.NoError(t, err)

	assert.Equal(t, "2024-01-08", bar.DateString())
	assert.True(t, bar.Open.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, bar.Close.Equal(decimal.RequireFromString("11.00")))
	assert.True(t, bar.High.Equal(decimal.RequireFromString("12.00")))
	assert.True(t, bar.Low.Equal(decimal.RequireFromString("9.00")))
	assert.Equal(t, int64(5000), bar.Volume)
	assert.True(t, bar.Amount.Equal(decimal.RequireFromString("100000.00")))
	assert.True(t, bar.Amplitude.Equal(decimal.RequireFromString("2.50")))
	assert.True(t, bar.ChangePercent.Equal(decimal.RequireFromString("1.20")))
	assert.True(t, bar.ChangeAmount.Equal(decimal.RequireFromString("0.13")))
	assert.True(t, bar.TurnoverRate.Equal(decimal.RequireFromString("0.80")))
}
