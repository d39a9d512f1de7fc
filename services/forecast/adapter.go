package forecast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"kline_backend/models"
)

// Forecast window constants. The model consumes the trailing 60 daily
// closes and emits 5 future points.
const (
	DefaultLookback = 60
	DefaultHorizon  = 5

	predictTimeout = 10 * time.Second
)

// Point is one forecast value with its forward-dated label
type Point struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

// Adapter is the opaque inference boundary: given an ordered window of
// daily closes it returns a short forecast sequence. Input normalization
// and the model itself live behind this interface.
type Adapter interface {
	Predict(closes []float64) ([]float64, error)
}

// Service owns the windowing and date-labeling contract around the
// adapter. Adapter failures degrade to an empty forecast and never abort
// the serving request.
type Service struct {
	adapter  Adapter
	lookback int
}

// NewService creates a forecast service. lookback <= 0 selects
// DefaultLookback; a nil adapter disables forecasting.
func NewService(adapter Adapter, lookback int) *Service {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Service{adapter: adapter, lookback: lookback}
}

// Forecast produces forward-dated points from the tail of a daily series.
// A series shorter than the lookback yields an empty sequence without
// invoking the adapter.
func (s *Service) Forecast(bars []models.BarRecord) []Point {
	if s.adapter == nil || len(bars) < s.lookback {
		return []Point{}
	}

	closes := make([]float64, s.lookback)
	tail := bars[len(bars)-s.lookback:]
	for i, b := range tail {
		closes[i], _ = b.Close.Float64()
	}

	preds, err := s.adapter.Predict(closes)
	if err != nil {
		log.Printf("Forecast adapter failed: %v", err)
		return []Point{}
	}

	lastDate := bars[len(bars)-1].Date
	points := make([]Point, 0, len(preds))
	for i, price := range preds {
		points = append(points, Point{
			Date:  lastDate.AddDate(0, 0, i+1).Format("2006-01-02"),
			Price: price,
		})
	}
	return points
}

// HTTPAdapter calls an external model server's inference endpoint
type HTTPAdapter struct {
	url        string
	horizon    int
	httpClient *http.Client
}

// NewHTTPAdapter creates an adapter posting windows to the given base URL
func NewHTTPAdapter(url string) *HTTPAdapter {
	return &HTTPAdapter{
		url:     url,
		horizon: DefaultHorizon,
		httpClient: &http.Client{
			Timeout: predictTimeout,
		},
	}
}

type predictRequest struct {
	Closes  []float64 `json:"closes"`
	Horizon int       `json:"horizon"`
}

type predictResponse struct {
	Predictions []float64 `json:"predictions"`
}

// Predict sends the close window to the model server
func (a *HTTPAdapter) Predict(closes []float64) ([]float64, error) {
	payload, err := json.Marshal(predictRequest{Closes: closes, Horizon: a.horizon})
	if err != nil {
		return nil, fmt.Errorf("failed to encode predict request: %w", err)
	}

	resp, err := a.httpClient.Post(a.url+"/predict", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("predict request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("model server error (status %d): %s", resp.StatusCode, string(body))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode predict response: %w", err)
	}
	return out.Predictions, nil
}
