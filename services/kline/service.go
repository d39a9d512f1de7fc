package kline

import (
	"errors"
	"fmt"

	"kline_backend/services/forecast"
	"kline_backend/services/history"

	"gorm.io/gorm"
)

// DefaultLimit is the page-size bound applied when the caller does not ask
// for a specific number of bars
const DefaultLimit = 120

// Result is the composed kline response for one instrument
type Result struct {
	Code     string           `json:"code"`
	Name     string           `json:"name"`
	Period   Period           `json:"period"`
	Bars     []PeriodBar      `json:"bars"`
	Forecast []forecast.Point `json:"forecast"`
}

// Service serves period views of the stored history, enriched with
// indicators and an optional short-horizon forecast
type Service struct {
	store      *history.Store
	resampler  *Resampler
	forecaster *forecast.Service
}

// NewService creates a kline service
func NewService(store *history.Store, forecaster *forecast.Service) *Service {
	return &Service{
		store:      store,
		resampler:  NewResampler(),
		forecaster: forecaster,
	}
}

// GetKline returns the requested period view for an instrument. An unknown
// code is not an error: the result carries an empty series and echoes the
// code as display name. Forecasts are produced only for the daily view.
func (s *Service) GetKline(code string, period Period, limit int) (*Result, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	name := code
	if inst, err := s.store.GetInstrument(code); err == nil && inst.Name != "" {
		name = inst.Name
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup instrument %s: %w", code, err)
	}

	daily, err := s.store.Read(code, 0)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Code:     code,
		Name:     name,
		Period:   period,
		Bars:     s.resampler.Derive(daily, period, limit),
		Forecast: []forecast.Point{},
	}

	if period == PeriodDay && s.forecaster != nil {
		result.Forecast = s.forecaster.Forecast(daily)
	}

	return result, nil
}
