package kline

import (
	"fmt"
	"testing"

	"kline_backend/models"
	"kline_backend/services/forecast"
	"kline_backend/services/history"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestStore(t *testing.T) (*history.Store, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.MigrateMarketModels(db))
	return history.NewStore(db), db
}

type fixedAdapter struct{ preds []float64 }

func (a *fixedAdapter) Predict(closes []float64) ([]float64, error) {
	return a.preds, nil
}

func TestGetKline_UnknownCodeYieldsEmptySeries(t *testing.T) {
	store, _ := openTestStore(t)
	svc := NewService(store, nil)

	result, err := svc.GetKline("999999", PeriodDay, 0)
	require.NoError(t, err)

	assert.Equal(t, "999999", result.Code)
	assert.Equal(t, "999999", result.Name, "missing catalog entry echoes the code")
	assert.Empty(t, result.Bars)
	assert.NotNil(t, result.Forecast)
	assert.Empty(t, result.Forecast)
}

func TestGetKline_ResolvesDisplayName(t *testing.T) {
	store, db := openTestStore(t)
	require.NoError(t, db.Create(&models.Instrument{
		Code: "600519", Name: "Kweichow Moutai", Exchange: "SSE", Status: "active",
	}).Error)
	require.NoError(t, store.Replace("600519", []models.BarRecord{
		dailyBar("2024-01-08", 10, 11, 12, 9, 100),
	}))

	result, err := NewService(store, nil).GetKline("600519", PeriodDay, 0)
	require.NoError(t, err)

	assert.Equal(t, "Kweichow Moutai", result.Name)
	require.Len(t, result.Bars, 1)
	assert.True(t, result.Bars[0].Close.Equal(decimal.NewFromInt(11)))
}

func TestGetKline_ForecastOnlyForDailyView(t *testing.T) {
	store, _ := openTestStore(t)
	require.NoError(t, store.Replace("600519", weekOfBars()))

	forecaster := forecast.NewService(&fixedAdapter{preds: []float64{20, 21}}, 3)
	svc := NewService(store, forecaster)

	daily, err := svc.GetKline("600519", PeriodDay, 0)
	require.NoError(t, err)
	assert.Len(t, daily.Forecast, 2)

	weekly, err := svc.GetKline("600519", PeriodWeek, 0)
	require.NoError(t, err)
	assert.Empty(t, weekly.Forecast, "no forecast for resampled views")
}

func TestGetKline_AppliesDefaultLimit(t *testing.T) {
	store, _ := openTestStore(t)

	bars := make([]models.BarRecord, 150)
	for i := range bars {
		date := fmt.Sprintf("2023-%02d-%02d", 1+i/28, 1+i%28)
		bars[i] = dailyBar(date, 10, 11, 12, 9, 100)
	}
	require.NoError(t, store.Replace("600519", bars))

	result, err := NewService(store, nil).GetKline("600519", PeriodDay, 0)
	require.NoError(t, err)
	assert.Len(t, result.Bars, DefaultLimit)
}
