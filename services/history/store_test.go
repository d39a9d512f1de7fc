package history

import (
	"fmt"
	"testing"
	"time"

	"kline_backend/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.MigrateMarketModels(db))
	return db
}

func bar(code, date string, close float64) models.BarRecord {
	d, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		panic(err)
	}
	return models.BarRecord{
		Code:   code,
		Date:   d,
		Open:   decimal.NewFromFloat(close - 1),
		Close:  decimal.NewFromFloat(close),
		High:   decimal.NewFromFloat(close + 1),
		Low:    decimal.NewFromFloat(close - 2),
		Volume: 1000,
	}
}

func TestReplace_Idempotent(t *testing.T) {
	store := NewStore(openTestDB(t))

	bars := []models.BarRecord{
		bar("600519", "2024-01-08", 100),
		bar("600519", "2024-01-09", 101),
		bar("600519", "2024-01-10", 102),
	}

	require.NoError(t, store.Replace("600519", bars))
	require.NoError(t, store.Replace("600519", bars))

	got, err := store.Read("600519", 0)
	require.NoError(t, err)
	require.Len(t, got, 3, "re-running the same replacement must not duplicate rows")
	assert.Equal(t, "2024-01-08", got[0].DateString())
	assert.Equal(t, "2024-01-10", got[2].DateString())
}

func TestReplace_DoesNotMutateInput(t *testing.T) {
	store := NewStore(openTestDB(t))

	bars := []models.BarRecord{bar("999999", "2024-01-08", 100)}
	bars[0].ID = 7

	require.NoError(t, store.Replace("600519", bars))

	assert.Equal(t, uint(7), bars[0].ID, "caller's slice must stay untouched")
	assert.Equal(t, "999999", bars[0].Code)

	got, err := store.Read("600519", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "600519", got[0].Code, "stored rows carry the target code")
}

func TestReplace_LeavesOtherInstrumentsAlone(t *testing.T) {
	store := NewStore(openTestDB(t))

	require.NoError(t, store.Replace("600519", []models.BarRecord{bar("600519", "2024-01-08", 100)}))
	require.NoError(t, store.Replace("000001", []models.BarRecord{bar("000001", "2024-01-08", 10)}))

	require.NoError(t, store.Replace("600519", []models.BarRecord{bar("600519", "2024-01-09", 105)}))

	other, err := store.Read("000001", 0)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.True(t, other[0].Close.Equal(decimal.NewFromInt(10)))
}

func TestReplace_RollbackKeepsPriorHistory(t *testing.T) {
	store := NewStore(openTestDB(t))

	prior := []models.BarRecord{
		bar("600519", "2024-01-08", 100),
		bar("600519", "2024-01-09", 101),
	}
	require.NoError(t, store.Replace("600519", prior))

	// Duplicate (code, date) pair violates the unique index mid-insert
	broken := []models.BarRecord{
		bar("600519", "2024-01-10", 102),
		bar("600519", "2024-01-10", 103),
	}
	err := store.Replace("600519", broken)
	require.Error(t, err)

	got, err := store.Read("600519", 0)
	require.NoError(t, err)
	require.Len(t, got, 2, "failed replacement must leave the prior history intact")
	assert.Equal(t, "2024-01-08", got[0].DateString())
	assert.Equal(t, "2024-01-09", got[1].DateString())
}

func TestReplace_EmptySetClearsHistory(t *testing.T) {
	store := NewStore(openTestDB(t))

	require.NoError(t, store.Replace("600519", []models.BarRecord{bar("600519", "2024-01-08", 100)}))
	require.NoError(t, store.Replace("600519", nil))

	got, err := store.Read("600519", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRead_AscendingWithLimit(t *testing.T) {
	store := NewStore(openTestDB(t))

	// Insert out of order; Read must sort by date
	bars := []models.BarRecord{
		bar("600519", "2024-01-10", 102),
		bar("600519", "2024-01-08", 100),
		bar("600519", "2024-01-09", 101),
	}
	require.NoError(t, store.Replace("600519", bars))

	all, err := store.Read("600519", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2024-01-08", all[0].DateString())
	assert.Equal(t, "2024-01-10", all[2].DateString())

	tail, err := store.Read("600519", 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, "2024-01-09", tail[0].DateString(), "limit keeps the most recent bars")
	assert.Equal(t, "2024-01-10", tail[1].DateString())
}

func TestReadRange(t *testing.T) {
	store := NewStore(openTestDB(t))

	bars := []models.BarRecord{
		bar("600519", "2024-01-08", 100),
		bar("600519", "2024-01-09", 101),
		bar("600519", "2024-01-10", 102),
	}
	require.NoError(t, store.Replace("600519", bars))

	from := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	got, err := store.ReadRange("600519", from, to)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2024-01-09", got[0].DateString())
}

func TestListActiveCodes(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db)

	instruments := []models.Instrument{
		{Code: "600519", Name: "Kweichow Moutai", Exchange: "SSE", Status: "active"},
		{Code: "000001", Name: "Ping An Bank", Exchange: "SZSE", Status: "active"},
		{Code: "600001", Name: "Delisted Co", Exchange: "SSE", Status: "delisted"},
	}
	require.NoError(t, db.Create(&instruments).Error)

	codes, err := store.ListActiveCodes()
	require.NoError(t, err)
	assert.Equal(t, []string{"000001", "600519"}, codes, "only active instruments, ascending by code")
}

func TestLatestDate(t *testing.T) {
	store := NewStore(openTestDB(t))

	_, err := store.LatestDate("600519")
	assert.ErrorIs(t, err, ErrNoHistory)

	bars := []models.BarRecord{
		bar("600519", "2024-01-08", 100),
		bar("600519", "2024-01-10", 102),
	}
	require.NoError(t, store.Replace("600519", bars))

	latest, err := store.LatestDate("600519")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-10", latest.Format("2006-01-02"))
}

func TestPruneBefore(t *testing.T) {
	store := NewStore(openTestDB(t))

	bars := []models.BarRecord{
		bar("600519", "2019-01-08", 50),
		bar("600519", "2024-01-08", 100),
	}
	require.NoError(t, store.Replace("600519", bars))

	cutoff := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	pruned, err := store.PruneBefore(cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	got, err := store.Read("600519", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2024-01-08", got[0].DateString())
}
