package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Instrument represents a listed security that the sync pipeline tracks.
// Reference data only: rows are seeded or imported, never written by the
// ingestion workers.
type Instrument struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"uniqueIndex;not null;size:16" json:"code"`
	Name      string    `json:"name"`
	Exchange  string    `json:"exchange"` // SSE, SZSE
	Status    string    `gorm:"default:'active'" json:"status"` // active, delisted, suspended
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BarRecord represents one daily OHLCV bar for an instrument.
// The (code, date) pair is unique; the full per-instrument set is replaced
// atomically on every refresh.
type BarRecord struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Code          string          `gorm:"index:idx_bar_code_date,unique;size:16;not null" json:"code"`
	Date          time.Time       `gorm:"index:idx_bar_code_date,unique;not null" json:"date"`
	Open          decimal.Decimal `gorm:"type:decimal(15,2)" json:"open"`
	Close         decimal.Decimal `gorm:"type:decimal(15,2)" json:"close"`
	High          decimal.Decimal `gorm:"type:decimal(15,2)" json:"high"`
	Low           decimal.Decimal `gorm:"type:decimal(15,2)" json:"low"`
	Volume        int64           `json:"volume"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,2)" json:"amount"`
	Amplitude     decimal.Decimal `gorm:"type:decimal(10,4)" json:"amplitude"`
	ChangePercent decimal.Decimal `gorm:"type:decimal(10,4)" json:"change_percent"`
	ChangeAmount  decimal.Decimal `gorm:"type:decimal(15,2)" json:"change_amount"`
	TurnoverRate  decimal.Decimal `gorm:"type:decimal(10,4)" json:"turnover_rate"`
	CreatedAt     time.Time       `json:"created_at"`
}

// DateString returns the bar date in the wire format used by the API.
func (b *BarRecord) DateString() string {
	return b.Date.Format("2006-01-02")
}

// MigrateMarketModels runs database migrations for market data models
func MigrateMarketModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Instrument{},
		&BarRecord{},
	)
}

// SeedDefaultInstruments inserts a starter universe when the catalog is
// empty, so a fresh deployment has something to sync.
func SeedDefaultInstruments(db *gorm.DB) error {
	var count int64
	if err := db.Model(&Instrument{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	instruments := []Instrument{
		{Code: "600519", Name: "Kweichow Moutai", Exchange: "SSE", Status: "active"},
		{Code: "601318", Name: "Ping An Insurance", Exchange: "SSE", Status: "active"},
		{Code: "600036", Name: "China Merchants Bank", Exchange: "SSE", Status: "active"},
		{Code: "600900", Name: "China Yangtze Power", Exchange: "SSE", Status: "active"},
		{Code: "000001", Name: "Ping An Bank", Exchange: "SZSE", Status: "active"},
		{Code: "000858", Name: "Wuliangye Yibin", Exchange: "SZSE", Status: "active"},
		{Code: "000333", Name: "Midea Group", Exchange: "SZSE", Status: "active"},
		{Code: "300750", Name: "CATL", Exchange: "SZSE", Status: "active"},
	}

	return db.Create(&instruments).Error
}
