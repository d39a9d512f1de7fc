package history

import (
	"errors"
	"fmt"
	"time"

	"kline_backend/models"

	"gorm.io/gorm"
)

// MaxUniverseSize caps how many instruments a bulk refresh enumerates
const MaxUniverseSize = 500

// insertBatchSize bounds the row count per bulk INSERT statement
const insertBatchSize = 500

// ErrNoHistory reports that no bars are stored for an instrument
var ErrNoHistory = errors.New("no stored history")

// Store owns the persisted bar history. It is the only writer of the
// bar_records table; readers go through Read and never see a
// partially-replaced history.
type Store struct {
	db *gorm.DB
}

// NewStore creates a history store on the given database
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Replace atomically swaps the stored history for one instrument: all
// existing bars for the code are deleted and the new set inserted inside a
// single transaction. On any failure the transaction rolls back and the
// prior history stays intact.
func (s *Store) Replace(code string, bars []models.BarRecord) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("code = ?", code).Delete(&models.BarRecord{}).Error; err != nil {
			return err
		}
		if len(bars) == 0 {
			return nil
		}
		// Insert a copy: keys are reset so a previously loaded slice
		// inserts fresh rows, and the caller's bars stay untouched.
		rows := make([]models.BarRecord, len(bars))
		copy(rows, bars)
		for i := range rows {
			rows[i].ID = 0
			rows[i].Code = code
		}
		return tx.CreateInBatches(rows, insertBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("replace history for %s: transaction failed: %w", code, err)
	}
	return nil
}

// Read returns the stored daily bars for an instrument ascending by date.
// A positive limit keeps only the most recent bars.
func (s *Store) Read(code string, limit int) ([]models.BarRecord, error) {
	var bars []models.BarRecord
	query := s.db.Where("code = ?", code).Order("date ASC")
	if err := query.Find(&bars).Error; err != nil {
		return nil, fmt.Errorf("read history for %s: %w", code, err)
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

// ReadRange returns bars within [from, to] ascending by date
func (s *Store) ReadRange(code string, from, to time.Time) ([]models.BarRecord, error) {
	var bars []models.BarRecord
	err := s.db.Where("code = ? AND date BETWEEN ? AND ?", code, from, to).
		Order("date ASC").
		Find(&bars).Error
	if err != nil {
		return nil, fmt.Errorf("read history for %s: %w", code, err)
	}
	return bars, nil
}

// GetInstrument looks up catalog metadata for a code
func (s *Store) GetInstrument(code string) (*models.Instrument, error) {
	var inst models.Instrument
	if err := s.db.Where("code = ?", code).First(&inst).Error; err != nil {
		return nil, err
	}
	return &inst, nil
}

// ListActiveCodes enumerates the instrument universe for a bulk refresh
func (s *Store) ListActiveCodes() ([]string, error) {
	var codes []string
	err := s.db.Model(&models.Instrument{}).
		Where("status = ?", "active").
		Order("code ASC").
		Limit(MaxUniverseSize).
		Pluck("code", &codes).Error
	if err != nil {
		return nil, fmt.Errorf("list instrument codes: %w", err)
	}
	return codes, nil
}

// LatestDate returns the most recent stored bar date for an instrument
func (s *Store) LatestDate(code string) (time.Time, error) {
	var bar models.BarRecord
	err := s.db.Where("code = ?", code).Order("date DESC").First(&bar).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, ErrNoHistory
		}
		return time.Time{}, err
	}
	return bar.Date, nil
}

// PruneBefore deletes bars older than the cutoff across all instruments.
// Used by the weekly cleanup job.
func (s *Store) PruneBefore(cutoff time.Time) (int64, error) {
	result := s.db.Where("date < ?", cutoff).Delete(&models.BarRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("prune bars before %s: %w", cutoff.Format("2006-01-02"), result.Error)
	}
	return result.RowsAffected, nil
}
