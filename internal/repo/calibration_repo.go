package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/miradorstack/mirador-synergy/internal/models"
)

// calibrationSampleRow is the persisted form of a CalibrationSample.
type calibrationSampleRow struct {
	ID                  uint      `gorm:"primaryKey"`
	SuggestionID        string    `gorm:"index;size:64"`
	PredictedConfidence float64   `gorm:"not null"`
	Outcome             bool      `gorm:"not null"`
	Features            string    `gorm:"type:text"`
	StatisticalInput    *float64
	OnlineInput         *float64
	RecordedAt          time.Time `gorm:"index;not null"`
}

func (calibrationSampleRow) TableName() string { return "calibration_samples" }

// feedbackRow keeps the raw user feedback next to the derived samples.
type feedbackRow struct {
	ID           uint   `gorm:"primaryKey"`
	SuggestionID string `gorm:"index;size:64"`
	Accepted     bool
	Rating       int
	Text         string    `gorm:"type:text"`
	SubmittedAt  time.Time `gorm:"index"`
}

func (feedbackRow) TableName() string { return "feedback" }

// CalibrationRepo persists calibration samples and feedback in SQLite.
type CalibrationRepo struct {
	db *gorm.DB
}

// NewCalibrationRepo opens dsn and migrates the schema. Use ":memory:" for tests.
func NewCalibrationRepo(dsn string) (*CalibrationRepo, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open calibration store: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open calibration store: %w", err)
	}
	// sqlite serialises writers; a single connection also keeps ":memory:" databases shared
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&calibrationSampleRow{}, &feedbackRow{}); err != nil {
		return nil, fmt.Errorf("migrate calibration store: %w", err)
	}
	return &CalibrationRepo{db: db}, nil
}

// SaveSample implements calibration.Persister.
func (r *CalibrationRepo) SaveSample(ctx context.Context, sample models.CalibrationSample) error {
	features := ""
	if len(sample.Features) > 0 {
		data, err := json.Marshal(sample.Features)
		if err != nil {
			return fmt.Errorf("encode features: %w", err)
		}
		features = string(data)
	}
	row := calibrationSampleRow{
		SuggestionID:        sample.SuggestionID,
		PredictedConfidence: sample.PredictedConfidence,
		Outcome:             sample.Outcome,
		Features:            features,
		RecordedAt:          sample.RecordedAt.UTC(),
	}
	if sample.Stages != nil {
		row.StatisticalInput = &sample.Stages.Statistical
		row.OnlineInput = &sample.Stages.Online
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// LoadSamples implements calibration.Persister. It returns the newest limit samples
// oldest first; limit <= 0 returns everything.
func (r *CalibrationRepo) LoadSamples(ctx context.Context, limit int) ([]models.CalibrationSample, error) {
	var rows []calibrationSampleRow
	q := r.db.WithContext(ctx).Order("recorded_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load calibration samples: %w", err)
	}

	samples := make([]models.CalibrationSample, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		sample := models.CalibrationSample{
			SuggestionID:        row.SuggestionID,
			PredictedConfidence: row.PredictedConfidence,
			Outcome:             row.Outcome,
			RecordedAt:          row.RecordedAt,
		}
		if row.StatisticalInput != nil && row.OnlineInput != nil {
			sample.Stages = &models.StageInputs{Statistical: *row.StatisticalInput, Online: *row.OnlineInput}
		}
		if row.Features != "" {
			if err := json.Unmarshal([]byte(row.Features), &sample.Features); err != nil {
				continue
			}
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

// SaveFeedback records the raw feedback event.
func (r *CalibrationRepo) SaveFeedback(ctx context.Context, fb models.Feedback) error {
	row := feedbackRow{
		SuggestionID: fb.SuggestionID,
		Accepted:     fb.Accepted,
		Rating:       fb.Rating,
		Text:         fb.Text,
		SubmittedAt:  fb.SubmittedAt.UTC(),
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// CountFeedback returns how many feedback events are stored.
func (r *CalibrationRepo) CountFeedback(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&feedbackRow{}).Count(&n).Error
	return n, err
}

// Close releases the underlying connection pool.
func (r *CalibrationRepo) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
