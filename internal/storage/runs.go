package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nshruti113/ddos-defense-dashboard/internal/models"
)

var ErrRunNotFound = errors.New("training run not found")

// RunStore persists retraining runs in SQLite
type RunStore struct {
	db *gorm.DB
}

// OpenRunStore opens (or creates) the database at path and migrates the
// schema. Use ":memory:" in tests.
func OpenRunStore(path string) (*RunStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// each pooled connection would get its own empty in-memory database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&models.TrainingRun{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &RunStore{db: db}, nil
}

func (s *RunStore) Create(run *models.TrainingRun) error {
	if err := s.db.Create(run).Error; err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.ID, err)
	}
	return nil
}

// Finish records the final status of a run
func (s *RunStore) Finish(id string, status string, info *models.ModelInfo, runErr error) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":      status,
		"finished_at": &now,
	}
	if info != nil {
		updates["test_accuracy"] = info.TestAccuracy
		updates["f1_score"] = info.F1Score
	}
	if runErr != nil {
		updates["error"] = runErr.Error()
	}

	result := s.db.Model(&models.TrainingRun{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to finish run %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *RunStore) Get(id string) (*models.TrainingRun, error) {
	var run models.TrainingRun
	if err := s.db.First(&run, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return &run, nil
}

// List returns the newest runs first
func (s *RunStore) List(limit int) ([]models.TrainingRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []models.TrainingRun
	if err := s.db.Order("started_at desc").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (s *RunStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
