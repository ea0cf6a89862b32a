package models

import (
	"fmt"
	"time"
)

// FeatureImportance pairs a model feature with its weight
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// ModelInfo describes the currently trained random forest
type ModelInfo struct {
	NTrees              int                 `json:"n_trees"`
	MaxDepth            int                 `json:"max_depth"`
	NSamples            int                 `json:"n_samples"`
	MinSamplesSplit     int                 `json:"min_samples_split"`
	MinSamplesLeaf      int                 `json:"min_samples_leaf"`
	MaxFeatures         int                 `json:"max_features"`
	TrainSize           int                 `json:"train_size"`
	TestSize            int                 `json:"test_size"`
	TrainAccuracy       float64             `json:"train_accuracy"`
	TestAccuracy        float64             `json:"test_accuracy"`
	F1Score             float64             `json:"f1_score"`
	Precision           float64             `json:"precision"`
	Recall              float64             `json:"recall"`
	FeatureImportances  []FeatureImportance `json:"feature_importances"`
	TrainingTimeSeconds float64             `json:"training_time_seconds"`
	OOBScore            float64             `json:"oob_score"`
}

// TrainParams are the random forest hyperparameters sent with a retraining upload
type TrainParams struct {
	NTrees          int `json:"n_trees" form:"n_trees"`
	MaxDepth        int `json:"max_depth" form:"max_depth"`
	MinSamplesSplit int `json:"min_samples_split" form:"min_samples_split"`
	MinSamplesLeaf  int `json:"min_samples_leaf" form:"min_samples_leaf"`
	MaxFeatures     int `json:"max_features" form:"max_features"`
}

// DefaultTrainParams mirrors the defaults of the retraining form
func DefaultTrainParams() TrainParams {
	return TrainParams{
		NTrees:          100,
		MaxDepth:        20,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     10,
	}
}

// Validate checks that every hyperparameter is positive
func (p TrainParams) Validate() error {
	fields := []struct {
		name  string
		value int
	}{
		{"n_trees", p.NTrees},
		{"max_depth", p.MaxDepth},
		{"min_samples_split", p.MinSamplesSplit},
		{"min_samples_leaf", p.MinSamplesLeaf},
		{"max_features", p.MaxFeatures},
	}
	for _, f := range fields {
		if f.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", f.name, f.value)
		}
	}
	return nil
}

// TrainingRun is the persisted record of one retraining request
type TrainingRun struct {
	ID              string     `json:"id" gorm:"primaryKey;size:36"`
	FileName        string     `json:"file_name"`
	FileSize        int64      `json:"file_size"`
	NTrees          int        `json:"n_trees"`
	MaxDepth        int        `json:"max_depth"`
	MinSamplesSplit int        `json:"min_samples_split"`
	MinSamplesLeaf  int        `json:"min_samples_leaf"`
	MaxFeatures     int        `json:"max_features"`
	Status          string     `json:"status" gorm:"index"`
	TestAccuracy    float64    `json:"test_accuracy"`
	F1Score         float64    `json:"f1_score"`
	Error           string     `json:"error,omitempty"`
	StartedAt       time.Time  `json:"started_at" gorm:"index"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}
