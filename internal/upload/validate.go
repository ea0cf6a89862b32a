package upload

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	MB = 1 << 20

	// RetrainLimit applies to datasets uploaded for model retraining
	RetrainLimit int64 = 20 * MB
	// DatasetLimit applies to the dataset management view
	DatasetLimit int64 = 50 * MB
)

var (
	ErrNotCSV    = errors.New("only .csv files are accepted")
	ErrEmptyFile = errors.New("file is empty")
	ErrTooLarge  = errors.New("file exceeds the size limit")
)

// Validate checks a file before anything is sent to the backend
func Validate(name string, size, limit int64) error {
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return fmt.Errorf("%w: %q", ErrNotCSV, name)
	}
	if size <= 0 {
		return fmt.Errorf("%w: %q", ErrEmptyFile, name)
	}
	if limit > 0 && size > limit {
		return fmt.Errorf("%w: %q is %.1f MB, limit is %d MB", ErrTooLarge, name, float64(size)/MB, limit/MB)
	}
	return nil
}

// IsValidationError reports whether err came from Validate
func IsValidationError(err error) bool {
	return errors.Is(err, ErrNotCSV) || errors.Is(err, ErrEmptyFile) || errors.Is(err, ErrTooLarge)
}
