package catalog

import "errors"

var (
	ErrPerformanceNotFound = errors.New("performance not found")
	ErrPerformanceConflict = errors.New("performance already exists")
	ErrInvalidInput        = errors.New("invalid input")
)
