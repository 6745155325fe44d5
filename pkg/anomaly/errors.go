package anomaly

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig matches every ConfigError via errors.Is.
	ErrConfig = errors.New("invalid configuration")
	// ErrDataShape matches every DataShapeError via errors.Is.
	ErrDataShape = errors.New("invalid data shape")
)

// ConfigError reports a parameter outside its valid range. It is returned
// before any model is fitted.
type ConfigError struct {
	Param string
	Value any
	Range string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %v: must be in %s", e.Param, e.Value, e.Range)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// DataShapeError reports a missing or non-numeric feature column.
type DataShapeError struct {
	Column string
	Row    string
	Reason string
}

func (e *DataShapeError) Error() string {
	if e.Row == "" {
		return fmt.Sprintf("column %s: %s", e.Column, e.Reason)
	}
	return fmt.Sprintf("column %s, row %s: %s", e.Column, e.Row, e.Reason)
}

func (e *DataShapeError) Unwrap() error { return ErrDataShape }

// InsufficientData describes a routine shortfall: too few rows for an
// operation. It travels on results, never as an error.
type InsufficientData struct {
	Operation string
	Have      int
	Need      int
}

func (i InsufficientData) String() string {
	return fmt.Sprintf("%s: insufficient data (have %d, need %d)", i.Operation, i.Have, i.Need)
}
