// Package export writes bar series and computed indicator series to
// CSV or JSON files.
package export

import (
	"strconv"
	"strings"

	"tickdata/internal/model"
)

// Saver writes a chunk of bars to a file. Implementations are selected
// by format name so callers depend only on the interface.
type Saver interface {
	Save(bars []model.Bar, path string) error
	Extension() string
}

// NewSaver creates an implementation by format (csv, json).
// Returns nil if the format is not supported.
func NewSaver(format string) Saver {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVSaver{}
	case "json":
		return JSONSaver{}
	default:
		return nil
	}
}

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
