package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"tickdata/internal/indicator"
	"tickdata/internal/model"
)

// CSVSaver writes bars as CSV (header: ts,open,high,low,close,volume).
// Timestamps are RFC 3339 in UTC.
type CSVSaver struct{}

func (CSVSaver) Extension() string { return "csv" }

func (CSVSaver) Save(bars []model.Bar, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"ts", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, b := range bars {
		if err := w.Write([]string{
			b.TS.UTC().Format(time.RFC3339),
			floatStr(b.Open),
			floatStr(b.High),
			floatStr(b.Low),
			floatStr(b.Close),
			strconv.FormatInt(b.Volume, 10),
		}); err != nil {
			return err
		}
	}
	return w.Error()
}

// SaveIndicatorCSV writes bars alongside indicator columns. Column
// order follows names; cells in the warmup span are left empty. Every
// series in columns must be aligned with bars index-for-index.
func SaveIndicatorCSV(path string, bars []model.Bar, columns map[string]indicator.Series, names []string) error {
	for _, name := range names {
		s, ok := columns[name]
		if !ok {
			return fmt.Errorf("missing indicator column %q", name)
		}
		if len(s) != len(bars) {
			return fmt.Errorf("indicator column %q has %d points for %d bars", name, len(s), len(bars))
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()

	header := append([]string{"ts", "close"}, names...)
	if err := w.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for i, b := range bars {
		row[0] = b.TS.UTC().Format(time.RFC3339)
		row[1] = floatStr(b.Close)
		for j, name := range names {
			p := columns[name][i]
			if p.Defined {
				row[2+j] = floatStr(p.Value)
			} else {
				row[2+j] = ""
			}
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}
