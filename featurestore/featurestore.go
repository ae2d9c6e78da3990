// Package featurestore loads and cleans the master per-vehicle monthly
// feature table and extracts per-vehicle slices for forecasting.
package featurestore

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/evfleet/sohcast/fault"
)

// Well known column names of the feature table.
const (
	ColVehicle  = "vehicle"
	ColMonthTS  = "month_ts"
	ColMonth    = "Month"
	ColCapacity = "Ca"
	ColTmax     = "Tmax_ave"
	ColTmin     = "Tmin_ave"
)

// accepted month_ts layouts, tried in order
var monthTSLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01",
}

// Row is one vehicle-month sample. Values holds every numeric column in
// table column order with NaN marking missing or uncoercible entries.
type Row struct {
	Vehicle int
	MonthTS time.Time
	Values  []float64
}

// Table is the cleaned master feature table: rows sorted by
// (vehicle, month_ts) and unique per that pair. Read-only after Load.
type Table struct {
	cols  []string
	index map[string]int
	rows  []Row
}

// Load reads the feature CSV at path, coerces every column other than the
// vehicle identifier and month timestamp to numeric (invalid values become
// NaN), sorts by (vehicle, month_ts), and drops duplicate pairs keeping the
// first occurrence. Rows whose identifier or timestamp cannot be parsed are
// dropped as part of cleaning.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fault.Wrap(fault.KindNotFound, err, "feature table %s", path)
		}
		return nil, fmt.Errorf("unable to open feature table %s, %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("unable to read feature table %s, %w", path, err)
	}
	if len(records) == 0 {
		return nil, fault.New(fault.KindSchemaMismatch, "feature table %s has no header row", path)
	}

	header := records[0]
	vehicleIdx, tsIdx := -1, -1
	var cols []string
	var colIdx []int
	for i, name := range header {
		name = strings.TrimSpace(name)
		switch name {
		case ColVehicle:
			vehicleIdx = i
		case ColMonthTS:
			tsIdx = i
		default:
			cols = append(cols, name)
			colIdx = append(colIdx, i)
		}
	}
	if vehicleIdx < 0 || tsIdx < 0 {
		return nil, fault.New(fault.KindSchemaMismatch,
			"feature table %s is missing identifier columns %q and/or %q", path, ColVehicle, ColMonthTS)
	}

	index := make(map[string]int, len(cols))
	for i, name := range cols {
		index[name] = i
	}

	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) != len(header) {
			continue
		}
		vehicle, err := strconv.Atoi(strings.TrimSpace(rec[vehicleIdx]))
		if err != nil {
			continue
		}
		ts, ok := parseMonthTS(strings.TrimSpace(rec[tsIdx]))
		if !ok {
			continue
		}
		values := make([]float64, len(cols))
		for i, src := range colIdx {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[src]), 64)
			if err != nil {
				v = math.NaN()
			}
			values[i] = v
		}
		rows = append(rows, Row{Vehicle: vehicle, MonthTS: ts, Values: values})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Vehicle != rows[j].Vehicle {
			return rows[i].Vehicle < rows[j].Vehicle
		}
		return rows[i].MonthTS.Before(rows[j].MonthTS)
	})

	deduped := rows[:0]
	for _, row := range rows {
		if n := len(deduped); n > 0 && deduped[n-1].Vehicle == row.Vehicle && deduped[n-1].MonthTS.Equal(row.MonthTS) {
			continue
		}
		deduped = append(deduped, row)
	}

	return &Table{
		cols:  cols,
		index: index,
		rows:  deduped,
	}, nil
}

func parseMonthTS(s string) (time.Time, bool) {
	for _, layout := range monthTSLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Columns returns the numeric column names in table order.
func (t *Table) Columns() []string {
	cols := make([]string, len(t.cols))
	copy(cols, t.cols)
	return cols
}

// ColumnIndex returns the position of a numeric column within Row.Values.
func (t *Table) ColumnIndex(name string) (int, bool) {
	idx, exists := t.index[name]
	return idx, exists
}

// MissingColumns returns the subset of names absent from the table.
func (t *Table) MissingColumns(names ...string) []string {
	var missing []string
	for _, name := range names {
		if _, exists := t.index[name]; !exists {
			missing = append(missing, name)
		}
	}
	return missing
}

// Vehicles returns the sorted unique vehicle identifiers.
func (t *Table) Vehicles() []int {
	var vids []int
	for i, row := range t.rows {
		if i == 0 || row.Vehicle != t.rows[i-1].Vehicle {
			vids = append(vids, row.Vehicle)
		}
	}
	return vids
}

// Rows returns the cleaned rows. The slice is shared and must not be mutated.
func (t *Table) Rows() []Row {
	return t.rows
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}
