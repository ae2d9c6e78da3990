package featurestore

import (
	"math"

	"github.com/evfleet/sohcast/fault"
	"gonum.org/v1/gonum/mat"
)

// VehicleSlice is one vehicle's time ordered sub-series filtered to rows with
// an observed capacity. Features holds the useFeatures columns in the order
// they were requested, which is the column order every downstream matrix
// assumes. Read-only once built.
type VehicleSlice struct {
	Vehicle  int
	Capacity []float64
	Features *mat.Dense
	Month    []int
	Tmax     []float64
	Tmin     []float64
}

// NewVehicleSlice extracts the capacity vector, feature matrix, month-of-year
// vector, and temperature extremes for one vehicle. Fails with
// VehicleNotFound if no rows with observed capacity remain, or
// SchemaMismatch if any requested feature column is absent.
func NewVehicleSlice(table *Table, vehicle int, useFeatures []string) (*VehicleSlice, error) {
	if missing := table.MissingColumns(useFeatures...); len(missing) > 0 {
		return nil, fault.New(fault.KindSchemaMismatch,
			"feature table is missing configured feature columns %v", missing)
	}
	if missing := table.MissingColumns(ColCapacity, ColMonth); len(missing) > 0 {
		return nil, fault.New(fault.KindSchemaMismatch,
			"feature table is missing columns %v", missing)
	}

	caIdx, _ := table.ColumnIndex(ColCapacity)
	monIdx, _ := table.ColumnIndex(ColMonth)
	tmaxIdx, hasTmax := table.ColumnIndex(ColTmax)
	tminIdx, hasTmin := table.ColumnIndex(ColTmin)
	featIdx := make([]int, len(useFeatures))
	for i, name := range useFeatures {
		featIdx[i], _ = table.ColumnIndex(name)
	}

	var rows []Row
	for _, row := range table.Rows() {
		if row.Vehicle != vehicle || math.IsNaN(row.Values[caIdx]) {
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, fault.New(fault.KindVehicleNotFound,
			"no rows with observed capacity for vehicle %d", vehicle)
	}

	s := &VehicleSlice{
		Vehicle:  vehicle,
		Capacity: make([]float64, len(rows)),
		Features: mat.NewDense(len(rows), len(useFeatures), nil),
		Month:    make([]int, len(rows)),
		Tmax:     make([]float64, len(rows)),
		Tmin:     make([]float64, len(rows)),
	}
	for i, row := range rows {
		s.Capacity[i] = row.Values[caIdx]
		s.Month[i] = int(row.Values[monIdx])
		for j, idx := range featIdx {
			s.Features.Set(i, j, row.Values[idx])
		}
		s.Tmax[i] = math.NaN()
		s.Tmin[i] = math.NaN()
		if hasTmax {
			s.Tmax[i] = row.Values[tmaxIdx]
		}
		if hasTmin {
			s.Tmin[i] = row.Values[tminIdx]
		}
	}
	return s, nil
}
