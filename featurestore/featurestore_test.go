package featurestore

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/evfleet/sohcast/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "features.csv")
	require.Nil(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeCSV(t, `vehicle,month_ts,Month,Ca,I_ave
2,2023-02-01,2,88.1,10.5
1,2023-01-01,1,90.0,11.2
1,2023-02-01,2,89.4,10.8
1,2023-02-01,2,77.7,99.9
2,2023-01-01,1,88.9,bad
`)

	table, err := Load(path)
	require.Nil(t, err)

	assert.Equal(t, []string{"Month", "Ca", "I_ave"}, table.Columns())
	assert.Equal(t, []int{1, 2}, table.Vehicles())
	// 5 input rows, one duplicate (vehicle 1 february) dropped keeping the first
	require.Equal(t, 4, table.Len())

	rows := table.Rows()
	assert.Equal(t, 1, rows[0].Vehicle)
	assert.Equal(t, 1, rows[1].Vehicle)
	assert.Equal(t, 2, rows[2].Vehicle)

	caIdx, exists := table.ColumnIndex("Ca")
	require.True(t, exists)
	// sorted by timestamp within the vehicle, first duplicate kept
	assert.Equal(t, 90.0, rows[0].Values[caIdx])
	assert.Equal(t, 89.4, rows[1].Values[caIdx])

	// uncoercible numeric entries become NaN rather than dropping the row
	iIdx, exists := table.ColumnIndex("I_ave")
	require.True(t, exists)
	assert.True(t, math.IsNaN(rows[2].Values[iIdx]))
}

func TestLoadDropsUnparseableRows(t *testing.T) {
	path := writeCSV(t, `vehicle,month_ts,Ca
1,2023-01-01,90.0
not-a-vehicle,2023-02-01,89.0
2,garbage,88.0
3,2023-03-01 10:30:00,87.5
`)

	table, err := Load(path)
	require.Nil(t, err)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, []int{1, 3}, table.Vehicles())
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.csv"))
	require.NotNil(t, err)
	assert.Equal(t, fault.KindNotFound, fault.KindOf(err))
}

func TestLoadSchemaMismatch(t *testing.T) {
	testData := map[string]struct {
		content string
	}{
		"empty file":        {""},
		"no vehicle column": {"id,month_ts,Ca\n1,2023-01-01,90.0\n"},
		"no month_ts":       {"vehicle,date,Ca\n1,2023-01-01,90.0\n"},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			path := writeCSV(t, td.content)
			_, err := Load(path)
			require.NotNil(t, err)
			assert.Equal(t, fault.KindSchemaMismatch, fault.KindOf(err))
		})
	}
}

func TestMissingColumns(t *testing.T) {
	path := writeCSV(t, "vehicle,month_ts,Month,Ca\n1,2023-01-01,1,90.0\n")
	table, err := Load(path)
	require.Nil(t, err)

	assert.Empty(t, table.MissingColumns("Month", "Ca"))
	assert.Equal(t, []string{"I_ave", "SOC_ave"}, table.MissingColumns("I_ave", "Ca", "SOC_ave"))
}

func TestNewVehicleSlice(t *testing.T) {
	path := writeCSV(t, `vehicle,month_ts,Month,Ca,I_ave,Tmax_ave,Tmin_ave
1,2023-01-01,1,90.0,11.2,25.0,10.0
1,2023-02-01,2,,10.8,26.0,11.0
1,2023-03-01,3,88.2,10.5,28.0,12.0
2,2023-01-01,1,85.0,9.9,25.0,10.0
`)
	table, err := Load(path)
	require.Nil(t, err)

	s, err := NewVehicleSlice(table, 1, []string{"I_ave"})
	require.Nil(t, err)

	// the february row has no observed capacity and is filtered out
	assert.Equal(t, []float64{90.0, 88.2}, s.Capacity)
	assert.Equal(t, []int{1, 3}, s.Month)
	assert.Equal(t, []float64{25.0, 28.0}, s.Tmax)
	assert.Equal(t, []float64{10.0, 12.0}, s.Tmin)

	r, c := s.Features.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 1, c)
	assert.Equal(t, 11.2, s.Features.At(0, 0))
	assert.Equal(t, 10.5, s.Features.At(1, 0))
}

func TestNewVehicleSliceNoTemperatures(t *testing.T) {
	path := writeCSV(t, "vehicle,month_ts,Month,Ca\n1,2023-01-01,1,90.0\n")
	table, err := Load(path)
	require.Nil(t, err)

	s, err := NewVehicleSlice(table, 1, nil)
	require.Nil(t, err)
	require.Equal(t, 1, len(s.Tmax))
	assert.True(t, math.IsNaN(s.Tmax[0]))
	assert.True(t, math.IsNaN(s.Tmin[0]))
}

func TestNewVehicleSliceErrors(t *testing.T) {
	path := writeCSV(t, `vehicle,month_ts,Month,Ca,I_ave
1,2023-01-01,1,90.0,11.2
2,2023-01-01,1,,9.9
`)
	table, err := Load(path)
	require.Nil(t, err)

	testData := map[string]struct {
		vehicle     int
		useFeatures []string
		kind        fault.Kind
	}{
		"unknown vehicle":        {99, []string{"I_ave"}, fault.KindVehicleNotFound},
		"capacity all missing":   {2, []string{"I_ave"}, fault.KindVehicleNotFound},
		"missing feature column": {1, []string{"I_ave", "SOC_ave"}, fault.KindSchemaMismatch},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			_, err := NewVehicleSlice(table, td.vehicle, td.useFeatures)
			require.NotNil(t, err)
			assert.Equal(t, td.kind, fault.KindOf(err))
		})
	}
}
