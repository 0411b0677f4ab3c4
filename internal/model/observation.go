package model

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// DataType tags whether an observation cell parsed as a number or not.
type DataType string

const (
	DataTypeNumeric DataType = "numeric"
	DataTypeString  DataType = "string"
)

// Observation is one (time, key, value) data point attached to an indicator.
// Exactly one of Numeric/String is set, per DataType.
type Observation struct {
	ID          string    `json:"id,omitempty"`
	IndicatorID string    `json:"indicator_id"`
	TimeType    string    `json:"time_type"`
	TimeKey     string    `json:"time_key"`
	KeyUnitType string    `json:"key_unit_type"`
	KeyValue    string    `json:"key_value"`
	DataType    DataType  `json:"data_type"`
	Numeric     *float64  `json:"numeric,omitempty"`
	String      *string   `json:"string,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// CellValue is the tagged result of classifying one raw cell.
type CellValue struct {
	DataType DataType
	Numeric  *float64
	String   *string
}

// ClassifyCell classifies a raw cell value: numeric if it parses as a decimal
// floating-point literal (optional sign, digits, optional fractional part,
// optional exponent), string otherwise. Parse failure is a normal branch.
// ParseFloat alone would also take Go-only forms — hex floats and underscore
// digit separators — so those are screened out first. An exponent outside
// float64 range still classifies as numeric and saturates per IEEE 754.
func ClassifyCell(raw string) CellValue {
	if !strings.ContainsAny(raw, "xX_") {
		if f, err := strconv.ParseFloat(raw, 64); err == nil || errors.Is(err, strconv.ErrRange) {
			return CellValue{DataType: DataTypeNumeric, Numeric: &f}
		}
	}
	s := raw
	return CellValue{DataType: DataTypeString, String: &s}
}

// NewObservation builds an observation for a pregen part's cell value.
func NewObservation(indicatorID string, part PregenPart, raw string) Observation {
	cell := ClassifyCell(raw)
	return Observation{
		IndicatorID: indicatorID,
		TimeType:    part.TimeType,
		TimeKey:     part.TimeValue,
		KeyUnitType: part.KeyType,
		KeyValue:    raw,
		DataType:    cell.DataType,
		Numeric:     cell.Numeric,
		String:      cell.String,
	}
}
