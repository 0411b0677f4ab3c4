package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndicatorSource(t *testing.T) {
	assert.Equal(t, SourcePregen, Indicator{FileName: "rates.csv"}.Source())
	assert.Equal(t, SourceCore, Indicator{}.Source())
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Median Household Income", "median-household-income"},
		{"Teen Births (per 1,000)", "teen-births-per-1-000"},
		{"  Poverty Rate  ", "poverty-rate"},
		{"Café Access", "cafe-access"},
		{"ALL CAPS", "all-caps"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in), "Slugify(%q)", tt.in)
	}
}
