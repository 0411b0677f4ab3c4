package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/metro-datahub/catalog-cli/internal/model"
)

func TestFormatIndicatorsList(t *testing.T) {
	loaded := time.Date(2026, 3, 1, 8, 15, 0, 0, time.UTC)
	indicators := []model.Indicator{
		{
			Slug:              "teen-births",
			Name:              "Teen Births",
			FileName:          "teen_births.csv",
			Published:         true,
			LastLoadCompleted: &loaded,
		},
		{
			Slug:        "median-income",
			Name:        "Median Household Income",
			LoadPending: true,
		},
	}

	var buf bytes.Buffer
	formatIndicatorsList(&buf, indicators)

	output := buf.String()
	assert.Contains(t, output, "SLUG")
	assert.Contains(t, output, "teen-births")
	assert.Contains(t, output, "pregen")
	assert.Contains(t, output, "2026-03-01 08:15")
	assert.Contains(t, output, "median-income")
	assert.Contains(t, output, "core")
	assert.Contains(t, output, "(pending)")
}

func TestFormatIndicatorsList_TruncatesLongNames(t *testing.T) {
	indicators := []model.Indicator{
		{Slug: "x", Name: "A Very Long Indicator Name That Goes On And On Forever"},
	}

	var buf bytes.Buffer
	formatIndicatorsList(&buf, indicators)

	assert.Contains(t, buf.String(), "...")
	assert.NotContains(t, buf.String(), "Forever")
}
