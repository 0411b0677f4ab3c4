package model

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// IndicatorSource describes where an indicator's data comes from.
type IndicatorSource string

const (
	// SourcePregen marks indicators populated from pre-generated delimited files.
	SourcePregen IndicatorSource = "pregen"
	// SourceCore marks indicators computed live by the core system.
	SourceCore IndicatorSource = "core"
)

// Indicator is a catalog item (a metric definition) whose time-series
// observations are populated either from pregen files or by the core system.
type Indicator struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	DisplayName string `json:"display_name,omitempty"`

	// FileName is the pregen source marker: non-empty means the indicator's
	// data is loaded from pre-generated files rather than computed by core.
	FileName string `json:"file_name,omitempty"`

	ShortDefinition string `json:"short_definition,omitempty"`
	LongDefinition  string `json:"long_definition,omitempty"`
	Purpose         string `json:"purpose,omitempty"`
	Universe        string `json:"universe,omitempty"`
	Limitations     string `json:"limitations,omitempty"`
	RoutineUse      string `json:"routine_use,omitempty"`

	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	DataType string   `json:"data_type,omitempty"`
	Notes    string   `json:"notes,omitempty"`

	DataLevels             []string `json:"data_levels,omitempty"`
	QueryLevel             string   `json:"query_level,omitempty"`
	SuppressionNumerator   *int     `json:"suppression_numerator,omitempty"`
	SuppressionDenominator *int     `json:"suppression_denominator,omitempty"`

	Published         bool       `json:"published"`
	VisibleInAllLists bool       `json:"visible_in_all_lists"`
	LoadPending       bool       `json:"load_pending"`
	LastLoadCompleted *time.Time `json:"last_load_completed,omitempty"`
	LastAudited       *time.Time `json:"last_audited,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Source reports whether the indicator is pregen-file backed or core-computed.
func (i Indicator) Source() IndicatorSource {
	if i.FileName != "" {
		return SourcePregen
	}
	return SourceCore
}

// PregenPart binds one column of a pregen file to an indicator: which file to
// read, which header column to extract, and the time/key coordinates to stamp
// on every observation produced from it.
type PregenPart struct {
	ID          string `json:"id"`
	IndicatorID string `json:"indicator_id"`
	TimeType    string `json:"time_type"`
	TimeValue   string `json:"time_value"`
	KeyType     string `json:"key_type"`
	ColumnName  string `json:"column_name"`
	FileName    string `json:"file_name"`
}

// DataSource is an upstream provider credited on indicators.
type DataSource struct {
	ID        string `json:"id"`
	ShortName string `json:"short_name"`
	Name      string `json:"name"`
	URL       string `json:"url,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

var slugStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify derives a URL-safe slug from an indicator name: diacritics stripped,
// lowercased, runs of non-alphanumerics collapsed to single hyphens.
func Slugify(name string) string {
	stripped, _, err := transform.String(slugStripper, name)
	if err != nil {
		stripped = name
	}

	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(stripped) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
