package pregen

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/metro-datahub/catalog-cli/internal/model"
)

// Manifest declares pregen part bindings per indicator slug. Operators keep
// it under version control next to the pregen files and apply it with
// `pregen sync`.
type Manifest struct {
	Indicators []ManifestIndicator `yaml:"indicators"`
}

// ManifestIndicator holds the part bindings for one indicator.
type ManifestIndicator struct {
	Slug  string         `yaml:"slug"`
	Parts []ManifestPart `yaml:"parts"`
}

// ManifestPart is one column binding as declared in the manifest.
type ManifestPart struct {
	TimeType   string `yaml:"time_type"`
	TimeValue  string `yaml:"time_value"`
	KeyType    string `yaml:"key_type"`
	ColumnName string `yaml:"column_name"`
	FileName   string `yaml:"file_name"`
}

// Part converts a manifest entry to a model part for the given indicator.
func (p ManifestPart) Part(indicatorID string) model.PregenPart {
	return model.PregenPart{
		IndicatorID: indicatorID,
		TimeType:    p.TimeType,
		TimeValue:   p.TimeValue,
		KeyType:     p.KeyType,
		ColumnName:  p.ColumnName,
		FileName:    p.FileName,
	}
}

// LoadManifest reads a part-binding manifest from a YAML file.
// The YAML has a top-level "pregen" key.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pregen: read manifest %s", path)
	}

	var wrapper struct {
		Pregen Manifest `yaml:"pregen"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrapf(err, "pregen: parse manifest %s", path)
	}

	m := &wrapper.Pregen
	for _, ind := range m.Indicators {
		if ind.Slug == "" {
			return nil, eris.Errorf("pregen: manifest %s: indicator with empty slug", path)
		}
		for _, part := range ind.Parts {
			if part.ColumnName == "" || part.FileName == "" {
				return nil, eris.Errorf("pregen: manifest %s: indicator %q: part missing column_name or file_name", path, ind.Slug)
			}
		}
	}
	return m, nil
}
