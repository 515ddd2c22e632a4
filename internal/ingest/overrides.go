package ingest

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/adsync/internal/model"
	"github.com/sells-group/adsync/internal/reconcile"
)

// overridesFile is the operator-maintained YAML document listing manual
// name-to-ID overrides.
type overridesFile struct {
	Overrides []overrideEntry `yaml:"overrides"`
}

type overrideEntry struct {
	Level     string `yaml:"level"`
	EntityID  string `yaml:"entity_id"`
	Name      string `yaml:"name"`
	ValidFrom string `yaml:"valid_from,omitempty"`
	ValidTo   string `yaml:"valid_to,omitempty"`
}

var overrideLevels = map[model.EntityLevel]bool{
	model.LevelCampaign: true,
	model.LevelAdGroup:  true,
	model.LevelTarget:   true,
}

// LoadOverridesFile parses a manual-overrides YAML file. Names are stored
// normalized; the raw spelling in the file is only operator convenience.
func LoadOverridesFile(path string) ([]model.ManualOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", path)
	}

	var doc overridesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "ingest: parse %s", path)
	}

	overrides := make([]model.ManualOverride, 0, len(doc.Overrides))
	for i, entry := range doc.Overrides {
		level := model.EntityLevel(entry.Level)
		if !overrideLevels[level] {
			return nil, eris.Errorf("ingest: override %d: unknown level %q", i, entry.Level)
		}
		if entry.EntityID == "" || entry.Name == "" {
			return nil, eris.Errorf("ingest: override %d: entity_id and name are required", i)
		}

		o := model.ManualOverride{
			EntityLevel: level,
			EntityID:    entry.EntityID,
			NameNorm:    reconcile.NormalizeName(entry.Name),
		}
		if o.ValidFrom, err = overrideDate(entry.ValidFrom); err != nil {
			return nil, eris.Wrapf(err, "ingest: override %d: valid_from", i)
		}
		if o.ValidTo, err = overrideDate(entry.ValidTo); err != nil {
			return nil, eris.Wrapf(err, "ingest: override %d: valid_to", i)
		}
		overrides = append(overrides, o)
	}
	return overrides, nil
}

func overrideDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return nil, eris.Errorf("bad date %q (want YYYY-MM-DD)", s)
	}
	return &t, nil
}
