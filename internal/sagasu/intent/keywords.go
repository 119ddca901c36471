package intent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Keywords holds the substring sets the rule matchers and the laptop
// classifier work with.  Matching is case-insensitive substring containment —
// deliberately no tokenization or stemming, so the Chinese entries match as
// plain substrings.
type Keywords struct {
	// License triggers the license-expiry rule.
	License []string `yaml:"license"`
	// Device, combined with a two-letter location token, triggers the
	// location rule.
	Device []string `yaml:"device"`
	// Laptop plus an AgeQualifier triggers the old-laptops rule.
	Laptop []string `yaml:"laptop"`
	// AgeQualifier marks a laptop query as asking about age.
	AgeQualifier []string `yaml:"age_qualifier"`
	// Brand and Category classify an asset as laptop-ish during aggregation.
	Brand    []string `yaml:"brand"`
	Category []string `yaml:"category"`
}

// DefaultKeywords returns the built-in keyword sets.
func DefaultKeywords() *Keywords {
	return &Keywords{
		License:      []string{"license", "licence", "licenses", "授權", "到期", "過期", "expire", "expiring"},
		Device:       []string{"device", "devices", "設備"},
		Laptop:       []string{"laptop", "notebook", "筆電", "電腦"},
		AgeQualifier: []string{"old", "over", "older", "超過", ">", "大於"},
		Brand:        []string{"apple", "lenovo", "dell", "hp"},
		Category:     []string{"laptop", "notebook", "macbook", "desktop", "pc"},
	}
}

// LoadKeywords reads keyword overrides from a YAML file.  Lists absent from
// the file keep their built-in defaults, so a tenant can override just the
// brand list without restating everything else.
func LoadKeywords(path string) (*Keywords, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keywords file: %w", err)
	}

	var override Keywords
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse keywords yaml: %w", err)
	}

	kw := DefaultKeywords()
	if len(override.License) > 0 {
		kw.License = override.License
	}
	if len(override.Device) > 0 {
		kw.Device = override.Device
	}
	if len(override.Laptop) > 0 {
		kw.Laptop = override.Laptop
	}
	if len(override.AgeQualifier) > 0 {
		kw.AgeQualifier = override.AgeQualifier
	}
	if len(override.Brand) > 0 {
		kw.Brand = override.Brand
	}
	if len(override.Category) > 0 {
		kw.Category = override.Category
	}
	return kw, nil
}
