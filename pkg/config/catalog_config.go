// Package config provides configuration loading for the template catalog.
// Templates and fields are owned by the surrounding document platform; the
// engine only needs a read-only mirror of them to resolve FIELD references
// and to gate field deletion checks.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/docstream/queryengine/pkg/models"
)

// Catalog is the read-only template and field mirror the engine runs with.
type Catalog struct {
	Templates []models.Template
	Fields    []models.Field
}

// CatalogFile is the structure of the catalog YAML file.
type CatalogFile struct {
	Templates []TemplateConfig `yaml:"templates"`
}

// TemplateConfig is one template entry in the catalog file.
type TemplateConfig struct {
	ID     int64         `yaml:"id"`
	Name   string        `yaml:"name"`
	Active bool          `yaml:"active"`
	Fields []FieldConfig `yaml:"fields"`
}

// FieldConfig is one field entry under a template.
type FieldConfig struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
}

// LoadCatalog reads the template catalog from a YAML file. An empty path
// yields an empty catalog: the engine then knows no fields, and every
// FIELD reference check reports the field as missing.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return &Catalog{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}

	var file CatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
	}

	catalog := &Catalog{}
	seen := make(map[int64]string)

	for _, template := range file.Templates {
		if template.ID == 0 || template.Name == "" {
			return nil, fmt.Errorf("catalog template needs both id and name, got id=%d name=%q", template.ID, template.Name)
		}

		catalog.Templates = append(catalog.Templates, models.Template{
			ID:     template.ID,
			Name:   template.Name,
			Active: template.Active,
		})

		for _, field := range template.Fields {
			if field.ID == 0 || field.Name == "" {
				return nil, fmt.Errorf("catalog field needs both id and name, got id=%d name=%q", field.ID, field.Name)
			}

			if owner, dup := seen[field.ID]; dup {
				return nil, fmt.Errorf("field id %d appears in templates %q and %q", field.ID, owner, template.Name)
			}

			seen[field.ID] = template.Name

			catalog.Fields = append(catalog.Fields, models.Field{
				ID:         field.ID,
				Name:       field.Name,
				TemplateID: template.ID,
			})
		}
	}

	return catalog, nil
}
