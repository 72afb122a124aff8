package sample

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Documents []Document `yaml:"documents"`
}

// LoadSeed reads documents from a YAML file of the form
//
//	documents:
//	  - id: d1
//	    title: Annual Report
//	    layers: ["", "review"]
func LoadSeed(path string) ([]Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f seedFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	for i, d := range f.Documents {
		if d.ID == "" || d.Title == "" {
			return nil, fmt.Errorf("seed %s: documents[%d] needs id and title", path, i)
		}
	}
	return f.Documents, nil
}

// DefaultDocuments is the seed used when no file is given.
func DefaultDocuments() []Document {
	return []Document{
		{ID: "7KPS7F0Y3FGP3CHSW1F5E6TJ", Title: "Getting Started Guide", Layers: []string{"", "review"}, Content: "Welcome to the guide."},
		{ID: "7KPS7F4X2H3J2E9TW7AQKZ1B", Title: "Product Brochure", Layers: []string{""}, Content: "Brochure body."},
	}
}
